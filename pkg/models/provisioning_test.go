package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgekit-io/fleetprov/pkg/errs"
)

func TestParseProvisioningStatus(t *testing.T) {
	for _, raw := range []string{"unassigned", "assigning", "assigned", "failed", "disabled"} {
		status, err := ParseProvisioningStatus(raw)
		require.NoError(t, err)
		assert.Equal(t, ProvisioningStatus(raw), status)
	}

	_, err := ParseProvisioningStatus("Assigned")
	assert.ErrorIs(t, err, errs.ErrUnexpectedResponse)

	_, err = ParseProvisioningStatus("")
	assert.ErrorIs(t, err, errs.ErrUnexpectedResponse)
}

func TestProvisioningStatusTerminal(t *testing.T) {
	assert.True(t, StatusAssigned.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusDisabled.Terminal())

	assert.False(t, StatusUnassigned.Terminal())
	assert.False(t, StatusAssigning.Terminal())
}
