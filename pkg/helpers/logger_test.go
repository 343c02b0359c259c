package helpers

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/edgekit-io/fleetprov/pkg/config"
)

func TestConfigureLogger(t *testing.T) {
	// below debug level the entry is returned untouched
	logger := logrus.NewEntry(logrus.New())
	logger.Logger.Level = logrus.InfoLevel

	result := ConfigureLogger(context.Background(), logger)
	if result != logger {
		t.Error("ConfigureLogger returned a different logger below debug level")
	}

	// a request id present in the context is attached as a field
	logger = logrus.NewEntry(logrus.New())
	logger.Logger.Level = logrus.DebugLevel
	ctx := context.WithValue(context.Background(), CtxRequestID, "req-12345")

	result = ConfigureLogger(ctx, logger)
	if result.Data["req-id"] != "req-12345" {
		t.Errorf("ConfigureLogger did not attach the context request id: got %v", result.Data["req-id"])
	}

	// without one, a generated id marked 'unset.' is attached
	result = ConfigureLogger(context.Background(), logger)
	reqID, ok := result.Data["req-id"].(string)
	if !ok || !strings.HasPrefix(reqID, "unset.") {
		t.Errorf("ConfigureLogger did not generate a fallback request id: got %v", result.Data["req-id"])
	}
}

func TestInitContext(t *testing.T) {
	ctx := InitContext()

	reqID, ok := ctx.Value(CtxRequestID).(string)
	if !ok {
		t.Fatal("InitContext did not seed a request id")
	}
	if !strings.HasPrefix(reqID, "internal.") {
		t.Errorf("InitContext seeded an unexpected request id: %s", reqID)
	}
}

func TestSetupLogger(t *testing.T) {
	entry := SetupLogger(config.Debug, "Fleet Provisioning", "Test")
	if entry.Logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("SetupLogger did not apply the debug level: got %s", entry.Logger.GetLevel())
	}
	if entry.Data["subsystem"] != "Test" {
		t.Errorf("SetupLogger did not attach the subsystem field: got %v", entry.Data["subsystem"])
	}

	entry = SetupLogger(config.None, "Fleet Provisioning", "Muted")
	if entry.Logger.Out != io.Discard {
		t.Error("SetupLogger did not discard output for the 'none' level")
	}
}
