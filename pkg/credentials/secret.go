package credentials

// Secret holds sensitive material (group keys, private keys). It masks
// itself in logs and JSON, and exposes its raw bytes only through a scoped
// accessor that clears the working copy on release.
type Secret string

func (s Secret) String() string {
	return "*************"
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte("*************"), nil
}

func (s Secret) Empty() bool {
	return len(s) == 0
}

// WithBytes hands fn a fresh copy of the secret bytes and zeroes that copy
// when fn returns, on every exit path including panics.
func (s Secret) WithBytes(fn func(secret []byte) error) error {
	buf := []byte(s)
	defer func() {
		for i := range buf {
			buf[i] = 0
		}
	}()

	return fn(buf)
}
