package config

import "fmt"

const redacted = "[REDACTED]"

// Secret holds an opaque credential. Every display or serialization path
// prints a placeholder; only Reveal returns the real value.
type Secret struct {
	value string
}

func NewSecret(v string) Secret { return Secret{value: v} }

// Reveal returns the raw value. Call it only at the point the credential is
// put on the wire (request header, HMAC key, bot token).
func (s Secret) Reveal() string { return s.value }

func (s Secret) Empty() bool { return s.value == "" }

func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return redacted }

// Format covers every fmt verb, including %#v and %q.
func (s Secret) Format(f fmt.State, _ rune) {
	_, _ = f.Write([]byte(redacted))
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

func (s Secret) MarshalYAML() (interface{}, error) {
	return redacted, nil
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}
