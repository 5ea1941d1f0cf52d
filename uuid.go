package kdbx

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// UUID is a 16-byte entry/group identifier, encoded as base64 text inside
// <UUID> elements rather than the dashed-hex form used for header cipher
// and KDF identifiers.
//
// Grounded on gokeepasslib/v3/uuid.go.
type UUID [16]byte

// NewUUID returns a randomly generated UUID.
func NewUUID() UUID {
	var u UUID
	if _, err := rand.Read(u[:]); err != nil {
		panic("kdbx: reading random bytes: " + err.Error())
	}
	return u
}

// IsZero reports whether u is the all-zero UUID, which is what an empty
// <UUID/> element decodes to.
func (u UUID) IsZero() bool { return u == UUID{} }

func (u UUID) String() string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", u[0:4], u[4:6], u[6:8], u[8:10], u[10:16])
}

// MarshalText implements encoding.TextMarshaler.
func (u UUID) MarshalText() ([]byte, error) {
	out := make([]byte, base64.StdEncoding.EncodedLen(16))
	base64.StdEncoding.Encode(out, u[:])
	return out, nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unlike some KDBX
// libraries, an empty value decodes to the zero UUID rather than being
// silently replaced by a freshly generated one; a malformed value (bad
// base64, or not 16 bytes) is an error.
func (u *UUID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*u = UUID{}
		return nil
	}
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(text)))
	n, err := base64.StdEncoding.Decode(decoded, text)
	if err != nil {
		return fmt.Errorf("kdbx: decoding UUID: %w", err)
	}
	if n != 16 {
		return fmt.Errorf("kdbx: UUID must decode to 16 bytes, got %d", n)
	}
	copy(u[:], decoded[:16])
	return nil
}
