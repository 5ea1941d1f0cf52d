package xcrypto

import (
	"crypto/aes"
	"fmt"

	"github.com/aead/argon2"
)

// Argon2Variant selects between KeePass's two supported Argon2 flavors.
type Argon2Variant int

const (
	Argon2d Argon2Variant = iota
	Argon2id
)

// Argon2Params mirrors the KDF variant-dict fields for Argon2 (§4.3, §6).
type Argon2Params struct {
	Variant     Argon2Variant
	Salt        []byte
	Iterations  uint64
	MemoryBytes uint64
	Lanes       uint32
	Version     uint32
}

// SupportedArgon2Version is the only Argon2 version this library accepts.
const SupportedArgon2Version = 0x13

// DeriveArgon2 runs Argon2d or Argon2id over the composed key, producing a
// 32-byte master key. Grounded on gokeepasslib/v3/credentials.go's
// buildTransformedKey (which hardcodes Argon2d) generalized to also support
// Argon2id, since KDF selection is driven by the header's KDF UUID rather
// than fixed at compile time.
func DeriveArgon2(composed []byte, p Argon2Params) ([]byte, error) {
	if p.Version != SupportedArgon2Version {
		return nil, fmt.Errorf("xcrypto: unsupported argon2 version 0x%x", p.Version)
	}
	memoryKiB := uint32(p.MemoryBytes / 1024)
	switch p.Variant {
	case Argon2d:
		return argon2.Key2d(composed, p.Salt, uint32(p.Iterations), memoryKiB, uint8(p.Lanes), 32), nil
	case Argon2id:
		return argon2.Key2id(composed, p.Salt, uint32(p.Iterations), memoryKiB, uint8(p.Lanes), 32), nil
	default:
		return nil, fmt.Errorf("xcrypto: unknown argon2 variant %d", p.Variant)
	}
}

// DeriveAesKdf runs the legacy raw-AES round KDF: the composed key, split
// into two 16-byte halves, is encrypted in place `rounds` times under a raw
// (unchained) AES block cipher keyed by salt, then SHA-256'd once.
//
// Grounded on gokeepasslib/v3/credentials.go's cryptAESKey.
func DeriveAesKdf(composed, salt []byte, rounds uint64) ([]byte, error) {
	block, err := aes.NewCipher(salt)
	if err != nil {
		return nil, fmt.Errorf("xcrypto: aes-kdf cipher: %w", err)
	}
	key := make([]byte, len(composed))
	copy(key, composed)
	for i := uint64(0); i < rounds; i++ {
		block.Encrypt(key[:16], key[:16])
		block.Encrypt(key[16:], key[16:])
	}
	sum := Sha256(key)
	return sum[:], nil
}
