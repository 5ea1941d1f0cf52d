// Package xcrypto implements the cryptographic primitives the KDBX file
// format composes: hashing, HMAC, the payload block/stream ciphers, and the
// two key-derivation functions (Argon2d/id and the legacy AES round KDF).
package xcrypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
)

// Sha256 returns the SHA-256 digest of data.
func Sha256(data ...[]byte) [32]byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Sha512 returns the SHA-512 digest of data.
func Sha512(data ...[]byte) [64]byte {
	h := sha512.New()
	for _, d := range data {
		h.Write(d)
	}
	var out [64]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HmacSha256 computes HMAC-SHA256(key, data...).
func HmacSha256(key []byte, data ...[]byte) []byte {
	mac := hmac.New(sha256.New, key)
	for _, d := range data {
		mac.Write(d)
	}
	return mac.Sum(nil)
}

// VerifyHmacSha256 reports whether mac is the valid HMAC-SHA256 over data
// keyed by key, using a constant-time comparison.
func VerifyHmacSha256(key, mac []byte, data ...[]byte) bool {
	expected := HmacSha256(key, data...)
	return hmac.Equal(expected, mac)
}

// LE64 encodes v as 8 little-endian bytes.
func LE64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

// LE32 encodes v as 4 little-endian bytes.
func LE32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}
