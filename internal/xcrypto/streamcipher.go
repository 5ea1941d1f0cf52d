package xcrypto

import (
	"github.com/aead/chacha20"
)

// StreamCipher is the minimal interface the stream pipeline and the XML
// inner-keystream both need: XOR a keystream into src, writing to dst.
// dst and src may alias.
type StreamCipher interface {
	XORKeyStream(dst, src []byte)
}

// NewChaCha20Payload builds the ChaCha20 payload cipher used directly as
// Cipher::ChaCha20 (§4.5): key and IV come straight from the header, no
// further derivation. IV must be 12 bytes.
//
// Grounded on gokeepasslib/v3/crypto/chacha.go's NewChaChaEncrypter.
func NewChaCha20Payload(key, iv []byte) (StreamCipher, error) {
	return chacha20.NewCipher(iv, key)
}

// NewChaCha20InnerKeystream builds the ChaCha20 inner keystream used to mask
// protected XML field values (§4.5): key = SHA512(innerKey)[0:32],
// nonce = SHA512(innerKey)[32:44].
//
// Grounded on gokeepasslib/v3/crypto/chacha.go's NewChaChaStream.
func NewChaCha20InnerKeystream(innerKey []byte) (StreamCipher, error) {
	h := Sha512(innerKey)
	return chacha20.NewCipher(h[32:44], h[:32])
}

// salsa20InnerIV is the constant IV KeePass uses for its inner Salsa20
// keystream (not derived from the key, unlike ChaCha20's nonce).
var salsa20InnerIV = [8]byte{0xe8, 0x30, 0x09, 0x4b, 0x97, 0x20, 0x5d, 0x2a}

var sigmaWords = [4]uint32{0x61707865, 0x3320646e, 0x79622d32, 0x6b206574}

// salsaKeystream is a from-scratch Salsa20/20 keystream generator, because
// KeePass's inner Salsa20 use fixes the IV to a constant rather than
// treating it as per-message nonce material the way
// golang.org/x/crypto/salsa20's streaming API expects.
//
// Adapted from gokeepasslib/v3/crypto/salsa.go's SalsaStream.
type salsaKeystream struct {
	state        [16]uint32
	block        [64]byte
	blockUsed    int
	currentBlock []byte
}

// NewSalsa20InnerKeystream builds the Salsa20 inner keystream: key =
// SHA256(innerKey), IV = the constant above.
func NewSalsa20InnerKeystream(innerKey []byte) StreamCipher {
	hash := Sha256(innerKey)
	s := &salsaKeystream{blockUsed: 64}

	s.state[1] = le32(hash[:], 0)
	s.state[2] = le32(hash[:], 4)
	s.state[3] = le32(hash[:], 8)
	s.state[4] = le32(hash[:], 12)
	s.state[11] = le32(hash[:], 16)
	s.state[12] = le32(hash[:], 20)
	s.state[13] = le32(hash[:], 24)
	s.state[14] = le32(hash[:], 28)
	s.state[0] = sigmaWords[0]
	s.state[5] = sigmaWords[1]
	s.state[10] = sigmaWords[2]
	s.state[15] = sigmaWords[3]
	s.state[6] = le32(salsa20InnerIV[:], 0)
	s.state[7] = le32(salsa20InnerIV[:], 4)
	s.state[8] = 0
	s.state[9] = 0
	return s
}

func le32(b []byte, i int) uint32 {
	return uint32(b[i]) | uint32(b[i+1])<<8 | uint32(b[i+2])<<16 | uint32(b[i+3])<<24
}

func rotl32(x uint32, b uint) uint32 {
	return (x << b) | (x >> (32 - b))
}

func (s *salsaKeystream) XORKeyStream(dst, src []byte) {
	ks := s.fetchBytes(len(src))
	for i := range src {
		dst[i] = src[i] ^ ks[i]
	}
}

func (s *salsaKeystream) fetchBytes(n int) []byte {
	for n > len(s.currentBlock) {
		s.currentBlock = append(s.currentBlock, s.nextBlockBytes(64)...)
	}
	out := s.currentBlock[:n]
	s.currentBlock = s.currentBlock[n:]
	return out
}

func (s *salsaKeystream) nextBlockBytes(n int) []byte {
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		if s.blockUsed == 64 {
			s.generateBlock()
			s.blockUsed = 0
		}
		b[i] = s.block[s.blockUsed]
		s.blockUsed++
	}
	return b
}

func (s *salsaKeystream) generateBlock() {
	var x [16]uint32
	copy(x[:], s.state[:])

	for i := 0; i < 10; i++ {
		x[4] ^= rotl32(x[0]+x[12], 7)
		x[8] ^= rotl32(x[4]+x[0], 9)
		x[12] ^= rotl32(x[8]+x[4], 13)
		x[0] ^= rotl32(x[12]+x[8], 18)

		x[9] ^= rotl32(x[5]+x[1], 7)
		x[13] ^= rotl32(x[9]+x[5], 9)
		x[1] ^= rotl32(x[13]+x[9], 13)
		x[5] ^= rotl32(x[1]+x[13], 18)

		x[14] ^= rotl32(x[10]+x[6], 7)
		x[2] ^= rotl32(x[14]+x[10], 9)
		x[6] ^= rotl32(x[2]+x[14], 13)
		x[10] ^= rotl32(x[6]+x[2], 18)

		x[3] ^= rotl32(x[15]+x[11], 7)
		x[7] ^= rotl32(x[3]+x[15], 9)
		x[11] ^= rotl32(x[7]+x[3], 13)
		x[15] ^= rotl32(x[11]+x[7], 18)

		x[1] ^= rotl32(x[0]+x[3], 7)
		x[2] ^= rotl32(x[1]+x[0], 9)
		x[3] ^= rotl32(x[2]+x[1], 13)
		x[0] ^= rotl32(x[3]+x[2], 18)

		x[6] ^= rotl32(x[5]+x[4], 7)
		x[7] ^= rotl32(x[6]+x[5], 9)
		x[4] ^= rotl32(x[7]+x[6], 13)
		x[5] ^= rotl32(x[4]+x[7], 18)

		x[11] ^= rotl32(x[10]+x[9], 7)
		x[8] ^= rotl32(x[11]+x[10], 9)
		x[9] ^= rotl32(x[8]+x[11], 13)
		x[10] ^= rotl32(x[9]+x[8], 18)

		x[12] ^= rotl32(x[15]+x[14], 7)
		x[13] ^= rotl32(x[12]+x[15], 9)
		x[14] ^= rotl32(x[13]+x[12], 13)
		x[15] ^= rotl32(x[14]+x[13], 18)
	}

	for i := 0; i < 16; i++ {
		x[i] += s.state[i]
	}
	for i := 0; i < 16; i++ {
		s.block[i<<2] = byte(x[i])
		s.block[(i<<2)+1] = byte(x[i] >> 8)
		s.block[(i<<2)+2] = byte(x[i] >> 16)
		s.block[(i<<2)+3] = byte(x[i] >> 24)
	}
	s.blockUsed = 0
	s.state[8]++
	if s.state[8] == 0 {
		s.state[9]++
	}
}
