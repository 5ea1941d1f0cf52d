package xcrypto

// MasterKey is the output of the configured KDF, combined with per-archive
// seeds to produce the cipher key and the HMAC key hierarchy.
//
// Grounded on original_source/src/crypto.rs's MasterKey/HmacKey/HmacBlockKey
// and gokeepasslib/v3/blocks.go's BlockHMACBuilder.
type MasterKey struct {
	Bytes []byte
}

// HmacKey is the per-archive base key all block HMAC keys are derived from.
type HmacKey struct {
	Base [64]byte
}

// HeaderBlockIndex is the reserved block index used to authenticate the
// outer header itself (as opposed to a payload block).
const HeaderBlockIndex = ^uint64(0)

// CipherKey derives the payload cipher key: SHA256(masterSeed || master).
func (m MasterKey) CipherKey(masterSeed []byte) [32]byte {
	return Sha256(masterSeed, m.Bytes)
}

// HmacKeyBase derives the HMAC key hierarchy base:
// SHA512(masterSeed || master || 0x01).
func (m MasterKey) HmacKeyBase(masterSeed []byte) HmacKey {
	return HmacKey{Base: Sha512(masterSeed, m.Bytes, []byte{0x01})}
}

// BlockKey derives HMAC-SHA256 key material for block index i:
// SHA512(u64_LE(i) || hmacKeyBase).
func (h HmacKey) BlockKey(i uint64) [64]byte {
	return Sha512(LE64(i), h.Base[:])
}

// VerifyHeaderBlock verifies the header HMAC, which covers the raw header
// bytes only (no length/index prefix, unlike payload blocks).
func (h HmacKey) VerifyHeaderBlock(mac, headerBytes []byte) bool {
	key := h.BlockKey(HeaderBlockIndex)
	return VerifyHmacSha256(key[:], mac, headerBytes)
}

// CalculateHeaderHmac computes the HMAC over the raw header bytes, for the
// write path.
func (h HmacKey) CalculateHeaderHmac(headerBytes []byte) []byte {
	key := h.BlockKey(HeaderBlockIndex)
	return HmacSha256(key[:], headerBytes)
}

// VerifyDataBlock verifies a payload block's HMAC, which covers
// u64_LE(index) || u32_LE(len) || data.
func (h HmacKey) VerifyDataBlock(index uint64, data, mac []byte) bool {
	key := h.BlockKey(index)
	return VerifyHmacSha256(key[:], mac, LE64(index), LE32(uint32(len(data))), data)
}

// CalculateDataBlockHmac computes a payload block's HMAC for the write path.
func (h HmacKey) CalculateDataBlockHmac(index uint64, data []byte) []byte {
	key := h.BlockKey(index)
	return HmacSha256(key[:], LE64(index), LE32(uint32(len(data))), data)
}

// ComposedKey is SHA256 over the concatenation of the already-hashed
// password and keyfile components, per §4.3.
type ComposedKey struct {
	Bytes []byte
}

// ComposeKey builds the composed key from the hashed password/keyfile
// components. Either may be nil, but not both.
func ComposeKey(hashedPassword, hashedKeyfile []byte) ComposedKey {
	var parts [][]byte
	if hashedPassword != nil {
		parts = append(parts, hashedPassword)
	}
	if hashedKeyfile != nil {
		parts = append(parts, hashedKeyfile)
	}
	sum := Sha256(parts...)
	return ComposedKey{Bytes: sum[:]}
}
