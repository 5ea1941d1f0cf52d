package kdbx

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/spectralops-labs/kdbx/internal/variantdict"
)

// OuterHeaderID identifies a field of the unencrypted (outer) header.
type OuterHeaderID byte

const (
	OuterEndOfHeader          OuterHeaderID = 0
	OuterComment              OuterHeaderID = 1
	OuterCipherID             OuterHeaderID = 2
	OuterCompressionFlags     OuterHeaderID = 3
	OuterMasterSeed           OuterHeaderID = 4
	OuterLegacyTransformSeed  OuterHeaderID = 5
	OuterLegacyTransformRounds OuterHeaderID = 6
	OuterEncryptionIv         OuterHeaderID = 7
	OuterProtectedStreamKey   OuterHeaderID = 8
	OuterStreamStartBytes     OuterHeaderID = 9
	OuterInnerRandomStreamID  OuterHeaderID = 10
	OuterKdfParameters        OuterHeaderID = 11
	OuterPublicCustomData     OuterHeaderID = 12
)

// InnerHeaderID identifies a field of the encrypted (inner) header.
type InnerHeaderID byte

const (
	InnerEndOfHeader              InnerHeaderID = 0
	InnerRandomStreamCipherID     InnerHeaderID = 1
	InnerRandomStreamKey          InnerHeaderID = 2
	InnerBinary                   InnerHeaderID = 3
)

// rawField is one on-disk {ty, len, data} record, before interpretation.
type rawField struct {
	outerTy OuterHeaderID
	innerTy InnerHeaderID
	data    []byte
}

// readOuterFields reads outer-header records from r until EndOfHeader
// (exclusive), using a 4-byte length for v4 or 2-byte for v3.
func readOuterFields(r io.Reader, v4 bool) ([]rawField, error) {
	var fields []rawField
	for {
		var tyBuf [1]byte
		if _, err := io.ReadFull(r, tyBuf[:]); err != nil {
			return nil, fmt.Errorf("kdbx: reading outer header field type: %w", err)
		}
		ty := OuterHeaderID(tyBuf[0])

		length, err := readFieldLength(r, v4)
		if err != nil {
			return nil, fmt.Errorf("kdbx: reading outer header field length: %w", err)
		}
		data := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("kdbx: reading outer header field %d data: %w", ty, err)
			}
		}
		if ty == OuterEndOfHeader {
			return fields, nil
		}
		fields = append(fields, rawField{outerTy: ty, data: data})
	}
}

// readInnerFields reads inner-header records from r until EndOfHeader
// (exclusive); inner lengths are always 4 bytes, for v3 and v4 alike.
func readInnerFields(r io.Reader) ([]rawField, error) {
	var fields []rawField
	for {
		var tyBuf [1]byte
		if _, err := io.ReadFull(r, tyBuf[:]); err != nil {
			return nil, fmt.Errorf("kdbx: reading inner header field type: %w", err)
		}
		ty := InnerHeaderID(tyBuf[0])

		length, err := readFieldLength(r, true)
		if err != nil {
			return nil, fmt.Errorf("kdbx: reading inner header field length: %w", err)
		}
		data := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("kdbx: reading inner header field %d data: %w", ty, err)
			}
		}
		if ty == InnerEndOfHeader {
			return fields, nil
		}
		fields = append(fields, rawField{innerTy: ty, data: data})
	}
}

func readFieldLength(r io.Reader, fourByte bool) (uint32, error) {
	if fourByte {
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint32(buf[:]), nil
	}
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return uint32(binary.LittleEndian.Uint16(buf[:])), nil
}

func writeField(w io.Writer, ty byte, data []byte, fourByte bool) error {
	if _, err := w.Write([]byte{ty}); err != nil {
		return err
	}
	if fourByte {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(len(data)))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	} else {
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], uint16(len(data)))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	if len(data) > 0 {
		_, err := w.Write(data)
		return err
	}
	return nil
}

// Cipher identifies the payload cipher algorithm, per the UUID table in
// the external-interfaces section.
type Cipher struct {
	known   knownCipher
	unknown uuid.UUID
}

type knownCipher int

const (
	cipherUnknown knownCipher = iota
	cipherAES128
	cipherAES256
	cipherTwoFish
	cipherChaCha20
)

var (
	aes128UUID    = uuid.MustParse("61ab05a1-9464-41c3-8d74-3a563df8dd35")
	aes256UUID    = uuid.MustParse("31c1f2e6-bf71-4350-be58-05216afc5aff")
	twoFishUUID   = uuid.MustParse("ad68f29f-576f-4bb9-a36a-d47af965346c")
	chaCha20UUID  = uuid.MustParse("d6038a2b-8b6f-4cb5-a524-339a31dbb59a")
	aesKdbx31UUID = uuid.MustParse("c9d9f39a-628a-4460-bf74-0d08c18a4fea")
	aesKdbx4UUID  = uuid.MustParse("7c02bb82-79a7-4ac0-927d-114a00648238")
	argon2dUUID   = uuid.MustParse("ef636ddf-8c29-444b-91f7-a9a403e30a0c")
	argon2idUUID  = uuid.MustParse("9e298b19-56db-4773-b23d-fc3ec6f0a1e6")
)

var (
	CipherAES128   = Cipher{known: cipherAES128}
	CipherAES256   = Cipher{known: cipherAES256}
	CipherTwoFish  = Cipher{known: cipherTwoFish}
	CipherChaCha20 = Cipher{known: cipherChaCha20}
)

func cipherFromUUID(u uuid.UUID) Cipher {
	switch u {
	case aes128UUID:
		return CipherAES128
	case aes256UUID:
		return CipherAES256
	case twoFishUUID:
		return CipherTwoFish
	case chaCha20UUID:
		return CipherChaCha20
	default:
		return Cipher{known: cipherUnknown, unknown: u}
	}
}

// UUID returns the on-disk cipher identifier.
func (c Cipher) UUID() uuid.UUID {
	switch c.known {
	case cipherAES128:
		return aes128UUID
	case cipherAES256:
		return aes256UUID
	case cipherTwoFish:
		return twoFishUUID
	case cipherChaCha20:
		return chaCha20UUID
	default:
		return c.unknown
	}
}

// IsKnown reports whether this cipher is one the library can process.
func (c Cipher) IsKnown() bool { return c.known != cipherUnknown }

func (c Cipher) String() string {
	switch c.known {
	case cipherAES128:
		return "AES128"
	case cipherAES256:
		return "AES256"
	case cipherTwoFish:
		return "TwoFish"
	case cipherChaCha20:
		return "ChaCha20"
	default:
		return "Unknown(" + c.unknown.String() + ")"
	}
}

// IvLength returns the expected EncryptionIv length for this cipher.
func (c Cipher) IvLength() int {
	if c.known == cipherChaCha20 {
		return 12
	}
	return 16
}

// CompressionType selects whether the inner payload is gzip-compressed.
type CompressionType uint32

const (
	CompressionNone CompressionType = 0
	CompressionGzip CompressionType = 1
)

// InnerStreamCipherAlgorithm identifies the cipher protecting in-memory XML
// field values.
type InnerStreamCipherAlgorithm uint32

const (
	InnerStreamArcFour  InnerStreamCipherAlgorithm = 1 // unsupported, refused
	InnerStreamSalsa20  InnerStreamCipherAlgorithm = 2
	InnerStreamChaCha20 InnerStreamCipherAlgorithm = 3
)

// KdfAlgorithm identifies the key-derivation function selected by a
// KdfParameters header field's $UUID.
type KdfAlgorithm int

const (
	KdfUnknown KdfAlgorithm = iota
	KdfArgon2d
	KdfArgon2id
	KdfAES256Kdbx4
	KdfAES256Kdbx31
)

func kdfAlgorithmFromUUID(u uuid.UUID) KdfAlgorithm {
	switch u {
	case argon2dUUID:
		return KdfArgon2d
	case argon2idUUID:
		return KdfArgon2id
	case aesKdbx4UUID:
		return KdfAES256Kdbx4
	case aesKdbx31UUID:
		return KdfAES256Kdbx31
	default:
		return KdfUnknown
	}
}

// KdfParams holds the fully decoded parameters for whichever KDF the
// header's $UUID selects. Exactly one of the Argon2/Aes branches applies.
type KdfParams struct {
	Algorithm KdfAlgorithm

	// Argon2
	MemoryBytes uint64
	Version     uint32
	Salt        []byte
	Iterations  uint64
	Lanes       uint32

	// Aes (KDBX3.1 legacy and KDBX4)
	Rounds uint64

	// Unknown
	UnknownUUID uuid.UUID
	Raw         *variantdict.Dict
}

// KdfParamsFromDict decodes a variant dictionary into KdfParams.
func KdfParamsFromDict(d *variantdict.Dict) (KdfParams, error) {
	uuidVal, ok := d.Get("$UUID")
	if !ok || uuidVal.Tag != variantdict.TagArray {
		return KdfParams{}, fmt.Errorf("kdbx: KdfParameters missing $UUID")
	}
	kdfUUID, err := uuid.FromBytes(uuidVal.Bytes)
	if err != nil {
		return KdfParams{}, fmt.Errorf("kdbx: KdfParameters $UUID malformed: %w", err)
	}
	algo := kdfAlgorithmFromUUID(kdfUUID)

	switch algo {
	case KdfArgon2d, KdfArgon2id:
		memory, err := requireUint64(d, "M")
		if err != nil {
			return KdfParams{}, err
		}
		version, err := requireUint32(d, "V")
		if err != nil {
			return KdfParams{}, err
		}
		salt, err := requireBytes(d, "S")
		if err != nil {
			return KdfParams{}, err
		}
		iterations, err := requireUint64(d, "I")
		if err != nil {
			return KdfParams{}, err
		}
		lanes, err := requireUint32(d, "P")
		if err != nil {
			return KdfParams{}, err
		}
		return KdfParams{Algorithm: algo, MemoryBytes: memory, Version: version, Salt: salt, Iterations: iterations, Lanes: lanes}, nil
	case KdfAES256Kdbx4, KdfAES256Kdbx31:
		rounds, err := requireUint64(d, "R")
		if err != nil {
			return KdfParams{}, err
		}
		salt, err := requireBytes(d, "S")
		if err != nil {
			return KdfParams{}, err
		}
		return KdfParams{Algorithm: algo, Rounds: rounds, Salt: salt}, nil
	default:
		return KdfParams{Algorithm: KdfUnknown, UnknownUUID: kdfUUID, Raw: d}, nil
	}
}

func requireUint64(d *variantdict.Dict, key string) (uint64, error) {
	v, ok := d.Get(key)
	if !ok || v.Tag != variantdict.TagUint64 {
		return 0, fmt.Errorf("kdbx: KdfParameters missing %s", key)
	}
	return v.U64, nil
}

func requireUint32(d *variantdict.Dict, key string) (uint32, error) {
	v, ok := d.Get(key)
	if !ok || v.Tag != variantdict.TagUint32 {
		return 0, fmt.Errorf("kdbx: KdfParameters missing %s", key)
	}
	return v.U32, nil
}

func requireBytes(d *variantdict.Dict, key string) ([]byte, error) {
	v, ok := d.Get(key)
	if !ok || v.Tag != variantdict.TagArray {
		return nil, fmt.Errorf("kdbx: KdfParameters missing %s", key)
	}
	return v.Bytes, nil
}

// ToDict serializes KdfParams back to a variant dictionary for writing.
func (p KdfParams) ToDict() *variantdict.Dict {
	d := variantdict.New()
	switch p.Algorithm {
	case KdfArgon2d, KdfArgon2id:
		u := argon2dUUID
		if p.Algorithm == KdfArgon2id {
			u = argon2idUUID
		}
		ub := u
		d.Set("$UUID", variantdict.Array(ub[:]))
		d.Set("M", variantdict.Uint64(p.MemoryBytes))
		d.Set("V", variantdict.Uint32(p.Version))
		d.Set("S", variantdict.Array(p.Salt))
		d.Set("I", variantdict.Uint64(p.Iterations))
		d.Set("P", variantdict.Uint32(p.Lanes))
	case KdfAES256Kdbx4, KdfAES256Kdbx31:
		u := aesKdbx4UUID
		if p.Algorithm == KdfAES256Kdbx31 {
			u = aesKdbx31UUID
		}
		ub := u
		d.Set("$UUID", variantdict.Array(ub[:]))
		d.Set("R", variantdict.Uint64(p.Rounds))
		d.Set("S", variantdict.Array(p.Salt))
	default:
		ub := p.UnknownUUID
		d.Set("$UUID", variantdict.Array(ub[:]))
		if p.Raw != nil {
			for _, k := range p.Raw.Keys() {
				if k == "$UUID" {
					continue
				}
				v, _ := p.Raw.Get(k)
				d.Set(k, v)
			}
		}
	}
	return d
}

// KdbxHeader is the fully decoded outer header: the canonical fields every
// archive needs plus any pass-through fields this library doesn't
// interpret.
type KdbxHeader struct {
	Cipher            Cipher
	CompressionType   CompressionType
	MasterSeed        []byte
	EncryptionIv      []byte
	KdfParams         KdfParams
	OtherFields       []rawField // pass-through: Comment, PublicCustomData, Unknown

	// v3-only legacy fields, retained for round-tripping and KDF synthesis.
	ProtectedStreamKey  []byte
	StreamStartBytes    []byte
	InnerRandomStreamID InnerStreamCipherAlgorithm
}

// MissingRequiredFieldError reports an outer header lacking a field this
// major version requires.
type MissingRequiredFieldError struct{ Field OuterHeaderID }

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("kdbx: missing required header field %d", e.Field)
}

// MalformedFieldError reports a header field whose payload size or content
// doesn't match its id's expected encoding.
type MalformedFieldError struct {
	Field OuterHeaderID
	Msg   string
}

func (e *MalformedFieldError) Error() string {
	return fmt.Sprintf("kdbx: malformed header field %d: %s", e.Field, e.Msg)
}

// readKdbxHeader parses raw into a KdbxHeader. v4 selects 4-byte field
// lengths and requires KdfParameters; v3 selects 2-byte lengths and
// synthesizes KdfParams from the legacy transform fields if absent.
func readKdbxHeader(r io.Reader, v4 bool) (KdbxHeader, error) {
	fields, err := readOuterFields(r, v4)
	if err != nil {
		return KdbxHeader{}, err
	}

	var h KdbxHeader
	var haveCipher, haveCompression, haveMasterSeed, haveIv, haveKdfParams bool
	var legacyRounds uint64
	var legacySeed []byte
	var haveLegacyRounds, haveLegacySeed bool

	for _, f := range fields {
		switch f.outerTy {
		case OuterCipherID:
			u, err := uuid.FromBytes(f.data)
			if err != nil {
				return KdbxHeader{}, &MalformedFieldError{Field: f.outerTy, Msg: "not a valid UUID"}
			}
			h.Cipher = cipherFromUUID(u)
			haveCipher = true
		case OuterCompressionFlags:
			if len(f.data) != 4 {
				return KdbxHeader{}, &MalformedFieldError{Field: f.outerTy, Msg: "expected 4 bytes"}
			}
			h.CompressionType = CompressionType(binary.LittleEndian.Uint32(f.data))
			haveCompression = true
		case OuterMasterSeed:
			h.MasterSeed = f.data
			haveMasterSeed = true
		case OuterEncryptionIv:
			h.EncryptionIv = f.data
			haveIv = true
		case OuterKdfParameters:
			dict, err := variantdict.Read(bytes.NewReader(f.data))
			if err != nil {
				return KdbxHeader{}, &MalformedFieldError{Field: f.outerTy, Msg: err.Error()}
			}
			params, err := KdfParamsFromDict(dict)
			if err != nil {
				return KdbxHeader{}, &MalformedFieldError{Field: f.outerTy, Msg: err.Error()}
			}
			h.KdfParams = params
			haveKdfParams = true
		case OuterLegacyTransformRounds:
			if len(f.data) != 8 {
				return KdbxHeader{}, &MalformedFieldError{Field: f.outerTy, Msg: "expected 8 bytes"}
			}
			legacyRounds = binary.LittleEndian.Uint64(f.data)
			haveLegacyRounds = true
		case OuterLegacyTransformSeed:
			legacySeed = f.data
			haveLegacySeed = true
		case OuterProtectedStreamKey:
			h.ProtectedStreamKey = f.data
		case OuterStreamStartBytes:
			h.StreamStartBytes = f.data
		case OuterInnerRandomStreamID:
			if len(f.data) != 4 {
				return KdbxHeader{}, &MalformedFieldError{Field: f.outerTy, Msg: "expected 4 bytes"}
			}
			h.InnerRandomStreamID = InnerStreamCipherAlgorithm(binary.LittleEndian.Uint32(f.data))
		default:
			h.OtherFields = append(h.OtherFields, f)
		}
	}

	if !haveKdfParams {
		if !v4 && haveLegacyRounds && haveLegacySeed {
			h.KdfParams = KdfParams{Algorithm: KdfAES256Kdbx31, Rounds: legacyRounds, Salt: legacySeed}
			haveKdfParams = true
		}
	}

	if !haveCipher {
		return KdbxHeader{}, &MissingRequiredFieldError{Field: OuterCipherID}
	}
	if !haveCompression {
		return KdbxHeader{}, &MissingRequiredFieldError{Field: OuterCompressionFlags}
	}
	if !haveMasterSeed {
		return KdbxHeader{}, &MissingRequiredFieldError{Field: OuterMasterSeed}
	}
	if !haveIv {
		return KdbxHeader{}, &MissingRequiredFieldError{Field: OuterEncryptionIv}
	}
	if !haveKdfParams {
		return KdbxHeader{}, &MissingRequiredFieldError{Field: OuterKdfParameters}
	}
	if v4 {
		if h.ProtectedStreamKey != nil || h.StreamStartBytes != nil {
			// Permitted but unused on v4; nothing to validate.
		}
	} else {
		if h.ProtectedStreamKey == nil {
			return KdbxHeader{}, &MissingRequiredFieldError{Field: OuterProtectedStreamKey}
		}
		if h.StreamStartBytes == nil {
			return KdbxHeader{}, &MissingRequiredFieldError{Field: OuterStreamStartBytes}
		}
	}

	return h, nil
}

// writeKdbxHeader serializes h to w: pass-through fields first, then the
// canonical fields, then EndOfHeader. v4 selects 4-byte field lengths.
func writeKdbxHeader(w io.Writer, h KdbxHeader, v4 bool) error {
	for _, f := range h.OtherFields {
		if err := writeField(w, byte(f.outerTy), f.data, v4); err != nil {
			return err
		}
	}

	cipherUUID := h.Cipher.UUID()
	if err := writeField(w, byte(OuterCipherID), cipherUUID[:], v4); err != nil {
		return err
	}

	var compBuf [4]byte
	binary.LittleEndian.PutUint32(compBuf[:], uint32(h.CompressionType))
	if err := writeField(w, byte(OuterCompressionFlags), compBuf[:], v4); err != nil {
		return err
	}

	if err := writeField(w, byte(OuterMasterSeed), h.MasterSeed, v4); err != nil {
		return err
	}
	if err := writeField(w, byte(OuterEncryptionIv), h.EncryptionIv, v4); err != nil {
		return err
	}

	if v4 {
		var buf bytes.Buffer
		if err := variantdict.Write(&buf, h.KdfParams.ToDict()); err != nil {
			return err
		}
		if err := writeField(w, byte(OuterKdfParameters), buf.Bytes(), v4); err != nil {
			return err
		}
	} else {
		var roundsBuf [8]byte
		binary.LittleEndian.PutUint64(roundsBuf[:], h.KdfParams.Rounds)
		if err := writeField(w, byte(OuterLegacyTransformRounds), roundsBuf[:], v4); err != nil {
			return err
		}
		if err := writeField(w, byte(OuterLegacyTransformSeed), h.KdfParams.Salt, v4); err != nil {
			return err
		}
		if err := writeField(w, byte(OuterProtectedStreamKey), h.ProtectedStreamKey, v4); err != nil {
			return err
		}
		if err := writeField(w, byte(OuterStreamStartBytes), h.StreamStartBytes, v4); err != nil {
			return err
		}
		var innerBuf [4]byte
		binary.LittleEndian.PutUint32(innerBuf[:], uint32(h.InnerRandomStreamID))
		if err := writeField(w, byte(OuterInnerRandomStreamID), innerBuf[:], v4); err != nil {
			return err
		}
	}

	return writeField(w, byte(OuterEndOfHeader), nil, v4)
}

// KdbxInnerHeader is the decoded inner header (v4; v3 synthesizes one from
// legacy outer fields instead of parsing it off the wire).
type KdbxInnerHeader struct {
	InnerStreamCipherID InnerStreamCipherAlgorithm
	InnerStreamKey      []byte
	OtherFields         []rawField
}

func readKdbxInnerHeader(r io.Reader) (KdbxInnerHeader, error) {
	fields, err := readInnerFields(r)
	if err != nil {
		return KdbxInnerHeader{}, err
	}
	var h KdbxInnerHeader
	var haveCipher, haveKey bool
	for _, f := range fields {
		switch f.innerTy {
		case InnerRandomStreamCipherID:
			if len(f.data) != 4 {
				return KdbxInnerHeader{}, fmt.Errorf("kdbx: malformed inner field %d: expected 4 bytes", f.innerTy)
			}
			h.InnerStreamCipherID = InnerStreamCipherAlgorithm(binary.LittleEndian.Uint32(f.data))
			haveCipher = true
		case InnerRandomStreamKey:
			h.InnerStreamKey = f.data
			haveKey = true
		default:
			h.OtherFields = append(h.OtherFields, f)
		}
	}
	if !haveCipher {
		return KdbxInnerHeader{}, fmt.Errorf("kdbx: missing required inner header field InnerRandomStreamCipherId")
	}
	if !haveKey {
		return KdbxInnerHeader{}, fmt.Errorf("kdbx: missing required inner header field InnerRandomStreamKey")
	}
	return h, nil
}

func writeKdbxInnerHeader(w io.Writer, h KdbxInnerHeader) error {
	for _, f := range h.OtherFields {
		if err := writeField(w, byte(f.innerTy), f.data, true); err != nil {
			return err
		}
	}
	var cipherBuf [4]byte
	binary.LittleEndian.PutUint32(cipherBuf[:], uint32(h.InnerStreamCipherID))
	if err := writeField(w, byte(InnerRandomStreamCipherID), cipherBuf[:], true); err != nil {
		return err
	}
	if err := writeField(w, byte(InnerRandomStreamKey), h.InnerStreamKey, true); err != nil {
		return err
	}
	return writeField(w, byte(InnerEndOfHeader), nil, true)
}
