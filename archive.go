package kdbx

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/spectralops-labs/kdbx/internal/stream"
	"github.com/spectralops-labs/kdbx/internal/xcrypto"
)

const (
	keepassMagic uint32 = 0x9AA2D903
	kdbxMagic    uint32 = 0xB54BFB67
)

// CompositeKey is the credential used to unlock or encrypt an archive.
// Either Password or Keyfile (or both) must be set.
type CompositeKey struct {
	Password string
	Keyfile  []byte
}

func (k CompositeKey) compose() (xcrypto.ComposedKey, error) {
	if k.Password == "" && len(k.Keyfile) == 0 {
		return xcrypto.ComposedKey{}, fmt.Errorf("kdbx: composite key must have a password, a keyfile, or both")
	}
	var hashedPassword, hashedKeyfile []byte
	if k.Password != "" {
		sum := xcrypto.Sha256([]byte(k.Password))
		hashedPassword = sum[:]
	}
	if len(k.Keyfile) > 0 {
		sum := xcrypto.Sha256(k.Keyfile)
		hashedKeyfile = sum[:]
	}
	return xcrypto.ComposeKey(hashedPassword, hashedKeyfile), nil
}

// Locked is an archive whose outer envelope has been parsed but whose
// payload remains encrypted: the database is not yet available.
type Locked struct {
	header           KdbxHeader
	rawHeaderBytes   []byte
	major, minor     uint16
	headerHmac       []byte // v4 only
	encryptedPayload []byte
}

// Unlocked is an archive with a decrypted, parsed database, ready to be
// re-encrypted and written or inspected directly.
type Unlocked struct {
	header      KdbxHeader
	innerHeader KdbxInnerHeader
	major, minor uint16
	masterKey   *xcrypto.MasterKey
	database    *Database
	rawXML      []byte
}

// Open reads path and parses its outer envelope into a Locked archive.
func Open(path string) (*Locked, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &OpenError{Kind: OpenIo, Err: err}
	}
	defer f.Close()
	return FromReader(f)
}

// FromReader parses r's outer envelope into a Locked archive.
func FromReader(r io.Reader) (*Locked, error) {
	var magic1, magic2 uint32
	if err := binary.Read(r, binary.LittleEndian, &magic1); err != nil {
		return nil, &OpenError{Kind: OpenIo, Err: err}
	}
	if magic1 != keepassMagic {
		return nil, &OpenError{Kind: NonKeepassFormat, Err: fmt.Errorf("bad first magic 0x%08x", magic1)}
	}
	if err := binary.Read(r, binary.LittleEndian, &magic2); err != nil {
		return nil, &OpenError{Kind: OpenIo, Err: err}
	}
	if magic2 != kdbxMagic {
		return nil, &OpenError{Kind: UnsupportedFileFormat, Err: fmt.Errorf("bad second magic 0x%08x", magic2)}
	}

	var minor, major uint16
	if err := binary.Read(r, binary.LittleEndian, &minor); err != nil {
		return nil, &OpenError{Kind: OpenIo, Err: err}
	}
	if err := binary.Read(r, binary.LittleEndian, &major); err != nil {
		return nil, &OpenError{Kind: OpenIo, Err: err}
	}
	if major != 3 && major != 4 {
		return nil, &OpenError{Kind: UnsupportedMajorVersion, Err: fmt.Errorf("major version %d", major)}
	}
	v4 := major == 4

	// The header checksum and HMAC cover everything from the first magic
	// through EndOfHeader, exactly the bytes Write hashes.
	var headerBuf bytes.Buffer
	binary.Write(&headerBuf, binary.LittleEndian, magic1)
	binary.Write(&headerBuf, binary.LittleEndian, magic2)
	binary.Write(&headerBuf, binary.LittleEndian, minor)
	binary.Write(&headerBuf, binary.LittleEndian, major)
	tee := io.TeeReader(r, &headerBuf)
	header, err := readKdbxHeader(tee, v4)
	if err != nil {
		return nil, &OpenError{Kind: InvalidHeader, Err: err}
	}
	rawHeaderBytes := headerBuf.Bytes()

	var headerHmac []byte
	if v4 {
		var sha [32]byte
		if _, err := io.ReadFull(r, sha[:]); err != nil {
			return nil, &OpenError{Kind: OpenIo, Err: err}
		}
		actual := xcrypto.Sha256(rawHeaderBytes)
		if actual != sha {
			return nil, &OpenError{Kind: ChecksumFailed, Err: fmt.Errorf("outer header checksum mismatch")}
		}
		headerHmac = make([]byte, 32)
		if _, err := io.ReadFull(r, headerHmac); err != nil {
			return nil, &OpenError{Kind: OpenIo, Err: err}
		}
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, &OpenError{Kind: OpenIo, Err: err}
	}

	return &Locked{
		header:           header,
		rawHeaderBytes:   rawHeaderBytes,
		major:            major,
		minor:            minor,
		headerHmac:       headerHmac,
		encryptedPayload: payload,
	}, nil
}

// Header returns the parsed outer header.
func (l *Locked) Header() KdbxHeader { return l.header }

// Version returns the archive's (major, minor) version numbers.
func (l *Locked) Version() (major, minor uint16) { return l.major, l.minor }

// Unlock derives keys from key and the archive's KDF params, verifies
// integrity, and decrypts the payload. On failure l is left unchanged, so
// the caller can retry with different credentials.
func (l *Locked) Unlock(key CompositeKey) (*Unlocked, error) {
	composed, err := key.compose()
	if err != nil {
		return nil, &UnlockError{Kind: KeyGen, Err: err}
	}
	masterBytes, err := deriveMasterKey(composed, l.header.KdfParams)
	if err != nil {
		return nil, &UnlockError{Kind: KeyGen, Err: err}
	}
	masterKey := xcrypto.MasterKey{Bytes: masterBytes}
	cipherKey := masterKey.CipherKey(l.header.MasterSeed)
	hmacKeyBase := masterKey.HmacKeyBase(l.header.MasterSeed)

	cipherKind, err := cipherKind(l.header.Cipher)
	if err != nil {
		return nil, &UnlockError{Kind: Decrypt, Err: err}
	}
	gzipped := l.header.CompressionType == CompressionGzip

	if l.major == 4 {
		if !hmacKeyBase.VerifyHeaderBlock(l.headerHmac, l.rawHeaderBytes) {
			return nil, &UnlockError{Kind: HmacInvalid, Err: fmt.Errorf("outer header HMAC mismatch")}
		}
		decoded, err := stream.Kdbx4ReadStream(bytes.NewReader(l.encryptedPayload), hmacKeyBase, cipherKey[:], cipherKind, l.header.EncryptionIv, gzipped)
		if err != nil {
			return nil, unlockStreamError(err)
		}
		innerHeader, err := readKdbxInnerHeader(decoded)
		if err != nil {
			return nil, &UnlockError{Kind: InvalidInnerHeader, Err: err}
		}
		xmlBytes, err := io.ReadAll(decoded)
		if err != nil {
			return nil, &UnlockError{Kind: Decrypt, Err: err}
		}
		ks, err := innerKeystreamFor(innerHeader)
		if err != nil {
			return nil, &UnlockError{Kind: InvalidInnerHeader, Err: err}
		}
		db, err := unmarshalDatabase(xmlBytes, ks)
		if err != nil {
			return nil, &UnlockError{Kind: InvalidXml, Err: err}
		}
		return &Unlocked{
			header:      l.header,
			innerHeader: innerHeader,
			major:       l.major,
			minor:       l.minor,
			masterKey:   &masterKey,
			database:    db,
			rawXML:      xmlBytes,
		}, nil
	}

	decoded, err := stream.Kdbx3ReadStream(bytes.NewReader(l.encryptedPayload), cipherKey[:], cipherKind, l.header.EncryptionIv, gzipped, l.header.StreamStartBytes)
	if err != nil {
		return nil, unlockStreamError(err)
	}
	innerHeader := KdbxInnerHeader{
		InnerStreamCipherID: l.header.InnerRandomStreamID,
		InnerStreamKey:      l.header.ProtectedStreamKey,
	}
	xmlBytes, err := io.ReadAll(decoded)
	if err != nil {
		return nil, &UnlockError{Kind: Decrypt, Err: err}
	}
	ks, err := innerKeystreamFor(innerHeader)
	if err != nil {
		return nil, &UnlockError{Kind: InvalidInnerHeader, Err: err}
	}
	db, err := unmarshalDatabase(xmlBytes, ks)
	if err != nil {
		return nil, &UnlockError{Kind: InvalidXml, Err: err}
	}
	return &Unlocked{
		header:      l.header,
		innerHeader: innerHeader,
		major:       l.major,
		minor:       l.minor,
		masterKey:   &masterKey,
		database:    db,
		rawXML:      xmlBytes,
	}, nil
}

func unlockStreamError(err error) *UnlockError {
	if err == stream.ErrStartBytesInvalid {
		return &UnlockError{Kind: StartBytesInvalid, Err: err}
	}
	return &UnlockError{Kind: HmacInvalid, Err: err}
}

func deriveMasterKey(composed xcrypto.ComposedKey, params KdfParams) ([]byte, error) {
	switch params.Algorithm {
	case KdfArgon2d, KdfArgon2id:
		variant := xcrypto.Argon2d
		if params.Algorithm == KdfArgon2id {
			variant = xcrypto.Argon2id
		}
		return xcrypto.DeriveArgon2(composed.Bytes, xcrypto.Argon2Params{
			Variant:     variant,
			Salt:        params.Salt,
			Iterations:  params.Iterations,
			MemoryBytes: params.MemoryBytes,
			Lanes:       params.Lanes,
			Version:     params.Version,
		})
	case KdfAES256Kdbx4, KdfAES256Kdbx31:
		return xcrypto.DeriveAesKdf(composed.Bytes, params.Salt, params.Rounds)
	default:
		return nil, fmt.Errorf("kdbx: unsupported KDF algorithm")
	}
}

func cipherKind(c Cipher) (stream.CipherKind, error) {
	switch c.known {
	case cipherAES128:
		return stream.CipherAES128, nil
	case cipherAES256:
		return stream.CipherAES256, nil
	case cipherTwoFish:
		return stream.CipherTwoFish, nil
	case cipherChaCha20:
		return stream.CipherChaCha20, nil
	default:
		return 0, fmt.Errorf("kdbx: unsupported cipher %s", c)
	}
}

// FromDatabase builds a fresh Unlocked archive around db, using OS-random
// seeds and the default generated parameters (AES-256, no compression,
// Argon2d, ChaCha20 inner stream).
func FromDatabase(db *Database) (*Unlocked, error) {
	masterSeed := make([]byte, 32)
	if _, err := rand.Read(masterSeed); err != nil {
		return nil, err
	}
	iv := make([]byte, 16)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	innerKey := make([]byte, 44)
	if _, err := rand.Read(innerKey); err != nil {
		return nil, err
	}

	header := KdbxHeader{
		Cipher:          CipherAES256,
		CompressionType: CompressionNone,
		MasterSeed:      masterSeed,
		EncryptionIv:    iv,
		KdfParams: KdfParams{
			Algorithm:   KdfArgon2d,
			MemoryBytes: 65535 * 1024,
			Version:     xcrypto.SupportedArgon2Version,
			Salt:        salt,
			Iterations:  10,
			Lanes:       2,
		},
	}
	innerHeader := KdbxInnerHeader{
		InnerStreamCipherID: InnerStreamChaCha20,
		InnerStreamKey:      innerKey,
	}

	return &Unlocked{
		header:      header,
		innerHeader: innerHeader,
		major:       4,
		minor:       0,
		database:    db,
	}, nil
}

// SetKey derives and stores the master key that Write will use. Must be
// called before Write on an archive built via FromDatabase.
func (u *Unlocked) SetKey(key CompositeKey) error {
	composed, err := key.compose()
	if err != nil {
		return &WriteError{Kind: MissingKeys, Err: err}
	}
	masterBytes, err := deriveMasterKey(composed, u.header.KdfParams)
	if err != nil {
		return &WriteError{Kind: MissingKeys, Err: err}
	}
	u.masterKey = &xcrypto.MasterKey{Bytes: masterBytes}
	return nil
}

// Database returns the decrypted/constructed database.
func (u *Unlocked) Database() *Database { return u.database }

// Header returns the archive's outer header.
func (u *Unlocked) Header() KdbxHeader { return u.header }

// InnerHeader returns the archive's inner header.
func (u *Unlocked) InnerHeader() KdbxInnerHeader { return u.innerHeader }

// RawXML returns the decrypted, decompressed XML document this archive
// was parsed from. It is nil for an archive built via FromDatabase that
// hasn't been written and re-read.
func (u *Unlocked) RawXML() []byte { return u.rawXML }

// Write serializes u to w as a v4 archive (§4.4 "Writing (v4 only)").
func (u *Unlocked) Write(w io.Writer) error {
	if u.masterKey == nil {
		return &WriteError{Kind: MissingKeys, Err: fmt.Errorf("SetKey was not called")}
	}

	var prelude bytes.Buffer
	binary.Write(&prelude, binary.LittleEndian, keepassMagic)
	binary.Write(&prelude, binary.LittleEndian, kdbxMagic)
	binary.Write(&prelude, binary.LittleEndian, uint16(0))
	binary.Write(&prelude, binary.LittleEndian, uint16(4))
	if err := writeKdbxHeader(&prelude, u.header, true); err != nil {
		return &WriteError{Kind: WriteIo, Err: err}
	}
	headerBytes := prelude.Bytes()

	cipherKey := u.masterKey.CipherKey(u.header.MasterSeed)
	hmacKeyBase := u.masterKey.HmacKeyBase(u.header.MasterSeed)

	if _, err := w.Write(headerBytes); err != nil {
		return &WriteError{Kind: WriteIo, Err: err}
	}
	sha := xcrypto.Sha256(headerBytes)
	if _, err := w.Write(sha[:]); err != nil {
		return &WriteError{Kind: WriteIo, Err: err}
	}
	headerHmac := hmacKeyBase.CalculateHeaderHmac(headerBytes)
	if _, err := w.Write(headerHmac); err != nil {
		return &WriteError{Kind: WriteIo, Err: err}
	}

	kind, err := cipherKind(u.header.Cipher)
	if err != nil {
		return &WriteError{Kind: WriteIo, Err: err}
	}
	gzipped := u.header.CompressionType == CompressionGzip
	pipeline, err := stream.NewKdbx4WriteStream(w, hmacKeyBase, cipherKey[:], kind, u.header.EncryptionIv, gzipped)
	if err != nil {
		return &WriteError{Kind: WriteIo, Err: err}
	}

	if err := writeKdbxInnerHeader(pipeline, u.innerHeader); err != nil {
		_ = pipeline.Finish()
		return &WriteError{Kind: WriteIo, Err: err}
	}
	ks, err := innerKeystreamFor(u.innerHeader)
	if err != nil {
		_ = pipeline.Finish()
		return &WriteError{Kind: XmlWrite, Err: err}
	}
	xmlBytes, err := marshalDatabase(u.database, ks)
	if err != nil {
		_ = pipeline.Finish()
		return &WriteError{Kind: XmlWrite, Err: err}
	}
	if _, err := pipeline.Write(xmlBytes); err != nil {
		_ = pipeline.Finish()
		return &WriteError{Kind: WriteIo, Err: err}
	}
	if err := pipeline.Finish(); err != nil {
		return &WriteError{Kind: WriteIo, Err: err}
	}
	return nil
}
