package kdb

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildKdbFile(t *testing.T, cipherFlag uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, keepassMagic))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, kdbMagic))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, cipherFlag))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(1))) // version
	buf.Write(make([]byte, 16))                                           // master seed
	buf.Write(make([]byte, 16))                                           // iv
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(0))) // group count
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(0))) // entry count
	buf.Write(make([]byte, 32))                                           // contents hash
	buf.Write(make([]byte, 32))                                           // transform seed
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(6000))) // key rounds
	return buf.Bytes()
}

func TestFromReaderParsesHeader(t *testing.T) {
	raw := buildKdbFile(t, aesHeaderFlag)
	locked, err := FromReader(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, CipherAES128, locked.Header().Cipher)
	assert.Equal(t, uint32(6000), locked.Header().KeyRounds)
}

func TestFromReaderRejectsWrongMagic(t *testing.T) {
	_, err := FromReader(bytes.NewReader([]byte("definitely not a keepass file")))
	require.Error(t, err)
	assert.IsType(t, NonKeepassFormatError{}, err)
}

func TestUnlockIsNotImplemented(t *testing.T) {
	raw := buildKdbFile(t, twoFishHeaderFlag)
	locked, err := FromReader(bytes.NewReader(raw))
	require.NoError(t, err)

	same, unlocked, err := locked.Unlock("password", nil)
	require.ErrorIs(t, err, ErrUnlockNotImplemented)
	assert.Nil(t, unlocked)
	assert.Same(t, locked, same)
}
