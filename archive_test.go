package kdbx

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveWriteThenUnlockRoundTrip(t *testing.T) {
	db := NewDatabase("kdbx-test")
	db.Meta.DatabaseName = "Roundtrip"
	entry := NewEntry()
	entry.SetField(Field{Key: "Title", State: ValueStandard, Value: "Example"})
	entry.SetField(Field{Key: "Password", State: ValueProtected, Value: "hunter2"})
	db.Root.AddEntry(entry)

	unlocked, err := FromDatabase(db)
	require.NoError(t, err)

	key := CompositeKey{Password: "correct horse battery staple"}
	require.NoError(t, unlocked.SetKey(key))

	var buf bytes.Buffer
	require.NoError(t, unlocked.Write(&buf))

	locked, err := FromReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	major, minor := locked.Version()
	assert.Equal(t, uint16(4), major)
	assert.Equal(t, uint16(0), minor)

	reopened, err := locked.Unlock(key)
	require.NoError(t, err)

	assert.Equal(t, "Roundtrip", reopened.Database().Meta.DatabaseName)
	got := reopened.Database().Root.FindEntryByTitle("Example")
	require.NotNil(t, got)
	pw, ok := got.Get("Password")
	require.True(t, ok)
	assert.Equal(t, "hunter2", pw)
}

func TestUnlockWrongPasswordFails(t *testing.T) {
	db := NewDatabase("kdbx-test")
	unlocked, err := FromDatabase(db)
	require.NoError(t, err)
	require.NoError(t, unlocked.SetKey(CompositeKey{Password: "right"}))

	var buf bytes.Buffer
	require.NoError(t, unlocked.Write(&buf))

	locked, err := FromReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	_, err = locked.Unlock(CompositeKey{Password: "wrong"})
	require.Error(t, err)
	var unlockErr *UnlockError
	require.ErrorAs(t, err, &unlockErr)
	assert.Equal(t, HmacInvalid, unlockErr.Kind)
}

func TestOpenRejectsNonKeepassMagic(t *testing.T) {
	_, err := FromReader(bytes.NewReader([]byte("not a kdbx file at all")))
	require.Error(t, err)
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, NonKeepassFormat, openErr.Kind)
}
