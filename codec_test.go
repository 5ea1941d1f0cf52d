package kdbx

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spectralops-labs/kdbx/internal/xcrypto"
)

func TestMarshalUnmarshalDatabaseRoundTrip(t *testing.T) {
	db := NewDatabase("kdbx-test")
	db.Meta.DatabaseName = "Sample"
	db.Meta.CustomData = []Field{
		{Key: "plugin.enabled", Value: "true", State: ValueStandard},
		{Key: "plugin.blank", Value: "", State: ValueEmpty},
	}
	entry := NewEntry()
	entry.SetField(Field{Key: "Title", State: ValueStandard, Value: "Example"})
	entry.SetField(Field{Key: "Password", State: ValueProtected, Value: "hunter2"})
	entry.SetField(Field{Key: "Notes", State: ValueEmpty})
	db.Root.AddEntry(entry)

	child := NewGroup("Sub")
	childEntry := NewEntry()
	childEntry.SetField(Field{Key: "Title", State: ValueStandard, Value: "Nested"})
	childEntry.SetField(Field{Key: "Password", State: ValueProtected, Value: "nested-secret"})
	child.AddEntry(childEntry)
	db.Root.AddGroup(child)

	innerKey := make([]byte, 64)
	for i := range innerKey {
		innerKey[i] = byte(i)
	}

	marshalKs, err := xcrypto.NewChaCha20InnerKeystream(innerKey)
	require.NoError(t, err)
	xmlBytes, err := marshalDatabase(db, marshalKs)
	require.NoError(t, err)

	unmarshalKs, err := xcrypto.NewChaCha20InnerKeystream(innerKey)
	require.NoError(t, err)
	got, err := unmarshalDatabase(xmlBytes, unmarshalKs)
	require.NoError(t, err)

	assert.Equal(t, "Sample", got.Meta.DatabaseName)
	gotEntry := got.Root.FindEntryByTitle("Example")
	require.NotNil(t, gotEntry)
	pw, ok := gotEntry.Get("Password")
	require.True(t, ok)
	assert.Equal(t, "hunter2", pw)

	nested := got.Root.FindEntryByTitle("Nested")
	require.NotNil(t, nested)
	nestedPw, _ := nested.Get("Password")
	assert.Equal(t, "nested-secret", nestedPw)

	require.Len(t, got.Meta.CustomData, 2)
	assert.Equal(t, "true", got.Meta.CustomData[0].Value)
	assert.Equal(t, ValueEmpty, got.Meta.CustomData[1].State)

	rfc3339Date := regexp.MustCompile(`\d{4}-\d{2}-\d{2}T`)
	assert.False(t, rfc3339Date.Match(xmlBytes), "marshalDatabase must emit v4 base64 timestamps, not v3.1 RFC3339 text")
}

func TestInnerKeystreamForRejectsArcFour(t *testing.T) {
	_, err := innerKeystreamFor(KdbxInnerHeader{InnerStreamCipherID: InnerStreamArcFour})
	require.Error(t, err)
}

func TestInnerKeystreamForSalsa20(t *testing.T) {
	ks, err := innerKeystreamFor(KdbxInnerHeader{InnerStreamCipherID: InnerStreamSalsa20, InnerStreamKey: []byte("a-key")})
	require.NoError(t, err)
	require.NotNil(t, ks)
}
