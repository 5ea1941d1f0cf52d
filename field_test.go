package kdbx

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldStateRoundTrip(t *testing.T) {
	cases := []Field{
		{Key: "Title", State: ValueStandard, Value: "hello"},
		{Key: "Password", State: ValueProtected, Value: "s3cr3t"},
		{Key: "Notes", State: ValueEmpty, Value: ""},
		{Key: "OTP", State: ValueProtectEmpty, Value: ""},
	}
	for _, f := range cases {
		doc := fieldToDoc(f)
		assert.Equal(t, f.Key, doc.Key)
		got := docToField(doc)
		assert.Equal(t, f, got)
	}
}

func TestDocValueXMLShape(t *testing.T) {
	standard := fieldToDoc(Field{Key: "Title", State: ValueStandard, Value: "hello"})
	out, err := xml.Marshal(standard.Value)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "Protected")

	protected := fieldToDoc(Field{Key: "Password", State: ValueProtected, Value: "s3cr3t"})
	out, err = xml.Marshal(protected.Value)
	require.NoError(t, err)
	assert.Contains(t, string(out), `Protected="True"`)
}

func TestIsProtected(t *testing.T) {
	assert.False(t, Field{State: ValueStandard}.IsProtected())
	assert.False(t, Field{State: ValueEmpty}.IsProtected())
	assert.True(t, Field{State: ValueProtected}.IsProtected())
	assert.True(t, Field{State: ValueProtectEmpty}.IsProtected())
}
