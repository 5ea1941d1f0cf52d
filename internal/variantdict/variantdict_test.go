package variantdict

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	d := New()
	d.Set("$UUID", Array([]byte{1, 2, 3, 4}))
	d.Set("M", Uint64(65536))
	d.Set("V", Uint32(0x13))
	d.Set("I", Int64(-5))
	d.Set("P", Int32(-2))
	d.Set("flag", Bool(true))
	d.Set("name", String("argon2"))

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, d))

	parsed, err := Read(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	for _, key := range d.Keys() {
		want, _ := d.Get(key)
		got, ok := parsed.Get(key)
		require.True(t, ok, "missing key %q", key)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, d.Keys(), parsed.Keys())
}

func TestReadRejectsNewerMajorVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x02}) // major = 2
	buf.WriteByte(0x00)           // immediate end-of-dict

	_, err := Read(&buf)
	require.Error(t, err)
	var versionErr *UnsupportedVersionError
	require.ErrorAs(t, err, &versionErr)
	assert.Equal(t, byte(2), versionErr.Major)
}

func TestDecodeValueRejectsWrongSize(t *testing.T) {
	_, err := decodeValue(TagUint32, []byte{1, 2, 3})
	require.Error(t, err)
	var sizeErr *InvalidSizeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, 4, sizeErr.Expected)
	assert.Equal(t, 3, sizeErr.Actual)
}

func TestRemove(t *testing.T) {
	d := New()
	d.Set("a", Uint32(1))
	d.Set("b", Uint32(2))

	v, ok := d.Remove("a")
	require.True(t, ok)
	assert.Equal(t, uint32(1), v.U32)
	assert.Equal(t, []string{"b"}, d.Keys())

	_, ok = d.Remove("a")
	assert.False(t, ok)
}
