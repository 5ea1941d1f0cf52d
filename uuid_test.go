package kdbx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDRoundTrip(t *testing.T) {
	u := NewUUID()
	require.False(t, u.IsZero())

	text, err := u.MarshalText()
	require.NoError(t, err)

	var got UUID
	require.NoError(t, got.UnmarshalText(text))
	assert.Equal(t, u, got)
}

func TestUUIDEmptyTextDecodesToZero(t *testing.T) {
	var got UUID
	require.NoError(t, got.UnmarshalText(nil))
	assert.True(t, got.IsZero())
}

func TestUUIDUnmarshalRejectsWrongLength(t *testing.T) {
	var got UUID
	err := got.UnmarshalText([]byte("AAAA"))
	require.Error(t, err)
}
