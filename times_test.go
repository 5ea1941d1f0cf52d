package kdbx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampV3RoundTrip(t *testing.T) {
	want := NewTimestamp(time.Date(2020, 4, 1, 1, 1, 3, 0, time.UTC))

	text, err := want.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2020-04-01T01:01:03Z", string(text))

	var got Timestamp
	require.NoError(t, got.UnmarshalText(text))
	assert.True(t, got.Formatted)
	assert.True(t, want.Time.Equal(got.Time))
}

func TestTimestampV4RoundTrip(t *testing.T) {
	want := Timestamp{Time: time.Date(2020, 4, 1, 1, 1, 3, 0, time.UTC), Formatted: false}

	text, err := want.MarshalText()
	require.NoError(t, err)

	var got Timestamp
	require.NoError(t, got.UnmarshalText(text))
	assert.False(t, got.Formatted)
	assert.True(t, want.Time.Equal(got.Time))
}

func TestTimestampEpoch(t *testing.T) {
	epoch := Timestamp{Time: time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC), Formatted: false}
	text, err := epoch.MarshalText()
	require.NoError(t, err)

	var got Timestamp
	require.NoError(t, got.UnmarshalText(text))
	assert.Equal(t, int64(0), got.Time.Unix()-keepassEpochOffset)
}
