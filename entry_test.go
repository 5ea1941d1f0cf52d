package kdbx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoveFieldDeletesAllMatches(t *testing.T) {
	e := NewEntry()
	e.Fields = append(e.Fields,
		Field{Key: "Tag", State: ValueStandard, Value: "one"},
		Field{Key: "Title", State: ValueStandard, Value: "kept"},
		Field{Key: "Tag", State: ValueStandard, Value: "two"},
		Field{Key: "Tag", State: ValueStandard, Value: "three"},
	)

	e.RemoveField("Tag")

	require.Len(t, e.Fields, 1)
	assert.Equal(t, "Title", e.Fields[0].Key)
	_, ok := e.Get("Tag")
	assert.False(t, ok)
}
