package kdbx

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupTreeOperations(t *testing.T) {
	root := NewGroup("Root")
	child := NewGroup("Child")
	entry := NewEntry()
	entry.SetField(Field{Key: "Title", State: ValueStandard, Value: "top-level"})
	root.AddEntry(entry)

	nested := NewEntry()
	nested.SetField(Field{Key: "Title", State: ValueStandard, Value: "nested"})
	child.AddEntry(nested)
	root.AddGroup(child)

	require.NotNil(t, root.FindEntry(nested.UUID))
	assert.Equal(t, "nested", root.FindEntry(nested.UUID).Title())

	// RemoveEntry is non-recursive: it must not reach into subgroups.
	_, ok := root.RemoveEntry(nested.UUID)
	assert.False(t, ok)

	removed, ok := root.RemoveEntry(entry.UUID)
	require.True(t, ok)
	assert.Equal(t, entry, removed)

	assert.Len(t, root.RecursiveEntries(), 1)
	assert.Len(t, root.RecursiveGroups(), 2)
}

func TestDocGroupPreservesChildOrder(t *testing.T) {
	xmlDoc := `<Group>
		<UUID></UUID>
		<Name>G</Name>
		<Times></Times>
		<Group><UUID></UUID><Name>Sub</Name><Times></Times></Group>
		<Entry><UUID></UUID><Times></Times></Entry>
	</Group>`

	var g docGroup
	require.NoError(t, xml.Unmarshal([]byte(xmlDoc), &g))
	assert.Equal(t, childOrderGroupFirst, g.order)
	require.Len(t, g.Groups, 1)
	require.Len(t, g.Entries, 1)

	out, err := xml.Marshal(g)
	require.NoError(t, err)

	var reparsed docGroup
	require.NoError(t, xml.Unmarshal(out, &reparsed))
	assert.Equal(t, childOrderGroupFirst, reparsed.order)
}

func TestEntryNewVersion(t *testing.T) {
	e := NewEntry()
	e.SetField(Field{Key: "Password", State: ValueProtected, Value: "old"})
	e.NewVersion()
	e.SetField(Field{Key: "Password", State: ValueProtected, Value: "new"})

	require.Len(t, e.History, 1)
	oldVal, ok := e.History[0].Get("Password")
	require.True(t, ok)
	assert.Equal(t, "old", oldVal)

	newVal, _ := e.Get("Password")
	assert.Equal(t, "new", newVal)
}
