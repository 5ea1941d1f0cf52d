package kdbx

import (
	"encoding/xml"
	"fmt"
)

// Group is a node in the database's tree: a named container of Entries
// and child Groups. A Database has exactly one root Group.
type Group struct {
	UUID    UUID
	Name    string
	Entries []Entry
	Groups  []Group
	Times   Times
}

// NewGroup returns an empty Group with a fresh UUID and current Times.
func NewGroup(name string) Group {
	return Group{UUID: NewUUID(), Name: name, Times: NewTimes()}
}

// AddEntry appends e as a direct child of g.
func (g *Group) AddEntry(e Entry) { g.Entries = append(g.Entries, e) }

// AddGroup appends child as a direct subgroup of g.
func (g *Group) AddGroup(child Group) { g.Groups = append(g.Groups, child) }

// RemoveEntry deletes the direct-child entry with the given UUID and
// returns it. Unlike FindEntry, this does not recurse into subgroups:
// removal always happens at the level the caller names.
func (g *Group) RemoveEntry(id UUID) (Entry, bool) {
	for i, e := range g.Entries {
		if e.UUID == id {
			g.Entries = append(g.Entries[:i], g.Entries[i+1:]...)
			return e, true
		}
	}
	return Entry{}, false
}

// FindEntry searches g and all its subgroups, recursively, for an entry
// with the given UUID.
func (g *Group) FindEntry(id UUID) *Entry {
	for i := range g.Entries {
		if g.Entries[i].UUID == id {
			return &g.Entries[i]
		}
	}
	for i := range g.Groups {
		if found := g.Groups[i].FindEntry(id); found != nil {
			return found
		}
	}
	return nil
}

// FindEntryByTitle returns the first entry, searched recursively, whose
// Title field equals title.
func (g *Group) FindEntryByTitle(title string) *Entry {
	for i := range g.Entries {
		if g.Entries[i].Title() == title {
			return &g.Entries[i]
		}
	}
	for i := range g.Groups {
		if found := g.Groups[i].FindEntryByTitle(title); found != nil {
			return found
		}
	}
	return nil
}

// FindGroup searches g and all its subgroups, recursively, for a group
// with the given UUID.
func (g *Group) FindGroup(id UUID) *Group {
	if g.UUID == id {
		return g
	}
	for i := range g.Groups {
		if found := g.Groups[i].FindGroup(id); found != nil {
			return found
		}
	}
	return nil
}

// RecursiveEntries returns every entry in g and all its subgroups: the
// subgroups' entries (in subgroup order) come before g's own entries.
func (g *Group) RecursiveEntries() []*Entry {
	var out []*Entry
	for i := range g.Groups {
		out = append(out, g.Groups[i].RecursiveEntries()...)
	}
	for i := range g.Entries {
		out = append(out, &g.Entries[i])
	}
	return out
}

// RecursiveGroups returns g and every subgroup beneath it.
func (g *Group) RecursiveGroups() []*Group {
	out := []*Group{g}
	for i := range g.Groups {
		out = append(out, g.Groups[i].RecursiveGroups()...)
	}
	return out
}

// groupChildOrder records which child element type appeared first in the
// source document, so a re-serialized group replays the same interleaving
// the inner-keystream traversal used when it was first unlocked.
type groupChildOrder int

const (
	childOrderEntryFirst groupChildOrder = iota
	childOrderGroupFirst
)

// docGroup is a <Group> element's wire shape. It has a custom
// (Un)MarshalXML, rather than plain struct tags, purely to track and
// replay groupChildOrder across the Entry/Group sibling elements -- a
// detail that matters because the inner keystream is sequential and a
// re-lock must mask fields in the exact order the original unlock
// consumed them in.
//
// Grounded on gokeepasslib/v3/group.go's custom UnmarshalXML.
type docGroup struct {
	UUID    UUID
	Name    string
	Times   Times
	Entries []docEntry
	Groups  []docGroup
	order   groupChildOrder
}

func (g docGroup) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.EncodeElement(g.UUID, xml.StartElement{Name: xml.Name{Local: "UUID"}}); err != nil {
		return err
	}
	if err := e.EncodeElement(g.Name, xml.StartElement{Name: xml.Name{Local: "Name"}}); err != nil {
		return err
	}
	if err := e.EncodeElement(g.Times, xml.StartElement{Name: xml.Name{Local: "Times"}}); err != nil {
		return err
	}

	encodeEntries := func() error {
		for _, entry := range g.Entries {
			if err := e.EncodeElement(entry, xml.StartElement{Name: xml.Name{Local: "Entry"}}); err != nil {
				return err
			}
		}
		return nil
	}
	encodeGroups := func() error {
		for _, child := range g.Groups {
			if err := e.EncodeElement(child, xml.StartElement{Name: xml.Name{Local: "Group"}}); err != nil {
				return err
			}
		}
		return nil
	}

	if g.order == childOrderGroupFirst {
		if err := encodeGroups(); err != nil {
			return err
		}
		if err := encodeEntries(); err != nil {
			return err
		}
	} else {
		if err := encodeEntries(); err != nil {
			return err
		}
		if err := encodeGroups(); err != nil {
			return err
		}
	}

	return e.EncodeToken(start.End())
}

func (g *docGroup) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	orderSet := false
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "UUID":
				if err := d.DecodeElement(&g.UUID, &t); err != nil {
					return fmt.Errorf("kdbx: group UUID: %w", err)
				}
			case "Name":
				if err := d.DecodeElement(&g.Name, &t); err != nil {
					return err
				}
			case "Times":
				if err := d.DecodeElement(&g.Times, &t); err != nil {
					return err
				}
			case "Entry":
				var entry docEntry
				if err := d.DecodeElement(&entry, &t); err != nil {
					return err
				}
				g.Entries = append(g.Entries, entry)
				if !orderSet {
					g.order = childOrderEntryFirst
					orderSet = true
				}
			case "Group":
				var child docGroup
				if err := d.DecodeElement(&child, &t); err != nil {
					return err
				}
				g.Groups = append(g.Groups, child)
				if !orderSet {
					g.order = childOrderGroupFirst
					orderSet = true
				}
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			if t.Name == start.Name {
				return nil
			}
		}
	}
}

func groupToDoc(g Group) docGroup {
	entries := make([]docEntry, len(g.Entries))
	for i, e := range g.Entries {
		entries[i] = entryToDoc(e)
	}
	groups := make([]docGroup, len(g.Groups))
	for i, child := range g.Groups {
		groups[i] = groupToDoc(child)
	}
	return docGroup{UUID: g.UUID, Name: g.Name, Times: g.Times, Entries: entries, Groups: groups, order: childOrderEntryFirst}
}

func docToGroup(d docGroup) Group {
	entries := make([]Entry, len(d.Entries))
	for i, e := range d.Entries {
		entries[i] = docToEntry(e)
	}
	groups := make([]Group, len(d.Groups))
	for i, child := range d.Groups {
		groups[i] = docToGroup(child)
	}
	return Group{UUID: d.UUID, Name: d.Name, Times: d.Times, Entries: entries, Groups: groups}
}
