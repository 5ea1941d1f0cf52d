package kdbx

import "time"

// Entry is a single password record: a set of key/value Fields plus a
// non-recursive History of prior versions.
type Entry struct {
	UUID    UUID
	Fields  []Field
	History []Entry
	Times   Times
}

// NewEntry returns an empty Entry with a fresh UUID and current Times.
func NewEntry() Entry {
	return Entry{UUID: NewUUID(), Times: NewTimes()}
}

// Get returns the value of the field named key, and whether it was found.
func (e Entry) Get(key string) (string, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Title returns the "Title" field's value, or "" if absent.
func (e Entry) Title() string { v, _ := e.Get("Title"); return v }

// Username returns the "UserName" field's value, or "" if absent.
func (e Entry) Username() string { v, _ := e.Get("UserName"); return v }

// Password returns the "Password" field's value, or "" if absent.
func (e Entry) Password() string { v, _ := e.Get("Password"); return v }

// URL returns the "URL" field's value, or "" if absent.
func (e Entry) URL() string { v, _ := e.Get("URL"); return v }

// Notes returns the "Notes" field's value, or "" if absent.
func (e Entry) Notes() string { v, _ := e.Get("Notes"); return v }

// SetField adds or replaces the field named key, preserving its position
// if it already existed.
func (e *Entry) SetField(f Field) {
	for i := range e.Fields {
		if e.Fields[i].Key == f.Key {
			e.Fields[i] = f
			return
		}
	}
	e.Fields = append(e.Fields, f)
}

// RemoveField deletes every field named key.
func (e *Entry) RemoveField(key string) {
	for i := len(e.Fields) - 1; i >= 0; i-- {
		if e.Fields[i].Key == key {
			e.Fields = append(e.Fields[:i], e.Fields[i+1:]...)
		}
	}
}

// NewVersion appends a copy of e's current state (minus its own history,
// to avoid unbounded nesting) to e.History, and bumps its modification
// time. Call this before mutating Fields when the prior value should be
// recoverable.
func (e *Entry) NewVersion() {
	snapshot := Entry{UUID: e.UUID, Fields: append([]Field(nil), e.Fields...), Times: e.Times}
	e.History = append(e.History, snapshot)
	e.Times.LastModificationTime = NewTimestamp(time.Now())
}

// docEntry is an <Entry> element's wire shape.
type docEntry struct {
	UUID    UUID        `xml:"UUID"`
	Times   Times       `xml:"Times"`
	Fields  []docField  `xml:"String"`
	History *docHistory `xml:"History,omitempty"`
}

type docHistory struct {
	Entries []docEntry `xml:"Entry"`
}

func entryToDoc(e Entry) docEntry {
	fields := make([]docField, len(e.Fields))
	for i, f := range e.Fields {
		fields[i] = fieldToDoc(f)
	}
	d := docEntry{UUID: e.UUID, Times: e.Times, Fields: fields}
	if len(e.History) > 0 {
		hist := make([]docEntry, len(e.History))
		for i, h := range e.History {
			hist[i] = entryToDoc(h)
		}
		d.History = &docHistory{Entries: hist}
	}
	return d
}

func docToEntry(d docEntry) Entry {
	fields := make([]Field, len(d.Fields))
	for i, f := range d.Fields {
		fields[i] = docToField(f)
	}
	e := Entry{UUID: d.UUID, Times: d.Times, Fields: fields}
	if d.History != nil {
		e.History = make([]Entry, len(d.History.Entries))
		for i, h := range d.History.Entries {
			e.History[i] = docToEntry(h)
		}
	}
	return e
}
