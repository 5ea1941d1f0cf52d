package kdbx

import "encoding/xml"

// MemoryProtection records which standard entry fields the original
// writer intended to keep masked by the inner keystream. It is advisory
// metadata carried from the source file; this library itself decides
// protection per-Field via ValueState, not from these flags.
type MemoryProtection struct {
	ProtectTitle    bool
	ProtectUserName bool
	ProtectPassword bool
	ProtectURL      bool
	ProtectNotes    bool
}

// Meta holds database-wide settings and descriptive fields.
type Meta struct {
	Generator           string
	DatabaseName        string
	DatabaseDescription string
	MemoryProtection    MemoryProtection
	// CustomData holds arbitrary plugin-defined key/value pairs attached
	// to the database as a whole, rather than to any single entry.
	CustomData []Field
}

// Database is a full KeePass database: its settings plus a tree of
// groups rooted at exactly one Root group.
type Database struct {
	Meta Meta
	Root Group
}

// NewDatabase returns a minimal Database with one root group, suitable
// as a starting point for FromDatabase.
func NewDatabase(generatorName string) *Database {
	return &Database{
		Meta: Meta{Generator: generatorName},
		Root: NewGroup("Root"),
	}
}

// docCustomDataItem is a <CustomData><Item> record: a plain key/value
// pair, never masked by the inner keystream.
type docCustomDataItem struct {
	Key   string `xml:"Key"`
	Value string `xml:"Value"`
}

type docCustomData struct {
	Items []docCustomDataItem `xml:"Item"`
}

type docMemoryProtection struct {
	ProtectTitle    boolText `xml:"ProtectTitle"`
	ProtectUserName boolText `xml:"ProtectUserName"`
	ProtectPassword boolText `xml:"ProtectPassword"`
	ProtectURL      boolText `xml:"ProtectURL"`
	ProtectNotes    boolText `xml:"ProtectNotes"`
}

type docMeta struct {
	Generator           string              `xml:"Generator"`
	DatabaseName        string              `xml:"DatabaseName"`
	DatabaseDescription string              `xml:"DatabaseDescription"`
	MemoryProtection    docMemoryProtection `xml:"MemoryProtection"`
	CustomData          docCustomData       `xml:"CustomData"`
}

type docRoot struct {
	Group docGroup `xml:"Group"`
}

type docKeePassFile struct {
	XMLName xml.Name `xml:"KeePassFile"`
	Meta    docMeta  `xml:"Meta"`
	Root    docRoot  `xml:"Root"`
}

func databaseToDoc(db *Database) docKeePassFile {
	items := make([]docCustomDataItem, len(db.Meta.CustomData))
	for i, f := range db.Meta.CustomData {
		items[i] = docCustomDataItem{Key: f.Key, Value: f.Value}
	}
	return docKeePassFile{
		Meta: docMeta{
			Generator:           db.Meta.Generator,
			DatabaseName:        db.Meta.DatabaseName,
			DatabaseDescription: db.Meta.DatabaseDescription,
			MemoryProtection: docMemoryProtection{
				ProtectTitle:    boolText(db.Meta.MemoryProtection.ProtectTitle),
				ProtectUserName: boolText(db.Meta.MemoryProtection.ProtectUserName),
				ProtectPassword: boolText(db.Meta.MemoryProtection.ProtectPassword),
				ProtectURL:      boolText(db.Meta.MemoryProtection.ProtectURL),
				ProtectNotes:    boolText(db.Meta.MemoryProtection.ProtectNotes),
			},
			CustomData: docCustomData{Items: items},
		},
		Root: docRoot{Group: groupToDoc(db.Root)},
	}
}

func docToDatabase(d docKeePassFile) *Database {
	customData := make([]Field, len(d.Meta.CustomData.Items))
	for i, item := range d.Meta.CustomData.Items {
		state := ValueStandard
		if item.Value == "" {
			state = ValueEmpty
		}
		customData[i] = Field{Key: item.Key, Value: item.Value, State: state}
	}
	return &Database{
		Meta: Meta{
			Generator:           d.Meta.Generator,
			DatabaseName:        d.Meta.DatabaseName,
			DatabaseDescription: d.Meta.DatabaseDescription,
			MemoryProtection: MemoryProtection{
				ProtectTitle:    bool(d.Meta.MemoryProtection.ProtectTitle),
				ProtectUserName: bool(d.Meta.MemoryProtection.ProtectUserName),
				ProtectPassword: bool(d.Meta.MemoryProtection.ProtectPassword),
				ProtectURL:      bool(d.Meta.MemoryProtection.ProtectURL),
				ProtectNotes:    bool(d.Meta.MemoryProtection.ProtectNotes),
			},
			CustomData: customData,
		},
		Root: docToGroup(d.Root.Group),
	}
}
