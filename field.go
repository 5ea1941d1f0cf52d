package kdbx

import "encoding/xml"

// ValueState classifies a Field's value along two independent axes that
// KDBX conflates into a single wire representation: whether the content
// is masked by the inner keystream, and whether it is present at all.
type ValueState int

const (
	// ValueStandard is plaintext, non-empty content.
	ValueStandard ValueState = iota
	// ValueProtected is content masked by the inner keystream on disk.
	ValueProtected
	// ValueEmpty is an unprotected, empty value.
	ValueEmpty
	// ValueProtectEmpty is an empty value that still carries the
	// Protected attribute (and so still participates in keystream
	// sequencing, consuming zero bytes of it).
	ValueProtectEmpty
)

// Field is one key/value pair attached to an Entry (Title, UserName,
// Password, URL, Notes, or a custom field).
type Field struct {
	Key   string
	State ValueState
	Value string
}

// IsProtected reports whether this field's value is masked by the inner
// keystream on disk.
func (f Field) IsProtected() bool {
	return f.State == ValueProtected || f.State == ValueProtectEmpty
}

// docValue is the <Value> element's wire shape: chardata content plus an
// optional Protected attribute. Custom (Un)MarshalXML is needed because
// the attribute must be omitted entirely for unprotected values rather
// than written as Protected="False".
type docValue struct {
	Content   string
	Protected bool
	hasAttr   bool
}

func (v docValue) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if v.hasAttr {
		attrVal := "False"
		if v.Protected {
			attrVal = "True"
		}
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "Protected"}, Value: attrVal})
	}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if v.Content != "" {
		if err := e.EncodeToken(xml.CharData(v.Content)); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

func (v *docValue) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "Protected" {
			v.hasAttr = true
			v.Protected = parseBoolAttr(attr.Value)
		}
	}
	var content string
	if err := d.DecodeElement(&content, &start); err != nil {
		return err
	}
	v.Content = content
	return nil
}

func parseBoolAttr(s string) bool {
	switch s {
	case "True", "true", "1", "Yes", "yes", "enabled", "checked":
		return true
	default:
		return false
	}
}

// docField is one <String><Key/><Value/></String> record.
type docField struct {
	Key   string   `xml:"Key"`
	Value docValue `xml:"Value"`
}

func fieldToDoc(f Field) docField {
	switch f.State {
	case ValueStandard:
		return docField{Key: f.Key, Value: docValue{Content: f.Value, hasAttr: false}}
	case ValueProtected:
		// Content still holds plaintext here; the inner-keystream pass
		// overwrites it with base64 ciphertext before marshaling.
		return docField{Key: f.Key, Value: docValue{Content: f.Value, hasAttr: true, Protected: true}}
	case ValueEmpty:
		return docField{Key: f.Key, Value: docValue{hasAttr: false}}
	default: // ValueProtectEmpty
		return docField{Key: f.Key, Value: docValue{hasAttr: true, Protected: true}}
	}
}

func docToField(d docField) Field {
	f := Field{Key: d.Key, Value: d.Value.Content}
	switch {
	case d.Value.Protected && d.Value.Content == "":
		f.State = ValueProtectEmpty
	case d.Value.Protected:
		f.State = ValueProtected
	case d.Value.Content == "":
		f.State = ValueEmpty
	default:
		f.State = ValueStandard
	}
	return f
}
