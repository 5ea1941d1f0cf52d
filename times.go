package kdbx

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"time"
)

// keepassEpochOffset is time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC).Unix(): the
// v4 datetime encoding counts seconds since 0001-01-01, not the Unix epoch.
//
// Grounded on gokeepasslib/v3/wrappers/time.go's zeroUnixOffset.
const keepassEpochOffset int64 = -62135596800

// Timestamp is a KDBX datetime: RFC3339 text in v3.1, base64(int64 LE
// seconds-since-0001-01-01) in v4. Formatted selects which on Marshal;
// Unmarshal detects the encoding actually present.
type Timestamp struct {
	Time      time.Time
	Formatted bool
}

// NewTimestamp wraps t for v3-style (RFC3339) marshaling.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC(), Formatted: true}
}

// MarshalText implements encoding.TextMarshaler.
func (t Timestamp) MarshalText() ([]byte, error) {
	utc := t.Time.UTC()
	if t.Formatted {
		return []byte(utc.Format(time.RFC3339)), nil
	}
	seconds := utc.Unix() - keepassEpochOffset
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(seconds))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(buf)))
	base64.StdEncoding.Encode(out, buf)
	return out, nil
}

// UnmarshalText implements encoding.TextUnmarshaler, detecting whether the
// text is RFC3339 (v3) or base64 seconds-since-epoch (v4).
func (t *Timestamp) UnmarshalText(text []byte) error {
	if parsed, err := time.Parse(time.RFC3339, string(text)); err == nil {
		*t = Timestamp{Time: parsed.UTC(), Formatted: true}
		return nil
	}
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(text)))
	n, err := base64.StdEncoding.Decode(decoded, text)
	if err != nil {
		return err
	}
	var seconds int64
	if err := binary.Read(bytes.NewReader(decoded[:n]), binary.LittleEndian, &seconds); err != nil {
		return err
	}
	*t = Timestamp{Time: time.Unix(keepassEpochOffset+seconds, 0).UTC(), Formatted: false}
	return nil
}

// boolText marshals/unmarshals "True"/"False" the way KDBX XML does,
// instead of Go's default "true"/"false".
type boolText bool

func (b boolText) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	val := "False"
	if b {
		val = "True"
	}
	return e.EncodeElement(val, start)
}

func (b *boolText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var val string
	if err := d.DecodeElement(&val, &start); err != nil {
		return err
	}
	*b = val == "True" || val == "true" || val == "1"
	return nil
}

// Times holds the audit timestamps shared by groups and entries.
type Times struct {
	LastModificationTime Timestamp `xml:"LastModificationTime"`
	CreationTime          Timestamp `xml:"CreationTime"`
	LastAccessTime        Timestamp `xml:"LastAccessTime"`
	ExpiryTime            Timestamp `xml:"ExpiryTime"`
	LocationChanged       Timestamp `xml:"LocationChanged"`
	Expires               boolText  `xml:"Expires"`
	UsageCount            uint32    `xml:"UsageCount"`
}

// setFormatted switches every timestamp between v3 (RFC3339) and v4
// (base64 seconds) encoding ahead of a write.
func (t *Times) setFormatted(formatted bool) {
	t.LastModificationTime.Formatted = formatted
	t.CreationTime.Formatted = formatted
	t.LastAccessTime.Formatted = formatted
	t.ExpiryTime.Formatted = formatted
	t.LocationChanged.Formatted = formatted
}

// NewTimes returns a Times record with every timestamp set to now.
func NewTimes() Times {
	now := NewTimestamp(time.Now())
	return Times{
		LastModificationTime: now,
		CreationTime:         now,
		LastAccessTime:       now,
		ExpiryTime:           now,
		LocationChanged:      now,
	}
}
