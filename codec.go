package kdbx

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"

	"github.com/spectralops-labs/kdbx/internal/xcrypto"
)

// innerKeystreamFor builds the stream cipher that masks/unmasks protected
// field values, per the inner header's chosen algorithm. ArcFour is a
// recognized id but not one this library can produce a keystream for.
func innerKeystreamFor(h KdbxInnerHeader) (xcrypto.StreamCipher, error) {
	switch h.InnerStreamCipherID {
	case InnerStreamChaCha20:
		return xcrypto.NewChaCha20InnerKeystream(h.InnerStreamKey)
	case InnerStreamSalsa20:
		return xcrypto.NewSalsa20InnerKeystream(h.InnerStreamKey), nil
	case InnerStreamArcFour:
		return nil, fmt.Errorf("kdbx: ArcFour inner stream cipher is not supported")
	default:
		return nil, fmt.Errorf("kdbx: unknown inner stream cipher id %d", h.InnerStreamCipherID)
	}
}

// unmarshalDatabase parses xmlBytes into a Database, unmasking protected
// field values with ks in document order as it goes.
func unmarshalDatabase(xmlBytes []byte, ks xcrypto.StreamCipher) (*Database, error) {
	var doc docKeePassFile
	if err := xml.Unmarshal(xmlBytes, &doc); err != nil {
		return nil, fmt.Errorf("kdbx: parsing database xml: %w", err)
	}
	if err := unlockGroup(&doc.Root.Group, ks); err != nil {
		return nil, err
	}
	return docToDatabase(doc), nil
}

// marshalDatabase serializes db to XML bytes, masking protected field
// values with ks in document order as it goes. Only the v4 writer is
// supported, so every <Times> datetime is forced into the v4 base64
// seconds-since-epoch form rather than v3.1's RFC3339 text.
func marshalDatabase(db *Database, ks xcrypto.StreamCipher) ([]byte, error) {
	doc := databaseToDoc(db)
	setDocGroupTimesFormatted(&doc.Root.Group, false)
	if err := lockGroup(&doc.Root.Group, ks); err != nil {
		return nil, err
	}
	out, err := xml.MarshalIndent(doc, "", "\t")
	if err != nil {
		return nil, fmt.Errorf("kdbx: encoding database xml: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// setDocGroupTimesFormatted recurses through g, its entries (and their
// history), and its subgroups, switching every Times value between v3.1
// (RFC3339 text) and v4 (base64 seconds) encoding ahead of a write.
func setDocGroupTimesFormatted(g *docGroup, formatted bool) {
	g.Times.setFormatted(formatted)
	for i := range g.Entries {
		setDocEntryTimesFormatted(&g.Entries[i], formatted)
	}
	for i := range g.Groups {
		setDocGroupTimesFormatted(&g.Groups[i], formatted)
	}
}

func setDocEntryTimesFormatted(e *docEntry, formatted bool) {
	e.Times.setFormatted(formatted)
	if e.History != nil {
		for i := range e.History.Entries {
			setDocEntryTimesFormatted(&e.History.Entries[i], formatted)
		}
	}
}

// unlockGroup walks g in document order -- respecting the recorded
// Entry/Group interleaving -- decrypting every protected field value in
// place.
//
// Grounded on gokeepasslib/v3/crypto.go's StreamManager.UnlockProtectedGroup.
func unlockGroup(g *docGroup, ks xcrypto.StreamCipher) error {
	unlockEntries := func() error {
		for i := range g.Entries {
			if err := unlockEntry(&g.Entries[i], ks); err != nil {
				return err
			}
		}
		return nil
	}
	unlockGroups := func() error {
		for i := range g.Groups {
			if err := unlockGroup(&g.Groups[i], ks); err != nil {
				return err
			}
		}
		return nil
	}

	if g.order == childOrderGroupFirst {
		if err := unlockGroups(); err != nil {
			return err
		}
		return unlockEntries()
	}
	if err := unlockEntries(); err != nil {
		return err
	}
	return unlockGroups()
}

func unlockEntry(e *docEntry, ks xcrypto.StreamCipher) error {
	for i := range e.Fields {
		if err := unlockValue(&e.Fields[i].Value, ks); err != nil {
			return fmt.Errorf("kdbx: unlocking field %q: %w", e.Fields[i].Key, err)
		}
	}
	if e.History != nil {
		for i := range e.History.Entries {
			if err := unlockEntry(&e.History.Entries[i], ks); err != nil {
				return err
			}
		}
	}
	return nil
}

func unlockValue(v *docValue, ks xcrypto.StreamCipher) error {
	if !v.Protected || v.Content == "" {
		return nil
	}
	cipherBytes, err := base64.StdEncoding.DecodeString(v.Content)
	if err != nil {
		return fmt.Errorf("decoding protected value base64: %w", err)
	}
	plain := make([]byte, len(cipherBytes))
	ks.XORKeyStream(plain, cipherBytes)
	v.Content = string(plain)
	return nil
}

// lockGroup is the inverse of unlockGroup: it masks plaintext field
// values with ks, in the same document order unlockGroup would have
// consumed them in.
//
// Grounded on gokeepasslib/v3/crypto.go's StreamManager.LockProtectedGroup.
func lockGroup(g *docGroup, ks xcrypto.StreamCipher) error {
	lockEntries := func() error {
		for i := range g.Entries {
			if err := lockEntry(&g.Entries[i], ks); err != nil {
				return err
			}
		}
		return nil
	}
	lockGroups := func() error {
		for i := range g.Groups {
			if err := lockGroup(&g.Groups[i], ks); err != nil {
				return err
			}
		}
		return nil
	}

	if g.order == childOrderGroupFirst {
		if err := lockGroups(); err != nil {
			return err
		}
		return lockEntries()
	}
	if err := lockEntries(); err != nil {
		return err
	}
	return lockGroups()
}

func lockEntry(e *docEntry, ks xcrypto.StreamCipher) error {
	for i := range e.Fields {
		lockValue(&e.Fields[i].Value, ks)
	}
	if e.History != nil {
		for i := range e.History.Entries {
			if err := lockEntry(&e.History.Entries[i], ks); err != nil {
				return err
			}
		}
	}
	return nil
}

func lockValue(v *docValue, ks xcrypto.StreamCipher) {
	if !v.Protected || v.Content == "" {
		return
	}
	plain := []byte(v.Content)
	cipherBytes := make([]byte, len(plain))
	ks.XORKeyStream(cipherBytes, plain)
	v.Content = base64.StdEncoding.EncodeToString(cipherBytes)
}
