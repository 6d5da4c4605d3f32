package persist

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// FormatVersion is stamped into every saved file.
const FormatVersion = "1"

// Reserved top-level keys that can never name a parameter type.
const (
	keyLastSaved = "last_saved"
	keyVersion   = "version"
)

// File is the serialized bundle of all persisted parameter types. The
// on-disk layout is flat: each type name is a top-level key whose value is
// that type's document, alongside last_saved and version metadata.
//
// Top-level keys that are neither metadata nor JSON objects are carried
// through unmodified, so a save never destroys data written by a newer
// format revision.
type File struct {
	documents map[string]Document
	extras    map[string]json.RawMessage

	// LastSaved is the RFC 3339 timestamp of the most recent save.
	LastSaved string
	// Version is the format revision the file was written with.
	Version string
}

// NewFile creates an empty file stamped with the current format version.
func NewFile() *File {
	return &File{
		documents: make(map[string]Document),
		extras:    make(map[string]json.RawMessage),
		LastSaved: time.Now().UTC().Format(time.RFC3339),
		Version:   FormatVersion,
	}
}

// Document returns the stored document for a parameter type.
func (f *File) Document(typeName string) (Document, bool) {
	doc, ok := f.documents[typeName]
	return doc, ok
}

// SetDocument stores the document for a parameter type, replacing any
// previous document of the same name.
func (f *File) SetDocument(typeName string, doc Document) {
	if f.documents == nil {
		f.documents = make(map[string]Document)
	}
	f.documents[typeName] = doc
}

// TypeNames returns the stored type names in sorted order.
func (f *File) TypeNames() []string {
	names := make([]string, 0, len(f.documents))
	for name := range f.documents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON writes the flat layout: every document under its type name,
// unknown keys passed through, plus last_saved and version.
func (f *File) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.documents)+len(f.extras)+2)
	for key, raw := range f.extras {
		out[key] = raw
	}
	for name, doc := range f.documents {
		out[name] = doc
	}
	out[keyLastSaved] = f.LastSaved
	out[keyVersion] = f.Version
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat layout. Object-valued keys become
// documents; everything else is kept as an opaque extra.
func (f *File) UnmarshalJSON(data []byte) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return fmt.Errorf("decode file: %w", err)
	}

	f.documents = make(map[string]Document)
	f.extras = make(map[string]json.RawMessage)
	f.LastSaved = ""
	f.Version = ""

	for key, raw := range top {
		switch key {
		case keyLastSaved:
			if err := json.Unmarshal(raw, &f.LastSaved); err != nil {
				return fmt.Errorf("decode %s: %w", keyLastSaved, err)
			}
		case keyVersion:
			if err := json.Unmarshal(raw, &f.Version); err != nil {
				return fmt.Errorf("decode %s: %w", keyVersion, err)
			}
		default:
			var doc Document
			if err := json.Unmarshal(raw, &doc); err != nil {
				f.extras[key] = raw
				continue
			}
			f.documents[key] = doc
		}
	}
	return nil
}
