package adapters

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"

	"github.com/memohai/provsync/internal/atomicfile"
)

// Document is a JSON object decoded without loss: unknown keys survive a
// read-modify-write cycle and numbers keep their literal form.
type Document map[string]any

// DecodeDocument parses data into a Document. Blank input is an empty one.
func DecodeDocument(data []byte) (Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Document{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc == nil {
		return Document{}, nil
	}
	return Document(doc), nil
}

// Encode renders the document with two-space indentation and sorted keys so
// that equal documents produce equal bytes.
func (d Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any(d)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Object returns the nested object at key, creating it (and replacing a
// non-object value) when needed.
func (d Document) Object(key string) Document {
	if m, ok := d[key].(map[string]any); ok {
		return Document(m)
	}
	if m, ok := d[key].(Document); ok {
		return m
	}
	m := map[string]any{}
	d[key] = m
	return Document(m)
}

// Lookup returns the nested object at key without creating it.
func (d Document) Lookup(key string) (Document, bool) {
	switch m := d[key].(type) {
	case map[string]any:
		return Document(m), true
	case Document:
		return m, true
	}
	return nil, false
}

// String returns the string at key, or "".
func (d Document) String(key string) string {
	if s, ok := d[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// SetOrDelete stores value at key, or deletes key when value is empty.
func (d Document) SetOrDelete(key, value string) {
	if value == "" {
		delete(d, key)
		return
	}
	d[key] = value
}

// ReadDocument loads the JSON object at path. exists reports whether the
// file was present.
func ReadDocument(path string) (doc Document, exists bool, err error) {
	data, exists, err := atomicfile.Read(path)
	if err != nil || !exists {
		return Document{}, exists, err
	}
	doc, err = DecodeDocument(data)
	return doc, true, err
}

// UpdateDocument merges fn's edits into the JSON object at path and replaces
// the file atomically. A malformed existing file is left alone and reported.
// When fn leaves the document semantically unchanged the file is not
// touched, so a removal from a missing file creates nothing.
func UpdateDocument(path string, perm fs.FileMode, fn func(doc Document) error) (atomicfile.Result, error) {
	return atomicfile.Update(path, perm, func(current []byte, _ bool) ([]byte, error) {
		doc, err := DecodeDocument(current)
		if err != nil {
			return nil, err
		}
		before, err := doc.Encode()
		if err != nil {
			return nil, err
		}
		if err := fn(doc); err != nil {
			return nil, err
		}
		after, err := doc.Encode()
		if err != nil {
			return nil, err
		}
		if bytes.Equal(before, after) {
			return nil, nil
		}
		return after, nil
	})
}

// Int reads an integer decoded from JSON or TOML.
func Int(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
