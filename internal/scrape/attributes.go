package scrape

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Attribute is a single product characteristic.
type Attribute struct {
	Name  string
	Value string
}

// Attributes is an ordered mapping of characteristic name to value. Names
// are trimmed and lower-cased on insert; setting an existing name replaces
// its value in place, so the order of first appearance survives duplicate
// rows on the page. The JSON form is a plain object whose key order follows
// the slice.
type Attributes []Attribute

// NormalizeAttributeName returns the canonical form of a characteristic name.
func NormalizeAttributeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Set inserts or replaces the value for name. Later writes win.
func (a *Attributes) Set(name, value string) {
	key := NormalizeAttributeName(name)
	if key == "" {
		return
	}
	for i := range *a {
		if (*a)[i].Name == key {
			(*a)[i].Value = value
			return
		}
	}
	*a = append(*a, Attribute{Name: key, Value: value})
}

// Get returns the value stored under name.
func (a Attributes) Get(name string) (string, bool) {
	key := NormalizeAttributeName(name)
	for _, attr := range a {
		if attr.Name == key {
			return attr.Value, true
		}
	}
	return "", false
}

// MarshalJSON renders the attributes as a JSON object in insertion order.
func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, attr := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(attr.Name)
		if err != nil {
			return nil, fmt.Errorf("marshal attribute name %q: %w", attr.Name, err)
		}
		value, err := json.Marshal(attr.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal attribute value for %q: %w", attr.Name, err)
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses a JSON object preserving its key order.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode attributes: %w", err)
	}
	if tok != json.Delim('{') {
		return fmt.Errorf("decode attributes: expected object, got %v", tok)
	}
	out := Attributes{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode attribute name: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("decode attribute name: unexpected token %v", keyTok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode attribute value for %q: %w", key, err)
		}
		out.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode attributes: %w", err)
	}
	*a = out
	return nil
}
