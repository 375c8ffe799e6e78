// Package json provides the JSON text Format.
package json

import (
	"bytes"
	"encoding/json"

	"github.com/zoobzio/derive"
)

// ContentType is the MIME type of JSON text.
const ContentType = "application/json"

// jsonFormat implements derive.Format for JSON text.
type jsonFormat struct {
	parse  func([]byte) (derive.Value, error)
	indent string
}

// New returns a JSON format that renders compact text.
func New() derive.Format {
	return &jsonFormat{parse: derive.ParseJSON}
}

// NewJSONC returns a JSON format whose parser also accepts comments and
// trailing commas. Output is plain JSON.
func NewJSONC() derive.Format {
	return &jsonFormat{parse: derive.ParseJSONC}
}

// NewIndent returns a JSON format that renders one member or element per
// line, nested with indent.
func NewIndent(indent string) derive.Format {
	return &jsonFormat{parse: derive.ParseJSON, indent: indent}
}

// ContentType returns the MIME type for JSON.
func (*jsonFormat) ContentType() string {
	return ContentType
}

// Format renders v as JSON text.
func (f *jsonFormat) Format(v derive.Value) ([]byte, error) {
	data := derive.FormatJSON(v)
	if f.indent == "" {
		return data, nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", f.indent); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Parse reads a single JSON document.
func (f *jsonFormat) Parse(data []byte) (derive.Value, error) {
	return f.parse(data)
}
