// Package yaml provides a YAML Format.
//
// Mappings keep their key order, including repeated keys. Scalars map by
// their resolved tag: null, bool, int and float become the matching JSON
// kinds and every other scalar becomes a string.
package yaml

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/zoobzio/derive"
	"gopkg.in/yaml.v3"
)

// ContentType is the MIME type of YAML documents.
const ContentType = "application/yaml"

// ErrUnrepresentable indicates YAML content with no JSON equivalent.
var ErrUnrepresentable = errors.New("yaml value has no JSON form")

// yamlFormat implements derive.Format for YAML.
type yamlFormat struct{}

// New returns a YAML format.
func New() derive.Format {
	return &yamlFormat{}
}

// ContentType returns the MIME type for YAML.
func (*yamlFormat) ContentType() string {
	return ContentType
}

// Format renders v as a YAML document.
func (*yamlFormat) Format(v derive.Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(toNode(v)); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Parse reads a single YAML document. An empty document is null.
func (*yamlFormat) Parse(data []byte) (derive.Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return derive.Value{}, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return derive.Null(), nil
	}
	return fromNode(doc.Content[0])
}

func toNode(v derive.Value) *yaml.Node {
	switch v.Kind() {
	case derive.KindBool:
		b, _ := v.AsBool()
		return scalar("!!bool", fmt.Sprint(b))
	case derive.KindNumber:
		lit, _ := v.AsNumber()
		if strings.ContainsAny(lit, ".eE") {
			return scalar("!!float", lit)
		}
		return scalar("!!int", lit)
	case derive.KindString:
		s, _ := v.AsString()
		return scalar("!!str", s)
	case derive.KindArray:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.Items() {
			n.Content = append(n.Content, toNode(item))
		}
		return n
	case derive.KindObject:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, m := range v.Members() {
			n.Content = append(n.Content, scalar("!!str", m.Key), toNode(m.Value))
		}
		return n
	}
	return scalar("!!null", "null")
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func fromNode(n *yaml.Node) (derive.Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return derive.Null(), nil
		}
		return fromNode(n.Content[0])
	case yaml.AliasNode:
		return fromNode(n.Alias)
	case yaml.SequenceNode:
		items := make([]derive.Value, len(n.Content))
		for i, c := range n.Content {
			item, err := fromNode(c)
			if err != nil {
				return derive.Value{}, err
			}
			items[i] = item
		}
		return derive.Array(items...), nil
	case yaml.MappingNode:
		members := make([]derive.Member, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode || k.ShortTag() == "!!merge" {
				return derive.Value{}, fmt.Errorf("%w: line %d: mapping key must be a scalar", ErrUnrepresentable, k.Line)
			}
			val, err := fromNode(n.Content[i+1])
			if err != nil {
				return derive.Value{}, err
			}
			members = append(members, derive.Member{Key: k.Value, Value: val})
		}
		return derive.Object(members...), nil
	case yaml.ScalarNode:
		return fromScalar(n)
	}
	return derive.Value{}, fmt.Errorf("%w: line %d: node kind %d", ErrUnrepresentable, n.Line, n.Kind)
}

func fromScalar(n *yaml.Node) (derive.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return derive.Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return derive.Value{}, err
		}
		return derive.Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return derive.Int(i), nil
		}
		var u uint64
		if err := n.Decode(&u); err != nil {
			return derive.Value{}, err
		}
		return derive.Uint(u), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return derive.Value{}, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return derive.Value{}, fmt.Errorf("%w: line %d: %s", ErrUnrepresentable, n.Line, n.Value)
		}
		return derive.Float(f), nil
	}
	return derive.String(n.Value), nil
}
