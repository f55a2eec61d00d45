// Package record models the opaque records returned by the platform's list
// endpoints as ordered maps of tagged values.
//
// A field can be absent (Get reports false), present and null, or present
// with a value. Sanitization relies on that distinction.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// IDField is the identifier field every parent resource carries.
const IDField = "ID"

// Record is an ordered mapping from field name to Value.
type Record struct {
	keys   []string
	fields map[string]Value
}

// New creates an empty record.
func New() *Record {
	return &Record{fields: make(map[string]Value)}
}

// FromPairs builds a record from alternating field names and values.
// It panics on malformed input and is intended for fixtures.
func FromPairs(pairs ...any) *Record {
	if len(pairs)%2 != 0 {
		panic("record: FromPairs needs an even number of arguments")
	}
	r := New()
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("record: key %d is %T", i/2, pairs[i]))
		}
		r.Set(key, toValue(pairs[i+1]))
	}
	return r
}

func toValue(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float64:
		return Number(json.Number(fmt.Sprintf("%v", t)))
	case *Record:
		return Object(t)
	}
	panic(fmt.Sprintf("record: unsupported fixture value %T", x))
}

// Get returns the value of field and whether the field is present.
func (r *Record) Get(field string) (Value, bool) {
	if r == nil {
		return Value{}, false
	}
	v, ok := r.fields[field]
	return v, ok
}

// Has reports whether field is present, null or not.
func (r *Record) Has(field string) bool {
	_, ok := r.Get(field)
	return ok
}

// Set stores v under field. New fields are appended; existing fields keep
// their position.
func (r *Record) Set(field string, v Value) {
	if r.fields == nil {
		r.fields = make(map[string]Value)
	}
	if _, ok := r.fields[field]; !ok {
		r.keys = append(r.keys, field)
	}
	r.fields[field] = v
}

// Delete removes field if present.
func (r *Record) Delete(field string) {
	if _, ok := r.fields[field]; !ok {
		return
	}
	delete(r.fields, field)
	for i, k := range r.keys {
		if k == field {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns field names in insertion order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// ID returns the record identifier when it is a string.
func (r *Record) ID() (string, bool) {
	v, ok := r.Get(IDField)
	if !ok {
		return "", false
	}
	return v.Text()
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{
		keys:   make([]string, len(r.keys)),
		fields: make(map[string]Value, len(r.fields)),
	}
	copy(out.keys, r.keys)
	for k, v := range r.fields {
		out.fields[k] = v.clone()
	}
	return out
}

// Equal reports whether both records hold the same fields in the same order.
func (r *Record) Equal(o *Record) bool {
	if r.Len() != o.Len() {
		return false
	}
	if r == nil || o == nil {
		return r == o || r.Len() == 0
	}
	for i, k := range r.keys {
		if o.keys[i] != k {
			return false
		}
		if !r.fields[k].Equal(o.fields[k]) {
			return false
		}
	}
	return true
}

// String renders the record as compact JSON.
func (r *Record) String() string {
	b, err := r.MarshalJSON()
	if err != nil {
		return "<invalid record: " + err.Error() + ">"
	}
	return string(b)
}

// MarshalJSON implements json.Marshaler, emitting fields in order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Record) writeJSON(buf *bytes.Buffer) error {
	if r == nil {
		buf.WriteString("null")
		return nil
	}
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := r.fields[k].writeJSON(buf); err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// UnmarshalJSON implements json.Unmarshaler, preserving field order.
func (r *Record) UnmarshalJSON(data []byte) error {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	obj, ok := v.Object()
	if !ok {
		return fmt.Errorf("record: expected JSON object, got %s", v.Kind())
	}
	*r = *obj
	return nil
}

// MarshalYAML implements yaml.Marshaler with an ordered mapping node.
func (r *Record) MarshalYAML() (interface{}, error) {
	return r.yamlNode(), nil
}

func (r *Record) yamlNode() *yaml.Node {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if r == nil {
		return node
	}
	for _, k := range r.keys {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			r.fields[k].yamlNode(),
		)
	}
	return node
}

// MarshalYAML implements yaml.Marshaler.
func (v Value) MarshalYAML() (interface{}, error) {
	return v.yamlNode(), nil
}

func (v Value) yamlNode() *yaml.Node {
	switch v.kind {
	case KindString:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.text}
	case KindNumber:
		tag := "!!int"
		if strings.ContainsAny(v.text, ".eE") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v.text}
	case KindBool:
		val := "false"
		if v.b {
			val = "true"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: val}
	case KindObject:
		return v.obj.yamlNode()
	case KindArray:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.arr {
			seq.Content = append(seq.Content, item.yamlNode())
		}
		return seq
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
}

// DecodeList parses a JSON array of objects into records.
func DecodeList(data []byte) ([]*Record, error) {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	items, ok := v.Items()
	if !ok {
		return nil, fmt.Errorf("record: expected JSON array, got %s", v.Kind())
	}
	out := make([]*Record, 0, len(items))
	for i, item := range items {
		obj, ok := item.Object()
		if !ok {
			return nil, fmt.Errorf("record: item %d is %s, not object", i, item.Kind())
		}
		out = append(out, obj)
	}
	return out, nil
}
