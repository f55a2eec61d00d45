package record

import (
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestUnmarshalJSON_PreservesOrder(t *testing.T) {
	input := `{"Name":"Shirt","ID":"p1","xp":{"b":1,"a":[true,null,"x"]},"Price":12.50}`

	var r Record
	if err := json.Unmarshal([]byte(input), &r); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	keys := strings.Join(r.Keys(), ",")
	if keys != "Name,ID,xp,Price" {
		t.Errorf("Keys() = %s, want Name,ID,xp,Price", keys)
	}

	out, err := json.Marshal(&r)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != input {
		t.Errorf("round trip = %s, want %s", out, input)
	}
}

func TestGet_AbsentNullPresent(t *testing.T) {
	r := FromPairs("A", nil, "B", "value")

	tests := []struct {
		name     string
		field    string
		wantOK   bool
		wantNull bool
	}{
		{name: "null field", field: "A", wantOK: true, wantNull: true},
		{name: "present field", field: "B", wantOK: true, wantNull: false},
		{name: "absent field", field: "C", wantOK: false, wantNull: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := r.Get(tt.field)
			if ok != tt.wantOK {
				t.Errorf("Get(%q) ok = %v, want %v", tt.field, ok, tt.wantOK)
			}
			if v.IsNull() != tt.wantNull {
				t.Errorf("Get(%q) IsNull = %v, want %v", tt.field, v.IsNull(), tt.wantNull)
			}
		})
	}
}

func TestSet_KeepsPosition(t *testing.T) {
	r := FromPairs("A", 1, "B", 2)
	r.Set("A", String("changed"))
	r.Set("C", Bool(true))

	if got := strings.Join(r.Keys(), ","); got != "A,B,C" {
		t.Errorf("Keys() = %s, want A,B,C", got)
	}
	v, _ := r.Get("A")
	if s, _ := v.Text(); s != "changed" {
		t.Errorf("A = %q, want changed", s)
	}
}

func TestDelete(t *testing.T) {
	r := FromPairs("A", 1, "B", 2, "C", 3)
	r.Delete("B")
	r.Delete("missing")

	if got := strings.Join(r.Keys(), ","); got != "A,C" {
		t.Errorf("Keys() = %s, want A,C", got)
	}
	if r.Has("B") {
		t.Error("B should be absent after Delete")
	}
}

func TestClone_IsDeep(t *testing.T) {
	nested := FromPairs("Inner", "x")
	r := FromPairs("ID", "1", "Nested", nested)

	c := r.Clone()
	nested.Set("Inner", String("mutated"))

	v, _ := c.Get("Nested")
	obj, _ := v.Object()
	inner, _ := obj.Get("Inner")
	if s, _ := inner.Text(); s != "x" {
		t.Errorf("clone shares nested record: Inner = %q", s)
	}
	if !c.Equal(c.Clone()) {
		t.Error("Clone() should be Equal to its source")
	}
}

func TestID(t *testing.T) {
	if id, ok := FromPairs("ID", "abc").ID(); !ok || id != "abc" {
		t.Errorf("ID() = %q, %v", id, ok)
	}
	if _, ok := FromPairs("ID", 12).ID(); ok {
		t.Error("numeric ID should not be reported as string")
	}
	if _, ok := New().ID(); ok {
		t.Error("missing ID should not be reported")
	}
}

func TestInt64(t *testing.T) {
	var r Record
	if err := json.Unmarshal([]byte(`{"VariantCount":3,"Weight":2.0,"Name":"x"}`), &r); err != nil {
		t.Fatal(err)
	}
	v, _ := r.Get("VariantCount")
	if n, ok := v.Int64(); !ok || n != 3 {
		t.Errorf("VariantCount = %d, %v", n, ok)
	}
	w, _ := r.Get("Weight")
	if n, ok := w.Int64(); !ok || n != 2 {
		t.Errorf("Weight = %d, %v", n, ok)
	}
	name, _ := r.Get("Name")
	if _, ok := name.Int64(); ok {
		t.Error("string should not convert to int")
	}
}

func TestMarshalYAML_Ordered(t *testing.T) {
	r := FromPairs("Z", "last-declared-first", "A", 1, "Flag", true, "Empty", nil)

	out, err := yaml.Marshal(r)
	if err != nil {
		t.Fatalf("yaml.Marshal() error = %v", err)
	}

	want := "Z: last-declared-first\nA: 1\nFlag: true\nEmpty: null\n"
	if string(out) != want {
		t.Errorf("yaml = %q, want %q", out, want)
	}
}

func TestDecodeList(t *testing.T) {
	records, err := DecodeList([]byte(`[{"ID":"a"},{"ID":"b"}]`))
	if err != nil {
		t.Fatalf("DecodeList() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}

	if _, err := DecodeList([]byte(`[1]`)); err == nil {
		t.Error("expected error for non-object item")
	}
	if _, err := DecodeList([]byte(`{}`)); err == nil {
		t.Error("expected error for non-array input")
	}
}
