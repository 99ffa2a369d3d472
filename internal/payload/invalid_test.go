package payload

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mark3labs/openapi-fuzz/internal/spec"
)

func TestInvalid_Primitives(t *testing.T) {
	t.Parallel()
	correct := Object{"name": "danar", "age": 33.0}
	got := Invalid{}.Generate(correct, personSchema())
	want := []Object{
		{"name": Object{"fuzz": "fuzz"}, "age": 33.0},
		{"name": "danar", "age": Object{"fuzz": "fuzz"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("invalid (-want +got):\n%s", diff)
	}
}

func TestInvalid_ObjectAndArrays(t *testing.T) {
	t.Parallel()
	inner := &spec.ObjectSchema{Properties: []spec.Property{{Name: "id", Schema: &spec.NumberSchema{}}}}
	schema := &spec.ObjectSchema{Properties: []spec.Property{
		{Name: "owner", Schema: inner},
		{Name: "tags", Schema: &spec.ArraySchema{Items: &spec.StringSchema{}}},
		{Name: "pets", Schema: &spec.ArraySchema{Items: inner}},
		{Name: "grid", Schema: &spec.ArraySchema{Items: &spec.ArraySchema{Items: &spec.NumberSchema{}}}},
		{Name: "free", Schema: &spec.ArraySchema{}},
	}}
	correct := Object{
		"owner": Object{"id": 1.0},
		"tags":  []any{"fuzz"},
		"pets":  []any{Object{"id": 1.0}},
		"grid":  []any{[]any{1.0}},
		"free":  []any{},
	}
	base := func(field string, v any) Object {
		o := CloneObject(correct)
		o[field] = v
		return o
	}

	got := Invalid{}.Generate(correct, schema)
	want := []Object{
		base("owner", "fuzz"),
		base("owner", Object{"id": Object{"fuzz": "fuzz"}}),
		base("tags", "fuzz"),
		base("tags", []any{Object{"fuzz": "fuzz"}}),
		base("pets", "fuzz"),
		base("pets", []any{"fuzz"}),
		base("pets", []any{Object{"id": Object{"fuzz": "fuzz"}}}),
		base("grid", "fuzz"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("invalid (-want +got):\n%s", diff)
	}
}

func TestInvalidPrimitive_IsFresh(t *testing.T) {
	t.Parallel()
	a := InvalidPrimitive()
	a["fuzz"] = "changed"
	if InvalidPrimitive()["fuzz"] != "fuzz" {
		t.Fatalf("InvalidPrimitive must return a new object")
	}
}
