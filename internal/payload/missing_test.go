package payload

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mark3labs/openapi-fuzz/internal/spec"
)

func TestMissing_Primitives(t *testing.T) {
	t.Parallel()
	correct := Object{"name": "danar", "age": 33.0}
	got := Missing{}.Generate(correct, personSchema())
	want := []Object{
		{"age": 33.0},
		{"name": "danar"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("missing (-want +got):\n%s", diff)
	}
}

func TestMissing_NestedObject(t *testing.T) {
	t.Parallel()
	schema := &spec.ObjectSchema{Properties: []spec.Property{
		{Name: "id", Schema: &spec.NumberSchema{}},
		{Name: "owner", Schema: personSchema()},
	}}
	correct := Object{"id": 1.0, "owner": Object{"name": "n", "age": 1.0}}

	got := Missing{}.Generate(correct, schema)
	want := []Object{
		{"owner": Object{"name": "n", "age": 1.0}},
		{"id": 1.0},
		{"id": 1.0, "owner": Object{"age": 1.0}},
		{"id": 1.0, "owner": Object{"name": "n"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("missing (-want +got):\n%s", diff)
	}
}

func TestMissing_Arrays(t *testing.T) {
	t.Parallel()
	schema := &spec.ObjectSchema{Properties: []spec.Property{
		{Name: "tags", Schema: &spec.ArraySchema{Items: &spec.StringSchema{}}},
		{Name: "pets", Schema: &spec.ArraySchema{Items: &spec.ObjectSchema{Properties: []spec.Property{
			{Name: "id", Schema: &spec.NumberSchema{}},
			{Name: "kind", Schema: &spec.StringSchema{}},
		}}}},
	}}
	correct := Object{"tags": []any{"fuzz"}, "pets": []any{Object{"id": 1.0, "kind": "fuzz"}}}

	got := Missing{}.Generate(correct, schema)
	want := []Object{
		{"pets": []any{Object{"id": 1.0, "kind": "fuzz"}}},
		{"tags": []any{}, "pets": []any{Object{"id": 1.0, "kind": "fuzz"}}},
		{"tags": []any{"fuzz"}},
		{"tags": []any{"fuzz"}, "pets": []any{}},
		{"tags": []any{"fuzz"}, "pets": []any{Object{"kind": "fuzz"}}},
		{"tags": []any{"fuzz"}, "pets": []any{Object{"id": 1.0}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("missing (-want +got):\n%s", diff)
	}
}

func TestMissing_SkipsRecursionWithoutNestedValue(t *testing.T) {
	t.Parallel()
	schema := &spec.ObjectSchema{Properties: []spec.Property{
		{Name: "owner", Schema: personSchema()},
		{Name: "pets", Schema: &spec.ArraySchema{Items: personSchema()}},
	}}
	correct := Object{"owner": "not an object", "pets": []any{}}

	got := Missing{}.Generate(correct, schema)
	if len(got) != 3 { // delete owner, delete pets, empty pets
		t.Fatalf("expected 3 variants, got %d: %v", len(got), got)
	}
}
