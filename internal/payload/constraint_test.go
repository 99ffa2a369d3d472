package payload

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mark3labs/openapi-fuzz/internal/spec"
)

func TestConstraint_StringLengths(t *testing.T) {
	t.Parallel()
	schema := &spec.ObjectSchema{Properties: []spec.Property{
		{Name: "name", Schema: &spec.StringSchema{MinLength: spec.Int(5), MaxLength: spec.Int(50)}},
	}}
	correct := Object{"name": "fffff"}

	got := NewConstraint(DefaultLimits()).Generate(correct, schema)
	want := []Object{
		{"name": ""},
		{"name": fs(65535)},
		{"name": fs(4)},
		{"name": fs(150)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("constraint (-want +got):\n%s", diff)
	}
}

func TestConstraint_MinLengthOneSkipsShorter(t *testing.T) {
	t.Parallel()
	schema := &spec.ObjectSchema{Properties: []spec.Property{
		{Name: "code", Schema: &spec.StringSchema{MinLength: spec.Int(1)}},
		{Name: "plain", Schema: &spec.StringSchema{}},
	}}
	got := NewConstraint(DefaultLimits()).Generate(Object{"code": "f", "plain": "fuzz"}, schema)
	if len(got) != 4 { // "" and the long string, per field
		t.Fatalf("expected 4 variants, got %d", len(got))
	}
}

func TestConstraint_Numbers(t *testing.T) {
	t.Parallel()
	schema := &spec.ObjectSchema{Properties: []spec.Property{
		{Name: "age", Schema: &spec.NumberSchema{Integer: true, Minimum: spec.Float(10), Maximum: spec.Float(60)}},
	}}
	got := NewConstraint(DefaultLimits()).Generate(Object{"age": 10.0}, schema)
	want := []Object{
		{"age": MinSafeInteger},
		{"age": MaxSafeInteger},
		{"age": 10.0 - 1e6},
		{"age": 60.0 + 1e6},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("constraint (-want +got):\n%s", diff)
	}
}

func TestConstraint_ExtendedLimits(t *testing.T) {
	t.Parallel()
	schema := &spec.ObjectSchema{Properties: []spec.Property{
		{Name: "age", Schema: &spec.NumberSchema{Minimum: spec.Float(0)}},
		{Name: "day", Schema: &spec.StringSchema{Format: spec.FormatDate}},
	}}
	got := NewConstraint(ExtendedLimits()).Generate(Object{"age": 0.0, "day": "2024-03-09"}, schema)
	// age: 2 safe bounds + 4 minimum adjustments; day: 2 strings + 4 past/future pairs
	if len(got) != 6+10 {
		t.Fatalf("expected 16 variants, got %d", len(got))
	}
	if got[5]["age"] != -1e9 {
		t.Fatalf("last numeric variant: got %v", got[5]["age"])
	}
	if got[15]["day"] != "102024-03-09" {
		t.Fatalf("far future date: got %v", got[15]["day"])
	}
}

func TestConstraint_Dates(t *testing.T) {
	t.Parallel()
	schema := &spec.ObjectSchema{Properties: []spec.Property{
		{Name: "day", Schema: &spec.StringSchema{Format: spec.FormatDate}},
		{Name: "at", Schema: &spec.StringSchema{Format: spec.FormatDateTime}},
		{Name: "bad", Schema: &spec.StringSchema{Format: spec.FormatDate}},
	}}
	correct := Object{"day": "2024-03-09", "at": "2024-03-09T12:04:05.678Z", "bad": "not a date"}

	got := NewConstraint(DefaultLimits()).Generate(correct, schema)
	var values []any
	for i, o := range got {
		switch {
		case i < 4:
			values = append(values, o["day"])
		case i < 8:
			values = append(values, o["at"])
		default:
			values = append(values, o["bad"])
		}
	}
	want := []any{
		"", fs(65535), "1924-03-09", "2124-03-09",
		"", fs(65535), "1924-03-09T12:04:05.678Z", "2124-03-09T12:04:05.678Z",
		"", fs(65535),
	}
	if diff := cmp.Diff(want, values); diff != "" {
		t.Fatalf("dates (-want +got):\n%s", diff)
	}
}

func TestConstraint_ArraysAndNested(t *testing.T) {
	t.Parallel()
	schema := &spec.ObjectSchema{Properties: []spec.Property{
		{Name: "ids", Schema: &spec.ArraySchema{Items: &spec.NumberSchema{Maximum: spec.Float(5)}}},
		{Name: "flags", Schema: &spec.ArraySchema{Items: &spec.BooleanSchema{}}},
		{Name: "owner", Schema: &spec.ObjectSchema{Properties: []spec.Property{
			{Name: "ok", Schema: &spec.BooleanSchema{}},
			{Name: "n", Schema: &spec.NumberSchema{}},
		}}},
	}}
	correct := Object{"ids": []any{1.0}, "flags": []any{true}, "owner": Object{"ok": true, "n": 1.0}}

	got := NewConstraint(DefaultLimits()).Generate(correct, schema)
	set := func(field string, v any) Object {
		o := CloneObject(correct)
		o[field] = v
		return o
	}
	want := []Object{
		set("ids", []any{MinSafeInteger}),
		set("ids", []any{MaxSafeInteger}),
		set("ids", []any{5.0 + 1e6}),
		set("owner", Object{"ok": true, "n": MinSafeInteger}),
		set("owner", Object{"ok": true, "n": MaxSafeInteger}),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("constraint (-want +got):\n%s", diff)
	}
}
