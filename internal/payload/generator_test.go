package payload

import (
	"reflect"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mark3labs/openapi-fuzz/internal/spec"
)

func personSchema() *spec.ObjectSchema {
	return &spec.ObjectSchema{Properties: []spec.Property{
		{Name: "name", Schema: &spec.StringSchema{}},
		{Name: "age", Schema: &spec.NumberSchema{Integer: true}},
	}}
}

func richSchema() *spec.ObjectSchema {
	return &spec.ObjectSchema{Properties: []spec.Property{
		{Name: "name", Schema: &spec.StringSchema{MinLength: spec.Int(2), MaxLength: spec.Int(8)}},
		{Name: "born", Schema: &spec.StringSchema{Format: spec.FormatDate}},
		{Name: "score", Schema: &spec.NumberSchema{Minimum: spec.Float(0), Maximum: spec.Float(1)}},
		{Name: "ok", Schema: &spec.BooleanSchema{}},
		{Name: "tags", Schema: &spec.ArraySchema{Items: &spec.StringSchema{}}},
		{Name: "matrix", Schema: &spec.ArraySchema{Items: &spec.ArraySchema{Items: &spec.NumberSchema{}}}},
		{Name: "owner", Schema: &spec.ObjectSchema{Properties: []spec.Property{
			{Name: "email", Schema: &spec.StringSchema{}},
		}}},
		{Name: "pets", Schema: &spec.ArraySchema{Items: &spec.ObjectSchema{Properties: []spec.Property{
			{Name: "id", Schema: &spec.NumberSchema{Integer: true}},
		}}}},
		{Name: "gap", Schema: nil},
	}}
}

func allGenerators() []Generator {
	return []Generator{
		Missing{},
		Invalid{},
		NewConstraint(DefaultLimits()),
		NewRandom(FixedSentinels{nil, Undefined, "sentinel"}),
	}
}

func TestGenerators_DoNotMutateInput(t *testing.T) {
	t.Parallel()
	schema := richSchema()
	correct := fixedSynth().SynthesizeObject(schema, true)
	before := CloneObject(correct)
	schemaBefore := richSchema()

	for _, g := range allGenerators() {
		out := g.Generate(correct, schema)
		if len(out) == 0 {
			t.Fatalf("%s: expected variants", g.Name())
		}
		if diff := cmp.Diff(before, correct); diff != "" {
			t.Fatalf("%s mutated correct (-before +after):\n%s", g.Name(), diff)
		}
		if !reflect.DeepEqual(schemaBefore, schema) {
			t.Fatalf("%s mutated schema", g.Name())
		}
		// Variants never share state: tag every nested owner object and
		// check each variant still carries its own tag.
		for i, o := range out {
			if owner, ok := o["owner"].(Object); ok {
				owner["email"] = i
			}
		}
		for i, o := range out {
			if owner, ok := o["owner"].(Object); ok && owner["email"] != i {
				t.Fatalf("%s: variant %d aliases variant %v", g.Name(), i, owner["email"])
			}
		}
		if diff := cmp.Diff(before, correct); diff != "" {
			t.Fatalf("%s: variants alias correct (-before +after):\n%s", g.Name(), diff)
		}
	}
}

func TestGenerators_SingleFieldMutation(t *testing.T) {
	t.Parallel()
	schema := richSchema()
	correct := fixedSynth().SynthesizeObject(schema, true)

	for _, g := range []Generator{Missing{}, Invalid{}, NewConstraint(DefaultLimits())} {
		for i, v := range g.Generate(correct, schema) {
			if n := differingFields(correct, v); n != 1 {
				t.Errorf("%s: variant %d differs in %d fields: %v", g.Name(), i, n, v)
			}
		}
	}
}

func differingFields(a, b Object) int {
	n := 0
	for k, av := range a {
		if bv, ok := b[k]; !ok || !reflect.DeepEqual(av, bv) {
			n++
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			n++
		}
	}
	return n
}

func TestVariants_Composition(t *testing.T) {
	t.Parallel()
	correct := Object{"name": "danar", "age": 33.0}
	out := Variants(correct, personSchema(), Missing{}, Invalid{})
	if len(out) != 5 {
		t.Fatalf("expected correct + 2 missing + 2 invalid, got %d", len(out))
	}
	if diff := cmp.Diff(correct, out[0]); diff != "" {
		t.Fatalf("first entry must be correct (-want +got):\n%s", diff)
	}
}

func TestEncode_PrunesUndefined(t *testing.T) {
	t.Parallel()
	b, err := Encode(Object{"a": Undefined, "b": []any{Undefined, 1.0}, "c": nil, "d": Object{"e": Undefined}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got, want := string(b), `{"b":[null,1],"c":null,"d":{}}`; got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestStringify(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   any
		want string
	}{
		{"abc", "abc"},
		{1.0, "1"},
		{MaxSafeInteger, "9007199254740991"},
		{-999990.0, "-999990"},
		{true, "true"},
		{nil, "null"},
		{Undefined, "undefined"},
		{InvalidPrimitive(), `{"fuzz":"fuzz"}`},
		{[]any{"x", Undefined}, `["x",null]`},
	}
	for _, tc := range cases {
		if got := Stringify(tc.in); got != tc.want {
			t.Errorf("Stringify(%#v) = %q want %q", tc.in, got, tc.want)
		}
	}
}

func fs(n int) string { return strings.Repeat(filler, n) }
