package payload

import "github.com/mark3labs/openapi-fuzz/internal/spec"

// InvalidComplex is sent where an object or array is expected.
const InvalidComplex = "fuzz"

// InvalidPrimitive returns the value sent where a primitive is expected.
// A new object is returned on every call.
func InvalidPrimitive() Object { return Object{"fuzz": "fuzz"} }

// Invalid replaces one field at a time with a value of the wrong type.
type Invalid struct{}

func (Invalid) Name() string { return "invalid" }

func (g Invalid) Generate(correct Object, schema *spec.ObjectSchema) []Object {
	if schema == nil {
		return nil
	}
	var out []Object
	for _, p := range schema.Properties {
		switch t := p.Schema.(type) {
		case *spec.StringSchema, *spec.NumberSchema, *spec.BooleanSchema:
			out = append(out, with(correct, p.Name, InvalidPrimitive()))
		case *spec.ObjectSchema:
			out = append(out, with(correct, p.Name, InvalidComplex))
			out = append(out, nestedObject(g.Generate, correct, p.Name, t)...)
		case *spec.ArraySchema:
			out = append(out, g.array(correct, p.Name, t)...)
		}
	}
	return out
}

func (g Invalid) array(correct Object, field string, t *spec.ArraySchema) []Object {
	switch items := t.Items.(type) {
	case *spec.StringSchema, *spec.NumberSchema, *spec.BooleanSchema:
		return []Object{
			with(correct, field, InvalidComplex),
			with(correct, field, []any{InvalidPrimitive()}),
		}
	case *spec.ObjectSchema:
		out := []Object{
			with(correct, field, InvalidComplex),
			with(correct, field, []any{InvalidComplex}),
		}
		return append(out, nestedElement(g.Generate, correct, field, items)...)
	case *spec.ArraySchema:
		return []Object{with(correct, field, InvalidComplex)}
	}
	return nil
}
