package payload

import "github.com/mark3labs/openapi-fuzz/internal/spec"

// Missing omits one field at a time. Object fields are additionally
// mutated recursively, and array fields are also sent empty.
type Missing struct{}

func (Missing) Name() string { return "missing" }

func (m Missing) Generate(correct Object, schema *spec.ObjectSchema) []Object {
	if schema == nil {
		return nil
	}
	var out []Object
	for _, p := range schema.Properties {
		switch t := p.Schema.(type) {
		case *spec.StringSchema, *spec.NumberSchema, *spec.BooleanSchema:
			out = append(out, without(correct, p.Name))
		case *spec.ObjectSchema:
			out = append(out, without(correct, p.Name))
			out = append(out, nestedObject(m.Generate, correct, p.Name, t)...)
		case *spec.ArraySchema:
			out = append(out, without(correct, p.Name), with(correct, p.Name, []any{}))
			if items, ok := t.Items.(*spec.ObjectSchema); ok {
				out = append(out, nestedElement(m.Generate, correct, p.Name, items)...)
			}
		}
	}
	return out
}
