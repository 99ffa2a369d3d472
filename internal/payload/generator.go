package payload

import "github.com/mark3labs/openapi-fuzz/internal/spec"

// Generator derives mutated copies of a baseline object payload. Every
// returned payload is a fresh copy; neither correct nor schema is modified.
type Generator interface {
	Name() string
	Generate(correct Object, schema *spec.ObjectSchema) []Object
}

type generateFunc func(correct Object, schema *spec.ObjectSchema) []Object

// with returns a copy of correct with field set to a copy of v.
func with(correct Object, field string, v any) Object {
	c := CloneObject(correct)
	c[field] = Clone(v)
	return c
}

// without returns a copy of correct with field removed.
func without(correct Object, field string) Object {
	c := CloneObject(correct)
	delete(c, field)
	return c
}

// withEach returns one copy of correct per value, with field set to it.
func withEach(correct Object, field string, values []any) []Object {
	out := make([]Object, 0, len(values))
	for _, v := range values {
		out = append(out, with(correct, field, v))
	}
	return out
}

// withEachElement is withEach with every value wrapped as a one-element
// array.
func withEachElement(correct Object, field string, values []any) []Object {
	out := make([]Object, 0, len(values))
	for _, v := range values {
		out = append(out, with(correct, field, []any{v}))
	}
	return out
}

// nestedObject applies gen to the object held in correct[field] and puts
// each variant back into a copy of correct. Nothing is produced when the
// field does not hold an object.
func nestedObject(gen generateFunc, correct Object, field string, schema *spec.ObjectSchema) []Object {
	inner, ok := correct[field].(Object)
	if !ok {
		return nil
	}
	var out []Object
	for _, v := range gen(CloneObject(inner), schema) {
		out = append(out, with(correct, field, v))
	}
	return out
}

// nestedElement applies gen to the first element of the array held in
// correct[field] and puts each variant back as a one-element array.
func nestedElement(gen generateFunc, correct Object, field string, schema *spec.ObjectSchema) []Object {
	arr, ok := correct[field].([]any)
	if !ok || len(arr) == 0 {
		return nil
	}
	inner, ok := arr[0].(Object)
	if !ok {
		return nil
	}
	var out []Object
	for _, v := range gen(CloneObject(inner), schema) {
		out = append(out, with(correct, field, []any{v}))
	}
	return out
}

// firstElement returns the first element of the array in correct[field].
func firstElement(correct Object, field string) any {
	arr, ok := correct[field].([]any)
	if !ok || len(arr) == 0 {
		return nil
	}
	return arr[0]
}

// Variants returns correct followed by the output of every generator in
// order.
func Variants(correct Object, schema *spec.ObjectSchema, gens ...Generator) []Object {
	out := []Object{correct}
	for _, g := range gens {
		out = append(out, g.Generate(correct, schema)...)
	}
	return out
}
