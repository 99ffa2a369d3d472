package payload

import (
	"github.com/google/uuid"

	"github.com/mark3labs/openapi-fuzz/internal/spec"
)

// SentinelSource supplies the values the Random generator substitutes. It
// is consulted once per field.
type SentinelSource interface {
	Sentinels() []any
}

// DefaultSentinels yields null, Undefined and a fresh random UUID.
type DefaultSentinels struct{}

func (DefaultSentinels) Sentinels() []any {
	return []any{nil, Undefined, uuid.NewString()}
}

// FixedSentinels always yields the same values.
type FixedSentinels []any

func (f FixedSentinels) Sentinels() []any {
	out := make([]any, len(f))
	for i, v := range f {
		out[i] = Clone(v)
	}
	return out
}

// Random replaces one field at a time with each sentinel value.
type Random struct {
	Source SentinelSource
}

// NewRandom returns a Random generator drawing from src, or from
// DefaultSentinels when src is nil.
func NewRandom(src SentinelSource) *Random {
	if src == nil {
		src = DefaultSentinels{}
	}
	return &Random{Source: src}
}

func (*Random) Name() string { return "random" }

func (g *Random) Generate(correct Object, schema *spec.ObjectSchema) []Object {
	if schema == nil {
		return nil
	}
	var out []Object
	for _, p := range schema.Properties {
		switch t := p.Schema.(type) {
		case *spec.StringSchema, *spec.NumberSchema, *spec.BooleanSchema:
			out = append(out, withEach(correct, p.Name, g.sentinels())...)
		case *spec.ObjectSchema:
			out = append(out, withEach(correct, p.Name, g.sentinels())...)
			out = append(out, nestedObject(g.Generate, correct, p.Name, t)...)
		case *spec.ArraySchema:
			out = append(out, g.array(correct, p.Name, t)...)
		}
	}
	return out
}

func (g *Random) array(correct Object, field string, t *spec.ArraySchema) []Object {
	switch items := t.Items.(type) {
	case *spec.StringSchema, *spec.NumberSchema, *spec.BooleanSchema:
		values := g.sentinels()
		return append(withEach(correct, field, values), withEachElement(correct, field, values)...)
	case *spec.ObjectSchema:
		values := g.sentinels()
		out := append(withEach(correct, field, values), withEachElement(correct, field, values)...)
		return append(out, nestedElement(g.Generate, correct, field, items)...)
	case *spec.ArraySchema:
		return withEach(correct, field, g.sentinels())
	}
	return nil
}

func (g *Random) sentinels() []any {
	if g.Source == nil {
		return DefaultSentinels{}.Sentinels()
	}
	return g.Source.Sentinels()
}
