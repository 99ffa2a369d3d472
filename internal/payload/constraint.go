package payload

import (
	"strings"
	"time"

	"github.com/mark3labs/openapi-fuzz/internal/spec"
)

// Bounds of the integers a float64 represents exactly.
const (
	MinSafeInteger = -9007199254740991.0
	MaxSafeInteger = 9007199254740991.0
)

// Limits holds the magnitudes used to step outside declared constraints.
type Limits struct {
	// StringMaxLength is the length of the oversized string sent for every
	// string field.
	StringMaxLength int
	// NumberAdjustments are subtracted from minimum and added to maximum.
	NumberAdjustments []float64
	// YearAdjustments move date and date-time values into the past and
	// the future.
	YearAdjustments []int
}

// DefaultLimits uses one adjustment per kind.
func DefaultLimits() Limits {
	return Limits{
		StringMaxLength:   65535,
		NumberAdjustments: []float64{1e6},
		YearAdjustments:   []int{100},
	}
}

// ExtendedLimits uses four magnitudes per kind.
func ExtendedLimits() Limits {
	return Limits{
		StringMaxLength:   65535,
		NumberAdjustments: []float64{1e6, 1e7, 1e8, 1e9},
		YearAdjustments:   []int{100, 1000, 10000, 100000},
	}
}

// Constraint sends values just outside the constraints a field declares,
// plus a few boundary values every string and number gets.
type Constraint struct {
	Limits Limits
}

// NewConstraint returns a Constraint generator using l.
func NewConstraint(l Limits) *Constraint {
	return &Constraint{Limits: l}
}

func (*Constraint) Name() string { return "constraint" }

func (g *Constraint) Generate(correct Object, schema *spec.ObjectSchema) []Object {
	if schema == nil {
		return nil
	}
	var out []Object
	for _, p := range schema.Properties {
		switch t := p.Schema.(type) {
		case *spec.StringSchema:
			out = append(out, withEach(correct, p.Name, g.stringValues(t, correct[p.Name]))...)
		case *spec.NumberSchema:
			out = append(out, withEach(correct, p.Name, g.numberValues(t))...)
		case *spec.ObjectSchema:
			out = append(out, nestedObject(g.Generate, correct, p.Name, t)...)
		case *spec.ArraySchema:
			out = append(out, g.array(correct, p.Name, t)...)
		}
	}
	return out
}

func (g *Constraint) array(correct Object, field string, t *spec.ArraySchema) []Object {
	switch items := t.Items.(type) {
	case *spec.StringSchema:
		return withEachElement(correct, field, g.stringValues(items, firstElement(correct, field)))
	case *spec.NumberSchema:
		return withEachElement(correct, field, g.numberValues(items))
	case *spec.ObjectSchema:
		return nestedElement(g.Generate, correct, field, items)
	}
	return nil
}

func (g *Constraint) stringValues(t *spec.StringSchema, correct any) []any {
	out := []any{"", strings.Repeat(filler, g.Limits.StringMaxLength)}
	if t.MinLength != nil && *t.MinLength-1 > 0 {
		out = append(out, strings.Repeat(filler, *t.MinLength-1))
	}
	if t.MaxLength != nil {
		out = append(out, strings.Repeat(filler, *t.MaxLength+100))
	}

	s, _ := correct.(string)
	switch t.Format {
	case spec.FormatDate:
		if base, err := time.Parse(dateLayout, s); err == nil {
			for _, years := range g.Limits.YearAdjustments {
				out = append(out,
					base.AddDate(-years, 0, 0).Format(dateLayout),
					base.AddDate(years, 0, 0).Format(dateLayout))
			}
		}
	case spec.FormatDateTime:
		if base, err := time.Parse(time.RFC3339Nano, s); err == nil {
			base = base.UTC()
			for _, years := range g.Limits.YearAdjustments {
				out = append(out,
					base.AddDate(-years, 0, 0).Format(dateTimeLayout),
					base.AddDate(years, 0, 0).Format(dateTimeLayout))
			}
		}
	}
	return out
}

func (g *Constraint) numberValues(t *spec.NumberSchema) []any {
	out := []any{MinSafeInteger, MaxSafeInteger}
	for _, adj := range g.Limits.NumberAdjustments {
		if t.Minimum != nil {
			out = append(out, *t.Minimum-adj)
		}
		if t.Maximum != nil {
			out = append(out, *t.Maximum+adj)
		}
	}
	return out
}
