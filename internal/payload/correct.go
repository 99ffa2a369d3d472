package payload

import (
	"math/rand"
	"strings"
	"time"

	"github.com/mark3labs/openapi-fuzz/internal/spec"
)

// Default baseline values used when a schema carries no usable constraint.
const (
	DefaultString = "fuzz"
	DefaultNumber = 1.0

	filler = "f"

	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04:05.000Z"
)

// Synthesizer produces the baseline ("correct") payload for a schema.
//
// With useSpecDefaults set, strings honour minLength and numbers start at
// their declared minimum; otherwise fixed defaults are used. A pattern
// overrides the minLength filler and a date/date-time format overrides both.
type Synthesizer struct {
	// Now supplies the instant used for date and date-time strings.
	Now func() time.Time
	// Bool supplies boolean values.
	Bool func() bool
}

// NewSynthesizer returns a Synthesizer using the wall clock and a random
// boolean source.
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{
		Now:  time.Now,
		Bool: func() bool { return rand.Intn(2) == 1 },
	}
}

// Synthesize returns the baseline value for schema. A nil schema yields
// Undefined.
func (s *Synthesizer) Synthesize(schema spec.Schema, useSpecDefaults bool) any {
	v, ok := s.value(schema, useSpecDefaults)
	if !ok {
		return Undefined
	}
	return v
}

// SynthesizeObject returns the baseline object for schema. Properties
// without a recognized type are left out.
func (s *Synthesizer) SynthesizeObject(schema *spec.ObjectSchema, useSpecDefaults bool) Object {
	out := Object{}
	if schema == nil {
		return out
	}
	for _, p := range schema.Properties {
		if v, ok := s.value(p.Schema, useSpecDefaults); ok {
			out[p.Name] = v
		}
	}
	return out
}

func (s *Synthesizer) value(schema spec.Schema, useSpecDefaults bool) (any, bool) {
	switch t := schema.(type) {
	case *spec.StringSchema:
		return s.str(t, useSpecDefaults), true
	case *spec.NumberSchema:
		if useSpecDefaults && t.Minimum != nil {
			return *t.Minimum, true
		}
		return DefaultNumber, true
	case *spec.BooleanSchema:
		return s.boolean(), true
	case *spec.ArraySchema:
		arr := []any{}
		if v, ok := s.value(t.Items, useSpecDefaults); ok {
			arr = append(arr, v)
		}
		return arr, true
	case *spec.ObjectSchema:
		return s.SynthesizeObject(t, useSpecDefaults), true
	}
	return nil, false
}

func (s *Synthesizer) str(t *spec.StringSchema, useSpecDefaults bool) string {
	v := DefaultString
	if useSpecDefaults && t.MinLength != nil {
		v = strings.Repeat(filler, *t.MinLength)
	}
	if t.Pattern != "" {
		if m, ok := matchPattern(t.Pattern); ok {
			v = m
		}
	}
	switch t.Format {
	case spec.FormatDate:
		v = s.now().Format(dateLayout)
	case spec.FormatDateTime:
		v = s.now().UTC().Format(dateTimeLayout)
	}
	return v
}

func (s *Synthesizer) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Synthesizer) boolean() bool {
	if s.Bool == nil {
		return rand.Intn(2) == 1
	}
	return s.Bool()
}
