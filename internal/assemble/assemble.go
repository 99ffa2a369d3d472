// Package assemble builds the fuzzing corpus of every operation in a
// service model.
package assemble

import (
	"github.com/mark3labs/openapi-fuzz/internal/payload"
	"github.com/mark3labs/openapi-fuzz/internal/spec"
)

// Batch holds the payloads generated for one operation. Every body and
// query payload is sent to every entry of RealPaths.
type Batch struct {
	ReqBody   []payload.Object
	Query     []payload.Object
	RealPaths []string
}

// AllPayloads maps path template -> method -> batch.
type AllPayloads map[string]map[spec.HttpMethod]*Batch

// Batch returns the batch for path and method, if any.
func (a AllPayloads) Batch(path string, method spec.HttpMethod) (*Batch, bool) {
	b, ok := a[path][method]
	return b, ok
}

// Builder runs the synthesizer and generators over each operation.
type Builder struct {
	Synth      *payload.Synthesizer
	Generators []payload.Generator
}

// DefaultGenerators returns the missing, invalid, constraint and random
// generators in that order.
func DefaultGenerators(limits payload.Limits, sentinels payload.SentinelSource) []payload.Generator {
	return []payload.Generator{
		payload.Missing{},
		payload.Invalid{},
		payload.NewConstraint(limits),
		payload.NewRandom(sentinels),
	}
}

// NewBuilder returns a Builder. With no generators, DefaultGenerators with
// default limits and sentinels are used.
func NewBuilder(synth *payload.Synthesizer, gens ...payload.Generator) *Builder {
	if synth == nil {
		synth = payload.NewSynthesizer()
	}
	if len(gens) == 0 {
		gens = DefaultGenerators(payload.DefaultLimits(), nil)
	}
	return &Builder{Synth: synth, Generators: gens}
}

// Build assembles the payloads of every endpoint in sm. RealPaths are left
// empty; path resolution fills them in.
func (b *Builder) Build(sm *spec.ServiceModel, useSpecDefaults bool) AllPayloads {
	all := AllPayloads{}
	if sm == nil {
		return all
	}
	for _, ep := range sm.Endpoints {
		if all[ep.Path] == nil {
			all[ep.Path] = map[spec.HttpMethod]*Batch{}
		}
		all[ep.Path][ep.Method] = b.Endpoint(ep, useSpecDefaults)
	}
	return all
}

// Endpoint assembles the batch of a single operation: the baseline payload
// followed by every generator's variants, once for the JSON request body
// and once for the query parameters.
func (b *Builder) Endpoint(ep spec.EndpointModel, useSpecDefaults bool) *Batch {
	batch := &Batch{}
	if body, ok := ep.RequestBody.(*spec.ObjectSchema); ok {
		batch.ReqBody = b.variants(body, useSpecDefaults)
	}
	var query []spec.ParameterModel
	for _, p := range ep.Parameters {
		if p.In == spec.InQuery {
			query = append(query, p)
		}
	}
	if len(query) > 0 {
		batch.Query = b.variants(spec.ObjectOf(query), useSpecDefaults)
	}
	return batch
}

func (b *Builder) variants(schema *spec.ObjectSchema, useSpecDefaults bool) []payload.Object {
	correct := b.Synth.SynthesizeObject(schema, useSpecDefaults)
	return payload.Variants(correct, schema, b.Generators...)
}
