package pathres

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"github.com/mark3labs/openapi-fuzz/internal/payload"
	"github.com/mark3labs/openapi-fuzz/internal/spec"
	"github.com/mark3labs/openapi-fuzz/internal/transport"
)

// Strategy selects how real paths are produced.
type Strategy string

const (
	// StrategyAuto resolves by probing and adds fuzzed substitutions when
	// any parameter stays unresolved.
	StrategyAuto Strategy = "auto"
	// StrategyResolve only probes.
	StrategyResolve Strategy = "resolve"
	// StrategyFuzz only substitutes fuzzed parameter values.
	StrategyFuzz Strategy = "fuzz"
)

// ParseStrategy validates a strategy name. Empty means auto.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategyResolve:
		return StrategyResolve, nil
	case StrategyFuzz:
		return StrategyFuzz, nil
	}
	return "", fmt.Errorf("unknown path strategy %q (want auto, resolve or fuzz)", s)
}

// DefaultMaxIDProbes bounds the GET probes issued per parameter.
const DefaultMaxIDProbes = 16

// Doer sends a request; *transport.Client implements it.
type Doer interface {
	Do(ctx context.Context, cred transport.Credentials, req transport.Request) (*transport.Response, error)
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithStrategy(s Strategy) Option { return func(r *Resolver) { r.strategy = s } }

// WithMaxIDProbes bounds the GET probes per parameter.
func WithMaxIDProbes(n int) Option { return func(r *Resolver) { r.maxIDProbes = n } }

func WithLogger(l *zap.Logger) Option { return func(r *Resolver) { r.logger = l } }

func WithSynthesizer(s *payload.Synthesizer) Option { return func(r *Resolver) { r.synth = s } }

// WithGenerators sets the generators whose variants feed fuzzed
// substitution. The baseline value is always included.
func WithGenerators(gens ...payload.Generator) Option {
	return func(r *Resolver) { r.gens = gens }
}

// Resolver produces concrete paths for the templates of one service.
type Resolver struct {
	doer        Doer
	model       *spec.ServiceModel
	baseURL     string
	synth       *payload.Synthesizer
	gens        []payload.Generator
	strategy    Strategy
	maxIDProbes int
	logger      *zap.Logger
}

// New returns a Resolver sending probes through doer to baseURL.
func New(doer Doer, model *spec.ServiceModel, baseURL string, opts ...Option) *Resolver {
	r := &Resolver{
		doer:        doer,
		model:       model,
		baseURL:     strings.TrimRight(baseURL, "/"),
		strategy:    StrategyAuto,
		maxIDProbes: DefaultMaxIDProbes,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.synth == nil {
		r.synth = payload.NewSynthesizer()
	}
	if r.gens == nil {
		r.gens = []payload.Generator{
			payload.Invalid{},
			payload.NewConstraint(payload.DefaultLimits()),
			payload.NewRandom(nil),
		}
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.maxIDProbes <= 0 {
		r.maxIDProbes = DefaultMaxIDProbes
	}
	return r
}

// Resolve returns the concrete paths to fuzz for template. It never fails:
// parameters that cannot be resolved degrade to "null" or to fuzzed
// substitutions depending on the strategy.
func (r *Resolver) Resolve(ctx context.Context, cred transport.Credentials, template string, useSpecDefaults bool) []string {
	if !HasParameter(template) {
		return []string{template}
	}
	switch r.strategy {
	case StrategyFuzz:
		return r.Fuzzed(template, useSpecDefaults)
	case StrategyResolve:
		p, _ := r.BruteForce(ctx, cred, template)
		return []string{p}
	}
	p, ok := r.BruteForce(ctx, cred, template)
	if ok {
		return []string{p}
	}
	return dedup(append([]string{p}, r.Fuzzed(template, useSpecDefaults)...))
}

// BruteForce resolves parameters left to right. For each one it creates a
// resource on the parent path and probes values from the creation response
// until a GET on parent/value succeeds. ok reports whether every parameter
// was resolved.
func (r *Resolver) BruteForce(ctx context.Context, cred transport.Credentials, template string) (path string, ok bool) {
	comps := Decompose(template)
	ok = true
	for i := range comps {
		if !comps[i].IsParameter {
			continue
		}
		if ctx.Err() != nil {
			ok = false
			break
		}
		realParent, metaParent := parentPaths(comps, i)
		log := r.logger.With(zap.String("template", template), zap.String("parameter", comps[i].Name))

		log.Info("creating resource", zap.String("path", realParent))
		created := r.create(ctx, cred, realParent, r.createPayloads(metaParent))
		if created == nil {
			log.Info("failed to create resource, continuing", zap.String("path", realParent))
			ok = false
			continue
		}

		id, found := r.fetch(ctx, cred, realParent, comps[i], created.Body)
		if !found {
			log.Info("failed to fetch resource by id, continuing", zap.String("path", realParent+"/"+comps[i].Text))
			ok = false
			continue
		}
		log.Info("resolved parameter", zap.String("value", id))
		comps[i].Value = id
		comps[i].Resolved = true
	}
	return render(comps), ok
}

// createPayloads returns the bodies tried against the parent's POST: the
// plain and the spec-derived baseline of its request body, or {} when the
// parent declares none.
func (r *Resolver) createPayloads(metaParent string) []payload.Object {
	if r.model != nil {
		if schema, ok := r.model.CreateSchema(metaParent); ok {
			return []payload.Object{
				r.synth.SynthesizeObject(schema, false),
				r.synth.SynthesizeObject(schema, true),
			}
		}
	}
	return []payload.Object{{}}
}

func (r *Resolver) create(ctx context.Context, cred transport.Credentials, parent string, bodies []payload.Object) *transport.Response {
	for _, body := range bodies {
		resp, err := r.doer.Do(ctx, cred, transport.Request{
			Method: http.MethodPost,
			URL:    r.baseURL + parent,
			Body:   body,
		})
		if err != nil {
			r.logger.Debug("create attempt failed", zap.String("path", parent), zap.Error(err))
			continue
		}
		if resp.OK() {
			return resp
		}
	}
	return nil
}

// fetch probes candidate identifiers taken from a creation response.
func (r *Resolver) fetch(ctx context.Context, cred transport.Credentials, parent string, c Component, body []byte) (string, bool) {
	for _, id := range candidates(body, r.maxIDProbes) {
		resp, err := r.doer.Do(ctx, cred, transport.Request{
			Method: http.MethodGet,
			URL:    childURL(r.baseURL, parent, c, id),
		})
		if err == nil && resp.OK() {
			return id, true
		}
		if ctx.Err() != nil {
			break
		}
	}
	return "", false
}

// candidates lists primitive values of a JSON document in depth-first
// document order. Arrays contribute only their first element. Non-JSON
// bodies are used verbatim when they look like a single token.
func candidates(body []byte, limit int) []string {
	var out []string
	v, err := fastjson.ParseBytes(body)
	if err != nil {
		s := strings.TrimSpace(string(body))
		if s != "" && !strings.ContainsAny(s, " \t\r\n") && len(s) <= 256 {
			out = append(out, s)
		}
		return out
	}
	var walk func(v *fastjson.Value)
	walk = func(v *fastjson.Value) {
		if len(out) >= limit {
			return
		}
		switch v.Type() {
		case fastjson.TypeArray:
			if arr := v.GetArray(); len(arr) > 0 {
				walk(arr[0])
			}
		case fastjson.TypeObject:
			v.GetObject().Visit(func(_ []byte, child *fastjson.Value) {
				walk(child)
			})
		case fastjson.TypeString:
			out = append(out, string(v.GetStringBytes()))
		default:
			// numbers keep their textual form; true, false and null too
			out = append(out, v.String())
		}
	}
	walk(v)
	return out
}

// Fuzzed substitutes the baseline and fuzzed values of the template's path
// parameters, one variant per path.
func (r *Resolver) Fuzzed(template string, useSpecDefaults bool) []string {
	comps := Decompose(template)
	schema := r.parameterSchema(template, comps)
	correct := r.synth.SynthesizeObject(schema, useSpecDefaults)

	var out []string
	for _, variant := range payload.Variants(correct, schema, r.gens...) {
		for i := range comps {
			if !comps[i].IsParameter {
				continue
			}
			comps[i].Value = payload.Stringify(variant[comps[i].Name])
			if _, present := variant[comps[i].Name]; !present {
				comps[i].Value = "undefined"
			}
			comps[i].Resolved = true
		}
		out = append(out, render(comps))
	}
	return dedup(out)
}

// parameterSchema builds an object schema of the template's parameters in
// template order. Parameters the document does not declare are strings.
func (r *Resolver) parameterSchema(template string, comps []Component) *spec.ObjectSchema {
	declared := map[string]spec.ParameterModel{}
	if r.model != nil {
		for _, p := range r.model.PathParameters(template) {
			declared[p.Name] = p
		}
	}
	var params []spec.ParameterModel
	for _, c := range comps {
		if !c.IsParameter {
			continue
		}
		p, ok := declared[c.Name]
		if !ok || p.Schema == nil {
			p = spec.ParameterModel{Name: c.Name, In: spec.InPath, Required: true, Schema: &spec.StringSchema{}}
		}
		params = append(params, p)
	}
	return spec.ObjectOf(params)
}

func dedup(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
