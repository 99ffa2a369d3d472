package spec

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

const jsonMime = "application/json"

// BuildOption configures how the ServiceModel is built from an OpenAPI doc.
type BuildOption func(*buildConfig)

type buildConfig struct {
	includeTags map[string]struct{}
	excludeTags map[string]struct{}
	methods     map[HttpMethod]struct{}
	pathRes     []*regexp.Regexp
}

// WithIncludeTags keeps only endpoints that have at least one of the given tags.
func WithIncludeTags(tags []string) BuildOption {
	return func(c *buildConfig) {
		c.includeTags = addTags(c.includeTags, tags)
	}
}

// WithExcludeTags removes endpoints that have any of the given tags.
func WithExcludeTags(tags []string) BuildOption {
	return func(c *buildConfig) {
		c.excludeTags = addTags(c.excludeTags, tags)
	}
}

func addTags(set map[string]struct{}, tags []string) map[string]struct{} {
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if set == nil {
			set = make(map[string]struct{}, len(tags))
		}
		set[t] = struct{}{}
	}
	return set
}

// WithMethods keeps only endpoints using one of the provided HTTP methods.
func WithMethods(methods []HttpMethod) BuildOption {
	return func(c *buildConfig) {
		for _, m := range methods {
			if c.methods == nil {
				c.methods = make(map[HttpMethod]struct{}, len(methods))
			}
			c.methods[HttpMethod(strings.ToLower(string(m)))] = struct{}{}
		}
	}
}

// WithPathPatterns keeps only endpoints whose path matches at least one of
// the provided regular expressions. Invalid patterns never match.
func WithPathPatterns(patterns []string) BuildOption {
	return func(c *buildConfig) {
		for _, p := range patterns {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			re, err := regexp.Compile(p)
			if err != nil {
				re = regexp.MustCompile("a^$")
			}
			c.pathRes = append(c.pathRes, re)
		}
	}
}

// BuildServiceModel converts a loaded document into the Internal Model (IM).
// Schemas are resolved into Schema trees with properties in declaration
// order; filters drop endpoints by tag, method or path pattern.
func BuildServiceModel(ctx context.Context, doc *Document, opts ...BuildOption) (*ServiceModel, error) {
	_ = ctx
	if doc == nil || doc.API == nil {
		return nil, fmt.Errorf("nil document")
	}

	cfg := &buildConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	api := doc.API
	conv := newConverter(newPropertyOrder(doc.Raw))
	sm := &ServiceModel{}
	if api.Info != nil {
		sm.Title = strings.TrimSpace(api.Info.Title)
		sm.Version = strings.TrimSpace(api.Info.Version)
	}
	for _, s := range api.Servers {
		if s == nil {
			continue
		}
		sm.Servers = append(sm.Servers, Server{URL: strings.TrimSpace(s.URL), Description: strings.TrimSpace(s.Description)})
	}

	pathKeys := make([]string, 0, len(api.Paths))
	for p := range api.Paths {
		pathKeys = append(pathKeys, p)
	}
	sort.Strings(pathKeys)

	sm.creates = make(map[string]*ObjectSchema)
	for _, p := range pathKeys {
		item := api.Paths[p]
		if item == nil {
			continue
		}
		pathLoc := "/paths/" + escapePointer(p)

		// Create schemas are indexed before filtering: path resolution
		// needs the parent's POST even when it is not fuzzed itself.
		var createBody Schema
		if item.Post != nil {
			createBody = conv.requestBody(item.Post.RequestBody, pathLoc+"/post")
			if obj, ok := createBody.(*ObjectSchema); ok {
				sm.creates[p] = obj
			}
		}
		if !cfg.allowPath(p) {
			continue
		}

		ops := []struct {
			m HttpMethod
			o *openapi3.Operation
		}{
			{GET, item.Get},
			{POST, item.Post},
			{PUT, item.Put},
			{DELETE, item.Delete},
			{PATCH, item.Patch},
			{HEAD, item.Head},
			{OPTIONS, item.Options},
			{TRACE, item.Trace},
		}

		for _, pair := range ops {
			if pair.o == nil {
				continue
			}
			if len(cfg.methods) > 0 {
				if _, ok := cfg.methods[pair.m]; !ok {
					continue
				}
			}

			tags := make([]string, 0, len(pair.o.Tags))
			for _, t := range pair.o.Tags {
				if t = strings.TrimSpace(t); t != "" {
					tags = append(tags, t)
				}
			}
			if !cfg.allowTags(tags) {
				continue
			}

			opLoc := pathLoc + "/" + string(pair.m)
			body := createBody
			if pair.m != POST {
				body = conv.requestBody(pair.o.RequestBody, opLoc)
			}
			sm.Endpoints = append(sm.Endpoints, EndpointModel{
				ID:          string(pair.m) + " " + p,
				Method:      pair.m,
				Path:        p,
				Summary:     strings.TrimSpace(pair.o.Summary),
				Tags:        tags,
				Parameters:  conv.parameters(item.Parameters, pair.o.Parameters, pathLoc, opLoc),
				RequestBody: body,
			})
		}
	}

	sm.Tags = collectSortedTags(sm.Endpoints)
	return sm, nil
}

func (c *buildConfig) allowPath(p string) bool {
	if len(c.pathRes) == 0 {
		return true
	}
	for _, re := range c.pathRes {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

func (c *buildConfig) allowTags(tags []string) bool {
	if len(c.includeTags) > 0 {
		ok := false
		for _, t := range tags {
			if _, yes := c.includeTags[t]; yes {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, t := range tags {
		if _, blocked := c.excludeTags[t]; blocked {
			return false
		}
	}
	return true
}

type converter struct {
	order propertyOrder
	// active holds the schemas on the current conversion stack; a schema
	// seen again is a $ref cycle and becomes a gap.
	active map[*openapi3.Schema]bool
}

// maxSchemaDepth cuts nesting that is not caught by pointer identity.
const maxSchemaDepth = 32

func newConverter(order propertyOrder) *converter {
	return &converter{order: order, active: make(map[*openapi3.Schema]bool)}
}

// parameters merges path-level and operation-level parameters. Operation
// parameters override path-level ones with the same location and name;
// declaration order is kept. pathLoc and opLoc locate the two lists in the
// raw document.
func (c *converter) parameters(pathLevel, opLevel openapi3.Parameters, pathLoc, opLoc string) []ParameterModel {
	var out []ParameterModel
	index := make(map[string]int)
	lists := []struct {
		params openapi3.Parameters
		loc    string
	}{{pathLevel, pathLoc}, {opLevel, opLoc}}
	for _, list := range lists {
		for i, ref := range list.params {
			if ref == nil || ref.Value == nil {
				continue
			}
			p := ref.Value
			loc := refPointer(ref.Ref, childPointer(list.loc, "parameters", strconv.Itoa(i)))
			pm := ParameterModel{
				Name:     strings.TrimSpace(p.Name),
				In:       strings.TrimSpace(p.In),
				Required: p.Required,
				Schema:   c.schema(p.Schema, childPointer(loc, "schema")),
			}
			key := pm.In + ":" + pm.Name
			if i, ok := index[key]; ok {
				out[i] = pm
				continue
			}
			index[key] = len(out)
			out = append(out, pm)
		}
	}
	return out
}

// requestBody converts the JSON body schema of the operation at opLoc.
func (c *converter) requestBody(ref *openapi3.RequestBodyRef, opLoc string) Schema {
	if ref == nil || ref.Value == nil {
		return nil
	}
	mt := ref.Value.Content.Get(jsonMime)
	if mt == nil {
		return nil
	}
	loc := refPointer(ref.Ref, childPointer(opLoc, "requestBody"))
	return c.schema(mt.Schema, childPointer(loc, "content", jsonMime, "schema"))
}

// schema converts ref; loc is the JSON pointer of ref in the raw document,
// empty when unknown.
func (c *converter) schema(ref *openapi3.SchemaRef, loc string) Schema {
	if ref == nil || ref.Value == nil {
		return nil
	}
	loc = refPointer(ref.Ref, loc)
	s := ref.Value
	if c.active[s] || len(c.active) >= maxSchemaDepth {
		return nil
	}
	c.active[s] = true
	defer delete(c.active, s)

	switch typeOf(s) {
	case "string":
		out := &StringSchema{Format: s.Format, Pattern: s.Pattern}
		if s.MinLength > 0 {
			out.MinLength = Int(int(s.MinLength))
		}
		if s.MaxLength != nil {
			out.MaxLength = Int(int(*s.MaxLength))
		}
		return out
	case "number", "integer":
		out := &NumberSchema{Integer: typeOf(s) == "integer", Format: s.Format}
		if s.Min != nil {
			out.Minimum = Float(*s.Min)
		}
		if s.Max != nil {
			out.Maximum = Float(*s.Max)
		}
		return out
	case "boolean":
		return &BooleanSchema{}
	case "array":
		return &ArraySchema{Items: c.schema(s.Items, childPointer(loc, "items"))}
	case "object":
		return c.object(s, loc)
	}
	return nil
}

func typeOf(s *openapi3.Schema) string {
	if t := strings.TrimSpace(s.Type); t != "" {
		return t
	}
	switch {
	case len(s.Properties) > 0 || len(s.AllOf) > 0:
		return "object"
	case s.Items != nil:
		return "array"
	}
	return ""
}

func (c *converter) object(s *openapi3.Schema, loc string) *ObjectSchema {
	out := &ObjectSchema{Required: append([]string(nil), s.Required...)}
	c.appendProperties(out, s.Properties, loc)
	// allOf members contribute their properties after the schema's own.
	for i, member := range s.AllOf {
		if member == nil || member.Value == nil || c.active[member.Value] {
			continue
		}
		c.active[member.Value] = true
		memberLoc := refPointer(member.Ref, childPointer(loc, "allOf", strconv.Itoa(i)))
		c.appendProperties(out, member.Value.Properties, memberLoc)
		out.Required = append(out.Required, member.Value.Required...)
		delete(c.active, member.Value)
	}
	return out
}

func (c *converter) appendProperties(out *ObjectSchema, props openapi3.Schemas, loc string) {
	if len(props) == 0 {
		return
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	for _, name := range c.order.sorted(loc, names) {
		if _, dup := out.Property(name); dup {
			continue
		}
		out.Properties = append(out.Properties, Property{Name: name, Schema: c.schema(props[name], childPointer(loc, "properties", name))})
	}
}

func collectSortedTags(endpoints []EndpointModel) []string {
	set := make(map[string]struct{})
	for _, ep := range endpoints {
		for _, t := range ep.Tags {
			set[t] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
