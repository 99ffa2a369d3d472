package spec

import (
	"sort"
	"strings"
)

// Internal Model (IM) definitions consumed by the payload generators and the
// path resolver.

type HttpMethod string

const (
	GET     HttpMethod = "get"
	POST    HttpMethod = "post"
	PUT     HttpMethod = "put"
	DELETE  HttpMethod = "delete"
	PATCH   HttpMethod = "patch"
	HEAD    HttpMethod = "head"
	OPTIONS HttpMethod = "options"
	TRACE   HttpMethod = "trace"
)

// Upper returns the method in the form net/http expects.
func (m HttpMethod) Upper() string { return strings.ToUpper(string(m)) }

type ServiceModel struct {
	Title     string
	Version   string
	Servers   []Server
	Tags      []string
	Endpoints []EndpointModel

	// creates indexes the object request bodies of every POST operation
	// in the document, including operations dropped by filters.
	creates map[string]*ObjectSchema
}

type Server struct {
	URL         string
	Description string
}

type EndpointModel struct {
	ID          string // method+path
	Method      HttpMethod
	Path        string
	Summary     string
	Tags        []string
	Parameters  []ParameterModel
	RequestBody Schema // application/json request body, nil when absent
}

type ParameterModel struct {
	Name     string
	In       string // path|query|header|cookie
	Required bool
	Schema   Schema
}

const (
	InPath   = "path"
	InQuery  = "query"
	InHeader = "header"
)

// Paths returns the distinct endpoint paths in lexical order.
func (sm *ServiceModel) Paths() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, ep := range sm.Endpoints {
		if _, ok := seen[ep.Path]; ok {
			continue
		}
		seen[ep.Path] = struct{}{}
		out = append(out, ep.Path)
	}
	sort.Strings(out)
	return out
}

// Endpoint looks up a single operation.
func (sm *ServiceModel) Endpoint(path string, method HttpMethod) (*EndpointModel, bool) {
	for i := range sm.Endpoints {
		if sm.Endpoints[i].Path == path && sm.Endpoints[i].Method == method {
			return &sm.Endpoints[i], true
		}
	}
	return nil, false
}

// EndpointsFor returns every operation declared on path, in method order.
func (sm *ServiceModel) EndpointsFor(path string) []EndpointModel {
	var out []EndpointModel
	for _, ep := range sm.Endpoints {
		if ep.Path == path {
			out = append(out, ep)
		}
	}
	return out
}

// CreateSchema returns the object request-body schema of the POST operation
// declared on path, if any. Operations excluded by build filters are still
// found; models assembled by hand only see their Endpoints.
func (sm *ServiceModel) CreateSchema(path string) (*ObjectSchema, bool) {
	if sm.creates != nil {
		obj, ok := sm.creates[path]
		return obj, ok
	}
	ep, ok := sm.Endpoint(path, POST)
	if !ok || ep.RequestBody == nil {
		return nil, false
	}
	obj, ok := ep.RequestBody.(*ObjectSchema)
	return obj, ok
}

// PathParameters returns the path parameters declared for path. The first
// operation that declares a parameter wins.
func (sm *ServiceModel) PathParameters(path string) []ParameterModel {
	seen := make(map[string]struct{})
	var out []ParameterModel
	for _, ep := range sm.EndpointsFor(path) {
		for _, p := range ep.Parameters {
			if p.In != InPath {
				continue
			}
			if _, ok := seen[p.Name]; ok {
				continue
			}
			seen[p.Name] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// TargetURL returns the first server URL usable as a base for requests.
func (sm *ServiceModel) TargetURL() string {
	for _, s := range sm.Servers {
		u := strings.TrimSpace(s.URL)
		if u == "" || u == "/" || strings.Contains(u, "{") {
			continue
		}
		return strings.TrimRight(u, "/")
	}
	return ""
}
