// Package pathres turns path templates such as /users/{userId}/posts into
// concrete request paths, either by creating and fetching real resources on
// the target or by substituting fuzzed parameter values.
package pathres

import (
	"net/url"
	"regexp"
	"strings"
)

// paramSegmentRe matches a segment holding one placeholder, possibly with
// literal text around it as in {id}.json.
var paramSegmentRe = regexp.MustCompile(`^([^{}]*)\{([^{}]+)\}([^{}]*)$`)

// unresolved is rendered for parameters that could not be resolved.
const unresolved = "null"

// HasParameter reports whether any segment of path is a parameter segment.
func HasParameter(path string) bool {
	for _, c := range Decompose(path) {
		if c.IsParameter {
			return true
		}
	}
	return false
}

// Component is one /-delimited segment of a path template.
type Component struct {
	Text        string
	IsParameter bool
	Name        string // parameter name without braces
	Prefix      string // literal text before the placeholder
	Suffix      string // literal text after the placeholder
	SelfIndex   int
	ParentIndex int // -1 for the first segment

	Value    string
	Resolved bool
}

// Decompose splits a template into components.
func Decompose(template string) []Component {
	parts := strings.Split(template, "/")
	if len(parts) > 0 && parts[0] == "" {
		parts = parts[1:]
	}
	out := make([]Component, 0, len(parts))
	for i, p := range parts {
		c := Component{Text: p, SelfIndex: i, ParentIndex: i - 1}
		if m := paramSegmentRe.FindStringSubmatch(p); m != nil {
			c.IsParameter = true
			c.Prefix, c.Name, c.Suffix = m[1], m[2], m[3]
		}
		out = append(out, c)
	}
	return out
}

// segment renders c for a concrete path.
func (c Component) segment() string {
	switch {
	case !c.IsParameter:
		return c.Text
	case c.Resolved:
		return c.Prefix + url.PathEscape(c.Value) + c.Suffix
	}
	return c.Prefix + unresolved + c.Suffix
}

// parentPaths returns the template prefix before comps[i] ("meta") and the
// same prefix with earlier parameters replaced by their values ("real").
// The first segment's parent is "/".
func parentPaths(comps []Component, i int) (real, meta string) {
	if i == 0 {
		return "/", "/"
	}
	realParts := make([]string, 0, i)
	metaParts := make([]string, 0, i)
	for _, c := range comps[:i] {
		realParts = append(realParts, c.segment())
		metaParts = append(metaParts, c.Text)
	}
	return "/" + strings.Join(realParts, "/"), "/" + strings.Join(metaParts, "/")
}

// render joins comps back into a concrete path.
func render(comps []Component) string {
	parts := make([]string, len(comps))
	for i, c := range comps {
		parts[i] = c.segment()
	}
	return "/" + strings.Join(parts, "/")
}

// childURL returns the URL of the resource id below parent, with id placed
// into c's segment.
func childURL(base, parent string, c Component, id string) string {
	return base + strings.TrimRight(parent, "/") + "/" + c.Prefix + url.PathEscape(id) + c.Suffix
}

// ExtractPathParams maps parameter names of template to the matching
// segments of a concrete path.
func ExtractPathParams(template, realPath string) map[string]string {
	out := map[string]string{}
	comps := Decompose(template)
	segs := strings.Split(strings.TrimPrefix(realPath, "/"), "/")
	for i, c := range comps {
		if !c.IsParameter || i >= len(segs) {
			continue
		}
		seg := segs[i]
		if len(seg) < len(c.Prefix)+len(c.Suffix) || !strings.HasPrefix(seg, c.Prefix) || !strings.HasSuffix(seg, c.Suffix) {
			continue
		}
		seg = seg[len(c.Prefix) : len(seg)-len(c.Suffix)]
		v, err := url.PathUnescape(seg)
		if err != nil {
			v = seg
		}
		out[c.Name] = v
	}
	return out
}
