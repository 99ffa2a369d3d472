package spec

import (
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// propertyOrder remembers the declaration order of every `properties` block
// in a raw document. kin-openapi stores properties in Go maps, so the order
// is recovered from the YAML node tree. Blocks are keyed by the JSON pointer
// of the schema holding them; the property-name set is a fallback for
// schemas whose location is unknown, such as those converted from Swagger 2.
type propertyOrder struct {
	byPointer map[string][]string
	bySet     map[string][]string
}

func newPropertyOrder(raw []byte) propertyOrder {
	order := propertyOrder{byPointer: map[string][]string{}, bySet: map[string][]string{}}
	if len(raw) == 0 {
		return order
	}
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return order
	}
	order.walk(&root, "")
	return order
}

func (o propertyOrder) walk(n *yaml.Node, ptr string) {
	if n == nil {
		return
	}
	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			o.walk(c, ptr)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if key.Value == "properties" && val.Kind == yaml.MappingNode {
				names := make([]string, 0, len(val.Content)/2)
				for j := 0; j+1 < len(val.Content); j += 2 {
					names = append(names, val.Content[j].Value)
				}
				o.byPointer[ptr] = names
				if sig := signature(names); o.bySet[sig] == nil {
					o.bySet[sig] = names
				}
			}
			o.walk(val, ptr+"/"+escapePointer(key.Value))
		}
	case yaml.SequenceNode:
		for i, c := range n.Content {
			o.walk(c, ptr+"/"+strconv.Itoa(i))
		}
	}
}

// sorted returns names in the order declared by the schema at ptr. Unknown
// locations fall back to the first block with the same names, then to
// lexical order.
func (o propertyOrder) sorted(ptr string, names []string) []string {
	if ptr != "" {
		candidates := []string{ptr}
		if rest, ok := strings.CutPrefix(ptr, "/components/schemas/"); ok {
			candidates = append(candidates, "/definitions/"+rest)
		}
		for _, p := range candidates {
			if declared, ok := o.byPointer[p]; ok && signature(declared) == signature(names) {
				return append([]string(nil), declared...)
			}
		}
	}
	if declared, ok := o.bySet[signature(names)]; ok {
		return append([]string(nil), declared...)
	}
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}

func signature(names []string) string {
	s := append([]string(nil), names...)
	sort.Strings(s)
	return strings.Join(s, "\x00")
}

func escapePointer(token string) string {
	return strings.ReplaceAll(strings.ReplaceAll(token, "~", "~0"), "/", "~1")
}

// childPointer extends ptr by tokens. An unknown location stays unknown.
func childPointer(ptr string, tokens ...string) string {
	if ptr == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(ptr)
	for _, t := range tokens {
		b.WriteByte('/')
		b.WriteString(escapePointer(t))
	}
	return b.String()
}

// refPointer returns the location a $ref points to. Local refs become
// pointers into the raw document, external ones an unknown location; no
// ref keeps the current location.
func refPointer(ref, current string) string {
	switch {
	case ref == "":
		return current
	case strings.HasPrefix(ref, "#/"):
		return ref[1:]
	}
	return ""
}
