package spec

// Kind names the JSON Schema type a Schema node describes.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
)

// String formats with dedicated handling.
const (
	FormatDate     = "date"
	FormatDateTime = "date-time"
)

// Schema is a read-only JSON-Schema-like node. The concrete variants are
// *StringSchema, *NumberSchema, *BooleanSchema, *ArraySchema and
// *ObjectSchema. A nil Schema marks a node without a recognized type; it is
// skipped wherever it appears.
type Schema interface {
	Kind() Kind
	isSchema()
}

type StringSchema struct {
	MinLength *int
	MaxLength *int
	Format    string
	Pattern   string
}

// NumberSchema covers both "number" and "integer".
type NumberSchema struct {
	Integer bool
	Minimum *float64
	Maximum *float64
	Format  string
}

type BooleanSchema struct{}

type ArraySchema struct {
	Items Schema
}

type ObjectSchema struct {
	Properties []Property // declaration order
	Required   []string
}

// Property is one named member of an object schema.
type Property struct {
	Name   string
	Schema Schema
}

func (*StringSchema) Kind() Kind  { return KindString }
func (*BooleanSchema) Kind() Kind { return KindBoolean }
func (*ArraySchema) Kind() Kind   { return KindArray }
func (*ObjectSchema) Kind() Kind  { return KindObject }

func (s *NumberSchema) Kind() Kind {
	if s.Integer {
		return KindInteger
	}
	return KindNumber
}

func (*StringSchema) isSchema()  {}
func (*NumberSchema) isSchema()  {}
func (*BooleanSchema) isSchema() {}
func (*ArraySchema) isSchema()   {}
func (*ObjectSchema) isSchema()  {}

// IsPrimitive reports whether s is a string, number, integer or boolean node.
func IsPrimitive(s Schema) bool {
	switch s.(type) {
	case *StringSchema, *NumberSchema, *BooleanSchema:
		return true
	}
	return false
}

// Property returns the named property schema.
func (o *ObjectSchema) Property(name string) (Schema, bool) {
	for _, p := range o.Properties {
		if p.Name == name {
			return p.Schema, true
		}
	}
	return nil, false
}

// IsRequired reports whether name is listed as required.
func (o *ObjectSchema) IsRequired(name string) bool {
	for _, r := range o.Required {
		if r == name {
			return true
		}
	}
	return false
}

// ObjectOf builds an object schema from parameters, keeping their order.
// Parameters without a recognized schema are kept as gaps.
func ObjectOf(params []ParameterModel) *ObjectSchema {
	obj := &ObjectSchema{}
	for _, p := range params {
		obj.Properties = append(obj.Properties, Property{Name: p.Name, Schema: p.Schema})
		if p.Required {
			obj.Required = append(obj.Required, p.Name)
		}
	}
	return obj
}

// Int and Float are small helpers for building constraint pointers.
func Int(v int) *int { return &v }

func Float(v float64) *float64 { return &v }
