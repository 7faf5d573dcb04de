package ir

// SchemaNode is a sealed tagged variant over normalized JSON-Schema shapes.
// A raw document is resolved into this closed tree once, before traversal,
// so the walker never touches loosely-typed maps and cycle guarding becomes
// a structural property rather than an ad-hoc runtime check.
//
// Only ObjectNode, ArrayNode, ScalarNode, and RefNode implement it.
type SchemaNode interface {
	schemaNode()
}

// ObjectNode is a schema of type object.
type ObjectNode struct {
	// Properties preserves declaration order for deterministic walking.
	Properties []Property
	Required   []string
	// AllOf components are merged into the node during the walk; they are
	// kept here so the merge is a walker concern, not a loader concern.
	AllOf []SchemaNode
}

// Property is a named child schema. A slice of these preserves order.
type Property struct {
	Name   string
	Schema SchemaNode
}

// ArrayNode is a schema of type array.
type ArrayNode struct {
	Items SchemaNode
}

// ScalarNode is a leaf schema: string, integer, number, boolean.
type ScalarNode struct {
	Kind string
	// SemanticTag names the domain concept this field carries, when the
	// loader annotated one (e.g. an identifier type).
	SemanticTag string
}

// RefNode is an unresolved $ref by component name.
type RefNode struct {
	Name string
}

func (*ObjectNode) schemaNode() {}
func (*ArrayNode) schemaNode()  {}
func (*ScalarNode) schemaNode() {}
func (*RefNode) schemaNode()    {}

// PropertyNamed returns the child schema for a name, or nil.
func (o *ObjectNode) PropertyNamed(name string) SchemaNode {
	for _, p := range o.Properties {
		if p.Name == name {
			return p.Schema
		}
	}
	return nil
}

// IsRequired reports whether a property name is in the required list.
func (o *ObjectNode) IsRequired(name string) bool {
	for _, r := range o.Required {
		if r == name {
			return true
		}
	}
	return false
}

// CanonicalField is one flattened field of a walked schema.
type CanonicalField struct {
	// Path is the dotted field path with "[]" markers for array traversal
	// (e.g. "variables[].name").
	Path string `json:"path"`
	// Pointer is the JSON-Pointer form of the same location.
	Pointer     string `json:"pointer"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	SemanticTag string `json:"semanticTag,omitempty"`
}

// MediaShapes maps a media type ("application/json",
// "multipart/form-data") to its flattened request field list. Request
// bodies may support multiple encodings with different field sets, so the
// walker runs once per media type.
type MediaShapes map[string][]CanonicalField

// ShapeIndex holds the canonical shapes for every operation: request
// shapes per media type and the flattened success-response shape.
type ShapeIndex struct {
	Requests  map[string]MediaShapes      `json:"requests,omitempty"`
	Responses map[string][]CanonicalField `json:"responses,omitempty"`
}

// RequestShapes returns the per-media-type request shapes for an operation.
func (x *ShapeIndex) RequestShapes(operationID string) MediaShapes {
	if x == nil {
		return nil
	}
	return x.Requests[operationID]
}

// ResponseShape returns the flattened response fields for an operation.
func (x *ShapeIndex) ResponseShape(operationID string) []CanonicalField {
	if x == nil {
		return nil
	}
	return x.Responses[operationID]
}

// OneOfGroup is one request-body disjoint-union constraint: exactly one of
// the variants' field shapes must be present in a request.
type OneOfGroup struct {
	// Name identifies the group within the operation (often the parent
	// field or discriminator name).
	Name     string         `json:"name"`
	Variants []OneOfVariant `json:"variants"`
	// Polymorphic distinguishes genuine unions (different field sets) from
	// multiple equivalent encodings of the same data. Only polymorphic
	// groups get union-violation negatives.
	Polymorphic bool `json:"polymorphic,omitempty"`
}

// OneOfVariant is one concrete shape of a oneOf group.
type OneOfVariant struct {
	Name   string           `json:"name"`
	Fields []CanonicalField `json:"fields"`
}

// RequiredFields returns the variant's required field subset.
func (v *OneOfVariant) RequiredFields() []CanonicalField {
	var out []CanonicalField
	for _, f := range v.Fields {
		if f.Required {
			out = append(out, f)
		}
	}
	return out
}

// OptionalFields returns the variant's optional field subset.
func (v *OneOfVariant) OptionalFields() []CanonicalField {
	var out []CanonicalField
	for _, f := range v.Fields {
		if !f.Required {
			out = append(out, f)
		}
	}
	return out
}

// RequestVariantIndex maps operation id to its declared oneOf groups.
// Supplied by the external loader alongside the canonical shapes.
type RequestVariantIndex map[string][]OneOfGroup
