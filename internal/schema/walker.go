// Package schema flattens normalized schema trees into canonical field
// lists. The walker consumes the closed ir.SchemaNode variant, so reference
// resolution and allOf merging are structural operations; the only runtime
// guards are the visited set and a depth cap for pathological documents.
package schema

import (
	"strings"

	"github.com/opweave/opweave/internal/ir"
)

// MaxDepth caps recursion for pathological documents. Real API schemas sit
// well below this; anything deeper is treated as a cycle.
const MaxDepth = 30

// Walk flattens a schema into its canonical field list. $ref nodes are
// substituted from the components map, allOf components are merged by union
// of properties and required (last writer wins per property name), and
// recursion tracks dotted paths with "[]" markers for array traversal.
//
// Reference cycles are broken by a visited set keyed on resolved node
// identity: on re-entry the walker returns the partial list built so far
// rather than recursing. A nil or unresolvable schema yields no fields.
//
// Run once per operation per media type; multipart and JSON encodings of
// the same request may declare different field sets.
func Walk(node ir.SchemaNode, components map[string]ir.SchemaNode) []ir.CanonicalField {
	w := &walker{components: components, visited: make(map[ir.SchemaNode]bool)}
	w.walk(node, nil, nil, false, 0)
	return w.fields
}

type walker struct {
	components map[string]ir.SchemaNode
	visited    map[ir.SchemaNode]bool
	fields     []ir.CanonicalField
}

func (w *walker) walk(node ir.SchemaNode, path, pointer []string, required bool, depth int) {
	if node == nil || depth > MaxDepth {
		return
	}
	node = w.resolve(node, depth)
	if node == nil {
		return
	}

	switch n := node.(type) {
	case *ir.ScalarNode:
		w.emit(path, pointer, n.Kind, required, n.SemanticTag)

	case *ir.ArrayNode:
		items := w.resolve(n.Items, depth)
		if items == nil {
			return
		}
		path = appendSegment(path, "[]")
		pointer = append(pointer, "-")
		if w.visited[items] {
			return
		}
		w.walk(items, path, pointer, required, depth+1)

	case *ir.ObjectNode:
		merged := w.mergeAllOf(n, depth)
		if w.visited[merged] {
			return
		}
		w.visited[merged] = true
		for _, prop := range merged.Properties {
			w.walk(prop.Schema,
				append(append([]string(nil), path...), prop.Name),
				append(append([]string(nil), pointer...), prop.Name),
				merged.IsRequired(prop.Name) && (required || len(path) == 0),
				depth+1)
		}
		delete(w.visited, merged)
	}
}

// resolve follows $ref chains until a concrete node is reached. Unknown
// component names resolve to nil, which the caller skips; a missing
// component is a document defect the cross-validation stage reports, not a
// walker failure.
func (w *walker) resolve(node ir.SchemaNode, depth int) ir.SchemaNode {
	for hops := 0; hops <= MaxDepth; hops++ {
		ref, ok := node.(*ir.RefNode)
		if !ok {
			return node
		}
		next, ok := w.components[ref.Name]
		if !ok {
			return nil
		}
		node = next
	}
	return nil
}

// mergeAllOf folds a node's allOf components into a single object: property
// union with last-writer-wins per name, required union. Non-object
// components (after resolution) are ignored; a scalar inside allOf carries
// no fields to flatten.
func (w *walker) mergeAllOf(n *ir.ObjectNode, depth int) *ir.ObjectNode {
	if len(n.AllOf) == 0 {
		return n
	}
	merged := &ir.ObjectNode{
		Properties: append([]ir.Property(nil), n.Properties...),
		Required:   append([]string(nil), n.Required...),
	}
	for _, component := range n.AllOf {
		resolved := w.resolve(component, depth)
		obj, ok := resolved.(*ir.ObjectNode)
		if !ok {
			continue
		}
		obj = w.mergeAllOf(obj, depth+1)
		for _, prop := range obj.Properties {
			setProperty(merged, prop)
		}
		for _, req := range obj.Required {
			if !contains(merged.Required, req) {
				merged.Required = append(merged.Required, req)
			}
		}
	}
	return merged
}

func (w *walker) emit(path, pointer []string, typ string, required bool, tag string) {
	if len(path) == 0 {
		return
	}
	w.fields = append(w.fields, ir.CanonicalField{
		Path:        strings.Join(path, "."),
		Pointer:     "/" + strings.Join(pointer, "/"),
		Type:        typ,
		Required:    required,
		SemanticTag: tag,
	})
}

func appendSegment(path []string, marker string) []string {
	if len(path) == 0 {
		return path
	}
	out := append([]string(nil), path...)
	out[len(out)-1] += marker
	return out
}

func setProperty(obj *ir.ObjectNode, prop ir.Property) {
	for i, have := range obj.Properties {
		if have.Name == prop.Name {
			obj.Properties[i] = prop
			return
		}
	}
	obj.Properties = append(obj.Properties, prop)
}

func contains(list []string, s string) bool {
	for _, have := range list {
		if have == s {
			return true
		}
	}
	return false
}
