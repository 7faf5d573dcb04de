package ir

import (
	"encoding/json"
	"fmt"
)

// BodyNode is a sealed tagged variant modeling a synthesized request body.
// Bodies are trees of literals and binding references, never strings with
// embedded markers: every BindingRef is resolved in one explicit final pass
// against the scenario's binding table, which makes "this required field
// was intentionally omitted" a structural fact instead of string surgery.
//
// Only Literal, BindingRef, BodyObject, and BodyArray implement it.
type BodyNode interface {
	bodyNode()
}

// Literal is a concrete JSON scalar value (string, int64, bool, or nil).
type Literal struct {
	Value any
}

// BindingRef names a placeholder in the scenario's binding table.
type BindingRef struct {
	Name string
}

// BodyObject is a JSON object with deterministic entry order.
type BodyObject struct {
	Entries []BodyEntry
}

// BodyEntry is one key of a BodyObject.
type BodyEntry struct {
	Key  string
	Node BodyNode
}

// BodyArray is a JSON array.
type BodyArray struct {
	Elems []BodyNode
}

func (Literal) bodyNode()     {}
func (BindingRef) bodyNode()  {}
func (*BodyObject) bodyNode() {}
func (*BodyArray) bodyNode()  {}

// Set inserts or replaces the entry for a key, preserving existing order.
func (o *BodyObject) Set(key string, node BodyNode) {
	for i, e := range o.Entries {
		if e.Key == key {
			o.Entries[i].Node = node
			return
		}
	}
	o.Entries = append(o.Entries, BodyEntry{Key: key, Node: node})
}

// Get returns the node for a key, or nil.
func (o *BodyObject) Get(key string) BodyNode {
	for _, e := range o.Entries {
		if e.Key == key {
			return e.Node
		}
	}
	return nil
}

// Delete removes the entry for a key if present.
func (o *BodyObject) Delete(key string) {
	for i, e := range o.Entries {
		if e.Key == key {
			o.Entries = append(o.Entries[:i], o.Entries[i+1:]...)
			return
		}
	}
}

// MarshalJSON renders the template tree. Binding references serialize as
// {"$binding": name} so emitters and golden files can see unresolved slots.
func (o *BodyObject) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, e := range o.Entries {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		val, err := marshalBodyNode(e.Node)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", e.Key, err)
		}
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}

// MarshalJSON renders the array's elements.
func (a *BodyArray) MarshalJSON() ([]byte, error) {
	buf := []byte{'['}
	for i, el := range a.Elems {
		if i > 0 {
			buf = append(buf, ',')
		}
		val, err := marshalBodyNode(el)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		buf = append(buf, val...)
	}
	return append(buf, ']'), nil
}

func marshalBodyNode(n BodyNode) ([]byte, error) {
	switch v := n.(type) {
	case Literal:
		return json.Marshal(v.Value)
	case BindingRef:
		return json.Marshal(map[string]string{"$binding": v.Name})
	case *BodyObject:
		return v.MarshalJSON()
	case *BodyArray:
		return v.MarshalJSON()
	default:
		return nil, fmt.Errorf("unsupported body node type: %T", n)
	}
}

// ResolveBindings replaces every BindingRef in the tree with the literal
// from the table. Pending and absent bindings stay as references; only
// literals substitute. Returns a new tree; the input is not mutated.
func ResolveBindings(n BodyNode, table map[string]BindingValue) BodyNode {
	switch v := n.(type) {
	case BindingRef:
		if b, ok := table[v.Name]; ok && b.Kind == BindingLiteral {
			return Literal{Value: b.Value}
		}
		return v
	case *BodyObject:
		out := &BodyObject{Entries: make([]BodyEntry, len(v.Entries))}
		for i, e := range v.Entries {
			out.Entries[i] = BodyEntry{Key: e.Key, Node: ResolveBindings(e.Node, table)}
		}
		return out
	case *BodyArray:
		out := &BodyArray{Elems: make([]BodyNode, len(v.Elems))}
		for i, el := range v.Elems {
			out.Elems[i] = ResolveBindings(el, table)
		}
		return out
	default:
		return n
	}
}
