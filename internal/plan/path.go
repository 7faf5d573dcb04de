package plan

import (
	"strings"

	"github.com/opweave/opweave/internal/ir"
)

// setPath writes a node at a dotted field path, creating intermediate
// objects as needed. A segment with the "[]" marker becomes an array of a
// single element, which is all a synthesized request needs.
func setPath(obj *ir.BodyObject, path string, node ir.BodyNode) {
	segments := strings.Split(path, ".")
	cur := obj
	for _, seg := range segments[:len(segments)-1] {
		cur = descend(cur, seg, true)
		if cur == nil {
			return
		}
	}
	last := segments[len(segments)-1]
	if key, isArray := strings.CutSuffix(last, "[]"); isArray {
		cur.Set(key, &ir.BodyArray{Elems: []ir.BodyNode{node}})
		return
	}
	cur.Set(last, node)
}

// deletePath removes the entry at a dotted field path. Missing intermediate
// segments make it a no-op.
func deletePath(obj *ir.BodyObject, path string) {
	segments := strings.Split(path, ".")
	cur := obj
	for _, seg := range segments[:len(segments)-1] {
		cur = descend(cur, seg, false)
		if cur == nil {
			return
		}
	}
	last := segments[len(segments)-1]
	key, _ := strings.CutSuffix(last, "[]")
	cur.Delete(key)
}

// descend resolves one intermediate path segment to its child object,
// unwrapping the single-element array for "[]" segments. With create set,
// missing children are materialized.
func descend(cur *ir.BodyObject, seg string, create bool) *ir.BodyObject {
	key, isArray := strings.CutSuffix(seg, "[]")
	existing := cur.Get(key)

	if isArray {
		if arr, ok := existing.(*ir.BodyArray); ok && len(arr.Elems) > 0 {
			if child, ok := arr.Elems[0].(*ir.BodyObject); ok {
				return child
			}
		}
		if !create {
			return nil
		}
		child := &ir.BodyObject{}
		cur.Set(key, &ir.BodyArray{Elems: []ir.BodyNode{child}})
		return child
	}

	if child, ok := existing.(*ir.BodyObject); ok {
		return child
	}
	if !create {
		return nil
	}
	child := &ir.BodyObject{}
	cur.Set(key, child)
	return child
}
