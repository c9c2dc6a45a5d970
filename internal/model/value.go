package model

import (
	"reflect"
)

// Node is an *Object or a *Collection.
type Node interface {
	node()
}

// KindKey holds an object's kind in its Snapshot.
const KindKey = "$kind"

// Snapshot converts a tree into plain JSON values. Two trees are
// structurally identical when their snapshots are deeply equal.
func Snapshot(v any) any {
	switch t := v.(type) {
	case *Object:
		if t == nil {
			return nil
		}
		out := make(map[string]any, len(t.attrs)+1)
		for k, av := range t.attrs {
			out[k] = Snapshot(av)
		}
		if t.kind != "" {
			out[KindKey] = string(t.kind)
		}
		return out
	case *Collection:
		if t == nil {
			return nil
		}
		out := make([]any, len(t.items))
		for i, o := range t.items {
			out[i] = Snapshot(o)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Snapshot(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Snapshot(e)
		}
		return out
	default:
		return normalize(v)
	}
}

// Clone deep-copies a tree. Subscribers are not copied.
func Clone(v any) any {
	switch t := v.(type) {
	case *Object:
		if t == nil {
			return t
		}
		o := &Object{kind: t.kind, attrs: make(map[string]any, len(t.attrs))}
		for k, av := range t.attrs {
			o.attrs[k] = Clone(av)
		}
		return o
	case *Collection:
		if t == nil {
			return t
		}
		c := &Collection{kind: t.kind, items: make([]*Object, len(t.items))}
		for i, o := range t.items {
			c.items[i] = Clone(o).(*Object)
		}
		return c
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	default:
		return v
	}
}

// Equal compares two values structurally. Numbers compare by value
// regardless of Go type.
func Equal(a, b any) bool {
	return reflect.DeepEqual(Snapshot(a), Snapshot(b))
}

func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}
