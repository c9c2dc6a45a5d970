package model

import (
	"sort"
)

// ChangeOp says what kind of mutation a Change describes.
type ChangeOp int

const (
	OpSet ChangeOp = iota
	OpUnset
	OpReplace
	OpAdd
	OpRemove
	OpReset
)

// String returns the name of the op.
func (op ChangeOp) String() string {
	switch op {
	case OpSet:
		return "set"
	case OpUnset:
		return "unset"
	case OpReplace:
		return "replace"
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	case OpReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Change describes one mutation of an Object or Collection.
type Change struct {
	Op       ChangeOp
	Name     string // Attribute name (objects)
	Index    int    // Position (collections)
	Value    any
	Previous any
}

// Listener receives change notifications.
type Listener func(Change)

type listeners struct {
	next int
	fns  map[int]Listener
}

func (l *listeners) add(fn Listener) func() {
	if l.fns == nil {
		l.fns = make(map[int]Listener)
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() { delete(l.fns, id) }
}

func (l *listeners) emit(c Change) {
	if len(l.fns) == 0 {
		return
	}
	ids := make([]int, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if fn, ok := l.fns[id]; ok {
			fn(c)
		}
	}
}

// Object is a node with named attributes.
type Object struct {
	kind  Kind
	attrs map[string]any
	subs  listeners
}

// NewObject creates an object of kind with a shallow copy of attrs.
// No defaults are applied; see New for that.
func NewObject(kind Kind, attrs map[string]any) *Object {
	o := &Object{kind: kind, attrs: make(map[string]any, len(attrs))}
	for k, v := range attrs {
		o.attrs[k] = v
	}
	return o
}

func (*Object) node() {}

// Kind returns the entity kind, or "" for a plain object.
func (o *Object) Kind() Kind {
	return o.kind
}

// ID returns the "id" attribute.
func (o *Object) ID() (any, bool) {
	return o.Get("id")
}

// Get returns the named attribute.
func (o *Object) Get(name string) (any, bool) {
	v, ok := o.attrs[name]
	return v, ok
}

// Has reports whether the attribute is present.
func (o *Object) Has(name string) bool {
	_, ok := o.attrs[name]
	return ok
}

// Set assigns the attribute. Subscribers are notified only when the value changes.
func (o *Object) Set(name string, value any) {
	prev, had := o.attrs[name]
	if had && Equal(prev, value) {
		return
	}
	o.attrs[name] = value
	o.subs.emit(Change{Op: OpSet, Name: name, Value: value, Previous: prev})
}

// Unset removes the attribute if present.
func (o *Object) Unset(name string) {
	prev, had := o.attrs[name]
	if !had {
		return
	}
	delete(o.attrs, name)
	o.subs.emit(Change{Op: OpUnset, Name: name, Previous: prev})
}

// Replace swaps the whole attribute set for attrs.
func (o *Object) Replace(attrs map[string]any) {
	next := make(map[string]any, len(attrs))
	for k, v := range attrs {
		next[k] = v
	}
	o.attrs = next
	o.subs.emit(Change{Op: OpReplace})
}

// Notify emits a set notification for an attribute mutated in place.
func (o *Object) Notify(name string) {
	v := o.attrs[name]
	o.subs.emit(Change{Op: OpSet, Name: name, Value: v, Previous: v})
}

// Keys returns the attribute names in sorted order.
func (o *Object) Keys() []string {
	keys := make([]string, 0, len(o.attrs))
	for k := range o.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Attributes returns a shallow copy of the attributes.
func (o *Object) Attributes() map[string]any {
	out := make(map[string]any, len(o.attrs))
	for k, v := range o.attrs {
		out[k] = v
	}
	return out
}

// OnChange subscribes fn and returns a function that unsubscribes it.
func (o *Object) OnChange(fn Listener) func() {
	return o.subs.add(fn)
}

// Matches reports whether every entry of where equals the attribute of the same name.
func (o *Object) Matches(where map[string]any) bool {
	for k, want := range where {
		got, ok := o.attrs[k]
		if !ok || !Equal(got, want) {
			return false
		}
	}
	return true
}
