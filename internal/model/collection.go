package model

import (
	"errors"
	"fmt"
)

// ErrNegativePosition is returned for an insert before index 0.
var ErrNegativePosition = errors.New("negative position")

// Collection is an ordered list of objects of one kind.
type Collection struct {
	kind  Kind
	items []*Object
	subs  listeners
}

// NewCollection creates a collection whose elements are of kind.
func NewCollection(kind Kind, items ...*Object) *Collection {
	c := &Collection{kind: kind}
	c.items = append(c.items, items...)
	return c
}

func (*Collection) node() {}

// Kind returns the element kind.
func (c *Collection) Kind() Kind {
	return c.kind
}

// Len returns the number of elements.
func (c *Collection) Len() int {
	return len(c.items)
}

// At returns the element at index i.
func (c *Collection) At(i int) (*Object, bool) {
	if i < 0 || i >= len(c.items) {
		return nil, false
	}
	return c.items[i], true
}

// Get returns the element whose id equals id.
func (c *Collection) Get(id any) (*Object, bool) {
	for _, o := range c.items {
		if oid, ok := o.ID(); ok && Equal(oid, id) {
			return o, true
		}
	}
	return nil, false
}

// IndexOf returns the position of o, or -1.
func (c *Collection) IndexOf(o *Object) int {
	for i, item := range c.items {
		if item == o {
			return i
		}
	}
	return -1
}

// FindWhere returns the first element matching every entry of where.
func (c *Collection) FindWhere(where map[string]any) (*Object, bool) {
	for _, o := range c.items {
		if o.Matches(where) {
			return o, true
		}
	}
	return nil, false
}

// Items returns a copy of the elements.
func (c *Collection) Items() []*Object {
	out := make([]*Object, len(c.items))
	copy(out, c.items)
	return out
}

// Add appends o.
func (c *Collection) Add(o *Object) {
	c.items = append(c.items, o)
	c.subs.emit(Change{Op: OpAdd, Index: len(c.items) - 1, Value: o})
}

// Insert places o at pos. A pos past the end appends.
func (c *Collection) Insert(o *Object, pos int) error {
	if pos < 0 {
		return fmt.Errorf("%w: %d", ErrNegativePosition, pos)
	}
	if pos >= len(c.items) {
		c.Add(o)
		return nil
	}
	c.items = append(c.items, nil)
	copy(c.items[pos+1:], c.items[pos:])
	c.items[pos] = o
	c.subs.emit(Change{Op: OpAdd, Index: pos, Value: o})
	return nil
}

// RemoveAt removes the element at index i.
func (c *Collection) RemoveAt(i int) (*Object, bool) {
	if i < 0 || i >= len(c.items) {
		return nil, false
	}
	o := c.items[i]
	c.items = append(c.items[:i], c.items[i+1:]...)
	c.subs.emit(Change{Op: OpRemove, Index: i, Value: o})
	return o, true
}

// Remove removes o, matching by identity and then by id.
func (c *Collection) Remove(o *Object) bool {
	i := c.IndexOf(o)
	if i < 0 {
		if id, ok := o.ID(); ok {
			if found, ok := c.Get(id); ok {
				i = c.IndexOf(found)
			}
		}
	}
	if i < 0 {
		return false
	}
	_, ok := c.RemoveAt(i)
	return ok
}

// Reset replaces every element.
func (c *Collection) Reset(items []*Object) {
	c.items = append([]*Object(nil), items...)
	c.subs.emit(Change{Op: OpReset})
}

// OnChange subscribes fn and returns a function that unsubscribes it.
func (c *Collection) OnChange(fn Listener) func() {
	return c.subs.add(fn)
}
