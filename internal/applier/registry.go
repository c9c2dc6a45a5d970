package applier

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/rickgao/roomsync/internal/model"
)

// Registry maps root names to model trees.
type Registry struct {
	roots map[string]model.Node
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{roots: make(map[string]model.Node)}
}

// Register binds name to root, replacing any earlier binding.
func (r *Registry) Register(name string, root model.Node) {
	r.roots[name] = root
}

// Unregister removes name.
func (r *Registry) Unregister(name string) {
	delete(r.roots, name)
}

// Lookup returns the root bound to name.
func (r *Registry) Lookup(name string) (model.Node, bool) {
	root, ok := r.roots[name]
	return root, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.roots))
	for name := range r.roots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Target is the resolved location of a mutation.
type Target struct {
	Root   string
	Parent any      // Value holding the named property
	Name   *Segment // nil when Parent itself is the target
}

// Subject returns the value being mutated: the named property of Parent,
// or Parent when there is no name.
func (t Target) Subject() (any, bool) {
	if t.Name == nil {
		return t.Parent, true
	}
	return Child(t.Parent, *t.Name)
}

// Resolve locates the target of path. It does not modify the registry or
// any tree.
func Resolve(r *Registry, path []Segment) (Target, error) {
	if len(path) == 0 {
		return Target{}, ErrEmptyPath
	}
	name, ok := path[0].Key()
	if !ok {
		return Target{}, fmt.Errorf("%w: %s", ErrUnknownRoot, path[0])
	}
	root, ok := r.Lookup(name)
	if !ok {
		return Target{}, fmt.Errorf("%w: %q", ErrUnknownRoot, name)
	}

	var cur any = root
	rest := path[1:]
	for len(rest) > 1 {
		next, ok := Child(cur, rest[0])
		if !ok || next == nil {
			return Target{}, fmt.Errorf("%w: %s", ErrMissingSegment, rest[0])
		}
		cur = next
		rest = rest[1:]
	}

	t := Target{Root: name, Parent: cur}
	if len(rest) == 1 && !rest[0].IsNull() {
		seg := rest[0]
		t.Name = &seg
	}
	return t, nil
}

// Child returns the value seg selects inside v. Collections resolve a
// segment by element id first and by position second.
func Child(v any, seg Segment) (any, bool) {
	if seg.IsNull() {
		return nil, false
	}
	switch t := v.(type) {
	case *model.Object:
		return t.Get(seg.Name())
	case *model.Collection:
		if o, ok := collectionByID(t, seg); ok {
			return o, true
		}
		if i, ok := seg.Index(); ok {
			return t.At(i)
		}
		return nil, false
	case []any:
		i, ok := seg.Index()
		if !ok || i < 0 || i >= len(t) {
			return nil, false
		}
		return t[i], true
	case map[string]any:
		e, ok := t[seg.Name()]
		return e, ok
	default:
		return nil, false
	}
}

func collectionByID(c *model.Collection, seg Segment) (*model.Object, bool) {
	if i, ok := seg.Index(); ok {
		return c.Get(float64(i))
	}
	k, _ := seg.Key()
	if o, ok := c.Get(k); ok {
		return o, true
	}
	if f, err := strconv.ParseFloat(k, 64); err == nil {
		return c.Get(f)
	}
	return nil, false
}
