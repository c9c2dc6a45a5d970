package applier

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rickgao/roomsync/internal/model"
)

// Applier patches registered roots with operations from the relay.
type Applier struct {
	registry *Registry
	logger   *slog.Logger
}

// New creates an Applier over registry.
func New(registry *Registry, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{
		registry: registry,
		logger:   logger.With("component", "applier"),
	}
}

// Registry returns the root registry.
func (a *Applier) Registry() *Registry {
	return a.registry
}

// Handle decodes and applies the args of one state message. A failure is
// logged and drops only this operation.
func (a *Applier) Handle(raw json.RawMessage) {
	op, err := ParseOperation(raw)
	if err == nil {
		err = a.Apply(op)
	}
	if err != nil {
		a.logger.Warn("dropping operation", "error", err)
	}
}

// Apply performs op. Errors are *ApplicationError.
func (a *Applier) Apply(op Operation) error {
	if err := a.apply(op); err != nil {
		return &ApplicationError{Path: op.Path, Op: op.Op, Err: err}
	}
	return nil
}

func (a *Applier) apply(op Operation) error {
	target, err := Resolve(a.registry, op.Path)
	if err != nil {
		return err
	}
	value, err := castValue(op)
	if err != nil {
		return err
	}

	switch op.Op {
	case OpSet:
		return applySet(target, value)
	case OpUnset:
		return applyUnset(target)
	case OpInsert:
		return applyInsert(target, value, op.Pos)
	case OpDelete:
		return applyDelete(target, op, value)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownOp, op.Op)
	}
}

// castValue decodes the value, converting it to an entity when the
// operation carries a type tag.
func castValue(op Operation) (any, error) {
	if !op.HasValue() {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(op.Value, &v); err != nil {
		return nil, fmt.Errorf("%w: value: %v", ErrMalformedOperation, err)
	}
	if op.Type == "" || v == nil {
		return v, nil
	}
	kind, err := model.ParseKind(op.Type)
	if err != nil {
		return nil, err
	}
	return model.Cast(kind, v)
}

func applySet(t Target, value any) error {
	if t.Name == nil {
		switch p := t.Parent.(type) {
		case *model.Object:
			attrs, err := attributesOf(value)
			if err != nil {
				return err
			}
			p.Replace(attrs)
			return nil
		case *model.Collection:
			seq, ok := value.([]any)
			if !ok {
				return fmt.Errorf("%w: set collection from %T", ErrUnsupportedTarget, value)
			}
			items := make([]*model.Object, 0, len(seq))
			for _, e := range seq {
				o, err := elementFor(p, e)
				if err != nil {
					return err
				}
				items = append(items, o)
			}
			p.Reset(items)
			return nil
		default:
			return fmt.Errorf("%w: set on %T", ErrUnsupportedTarget, t.Parent)
		}
	}

	owner, ok := t.Parent.(*model.Object)
	if !ok {
		return fmt.Errorf("%w: set property on %T", ErrUnsupportedTarget, t.Parent)
	}
	owner.Set(t.Name.Name(), value)
	return nil
}

func applyUnset(t Target) error {
	if t.Name == nil {
		return ErrUnsetWithoutName
	}
	owner, ok := t.Parent.(*model.Object)
	if !ok {
		return fmt.Errorf("%w: unset property on %T", ErrUnsupportedTarget, t.Parent)
	}
	owner.Unset(t.Name.Name())
	return nil
}

func applyInsert(t Target, value any, pos *int) error {
	subject, ok := t.Subject()
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingSegment, t.Name)
	}

	switch s := subject.(type) {
	case *model.Collection:
		o, err := elementFor(s, value)
		if err != nil {
			return err
		}
		if pos == nil {
			s.Add(o)
			return nil
		}
		if err := s.Insert(o, *pos); err != nil {
			return fmt.Errorf("%w: %v", ErrPosition, err)
		}
		return nil
	case []any:
		owner, name, err := sequenceOwner(t)
		if err != nil {
			return err
		}
		at := len(s)
		if pos != nil {
			if *pos < 0 {
				return fmt.Errorf("%w: %d", ErrPosition, *pos)
			}
			if *pos < at {
				at = *pos
			}
		}
		next := make([]any, 0, len(s)+1)
		next = append(next, s[:at]...)
		next = append(next, value)
		next = append(next, s[at:]...)
		owner.Set(name, next)
		return nil
	default:
		return fmt.Errorf("%w: insert into %T", ErrUnsupportedTarget, subject)
	}
}

func applyDelete(t Target, op Operation, value any) error {
	selectors := 0
	if op.Pos != nil {
		selectors++
	}
	if op.FindWhere != nil {
		selectors++
	}
	if op.HasValue() {
		selectors++
	}
	if selectors != 1 {
		return ErrDeleteSelector
	}

	subject, ok := t.Subject()
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingSegment, t.Name)
	}

	switch s := subject.(type) {
	case *model.Collection:
		return deleteFromCollection(s, op, value)
	case []any:
		owner, name, err := sequenceOwner(t)
		if err != nil {
			return err
		}
		next, err := deleteFromSequence(s, op, value)
		if err != nil {
			return err
		}
		owner.Set(name, next)
		return nil
	default:
		return fmt.Errorf("%w: delete from %T", ErrUnsupportedTarget, subject)
	}
}

func deleteFromCollection(c *model.Collection, op Operation, value any) error {
	switch {
	case op.Pos != nil:
		if _, ok := c.RemoveAt(*op.Pos); !ok {
			return fmt.Errorf("%w: %d of %d", ErrPosition, *op.Pos, c.Len())
		}
		return nil
	case op.FindWhere != nil:
		o, ok := c.FindWhere(op.FindWhere)
		if !ok {
			return ErrNoMatch
		}
		c.Remove(o)
		return nil
	default:
		var o *model.Object
		switch v := value.(type) {
		case *model.Object:
			o = v
		case map[string]any:
			o = model.NewObject(c.Kind(), v)
		default:
			found, ok := c.Get(v)
			if !ok {
				return ErrNoMatch
			}
			o = found
		}
		if !c.Remove(o) {
			return ErrNoMatch
		}
		return nil
	}
}

func deleteFromSequence(s []any, op Operation, value any) ([]any, error) {
	switch {
	case op.Pos != nil:
		i := *op.Pos
		if i < 0 || i >= len(s) {
			return nil, fmt.Errorf("%w: %d of %d", ErrPosition, i, len(s))
		}
		next := make([]any, 0, len(s)-1)
		next = append(next, s[:i]...)
		return append(next, s[i+1:]...), nil
	case op.FindWhere != nil:
		for i, e := range s {
			if matches(e, op.FindWhere) {
				next := make([]any, 0, len(s)-1)
				next = append(next, s[:i]...)
				return append(next, s[i+1:]...), nil
			}
		}
		return nil, ErrNoMatch
	default:
		next := make([]any, 0, len(s))
		for _, e := range s {
			if !model.Equal(e, value) {
				next = append(next, e)
			}
		}
		if len(next) == len(s) {
			return nil, ErrNoMatch
		}
		return next, nil
	}
}

// sequenceOwner returns the object holding a plain sequence so the spliced
// copy can be written back with a change notification.
func sequenceOwner(t Target) (*model.Object, string, error) {
	owner, ok := t.Parent.(*model.Object)
	if !ok || t.Name == nil {
		return nil, "", fmt.Errorf("%w: sequence not held by an object", ErrUnsupportedTarget)
	}
	return owner, t.Name.Name(), nil
}

func elementFor(c *model.Collection, value any) (*model.Object, error) {
	if o, ok := value.(*model.Object); ok {
		return o, nil
	}
	if c.Kind() == "" {
		attrs, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: collection element %T", model.ErrNotObject, value)
		}
		return model.NewObject("", attrs), nil
	}
	return model.Cast(c.Kind(), value)
}

func attributesOf(value any) (map[string]any, error) {
	switch v := value.(type) {
	case *model.Object:
		return v.Attributes(), nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: replace attributes with %T", model.ErrNotObject, value)
	}
}

func matches(e any, where map[string]any) bool {
	switch v := e.(type) {
	case *model.Object:
		return v.Matches(where)
	case map[string]any:
		for k, want := range where {
			got, ok := v[k]
			if !ok || !model.Equal(got, want) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
