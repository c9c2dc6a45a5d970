package model

import (
	"encoding/json"
	"fmt"
)

// RootSpec describes a named tree a client keeps in sync.
type RootSpec struct {
	Name       string `yaml:"name" json:"name"`
	Kind       Kind   `yaml:"kind" json:"kind"`
	Collection bool   `yaml:"collection" json:"collection"` // Ordered collection of Kind
}

// DefaultRoots are the trees an event page registers.
var DefaultRoots = []RootSpec{
	{Name: "event", Kind: KindEvent},
	{Name: "messages", Kind: KindChatMessage, Collection: true},
}

// NewRoot builds the tree for spec from decoded JSON. A nil data yields an
// empty tree.
func NewRoot(spec RootSpec, data any) (Node, error) {
	if spec.Collection {
		switch v := data.(type) {
		case nil:
			return NewCollection(spec.Kind), nil
		case []any:
			items, err := castAll(spec.Kind, v)
			if err != nil {
				return nil, fmt.Errorf("root %s: %w", spec.Name, err)
			}
			return NewCollection(spec.Kind, items...), nil
		default:
			return nil, fmt.Errorf("root %s: %w: want a list, got %T", spec.Name, ErrNotObject, data)
		}
	}

	switch v := data.(type) {
	case nil:
		return New(spec.Kind, nil)
	case map[string]any:
		o, err := New(spec.Kind, v)
		if err != nil {
			return nil, fmt.Errorf("root %s: %w", spec.Name, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("root %s: %w: got %T", spec.Name, ErrNotObject, data)
	}
}

// DecodeRoot builds the tree for spec from raw JSON.
func DecodeRoot(spec RootSpec, raw json.RawMessage) (Node, error) {
	var data any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("root %s: %w", spec.Name, err)
		}
	}
	return NewRoot(spec, data)
}
