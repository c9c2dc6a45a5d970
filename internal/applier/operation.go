package applier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// -----------------------------------------------------------------------------
// Path Segments
// -----------------------------------------------------------------------------

type segmentKind int

const (
	segNull segmentKind = iota
	segKey
	segIndex
)

// Segment is one path element: a key, an index, or null.
type Segment struct {
	kind  segmentKind
	key   string
	index int
}

// Key returns a key segment.
func Key(k string) Segment { return Segment{kind: segKey, key: k} }

// Index returns an index segment.
func Index(i int) Segment { return Segment{kind: segIndex, index: i} }

// Null returns the absent-name segment.
func Null() Segment { return Segment{} }

// IsNull reports whether the segment names nothing.
func (s Segment) IsNull() bool { return s.kind == segNull }

// Key returns the key and whether this is a key segment.
func (s Segment) Key() (string, bool) { return s.key, s.kind == segKey }

// Index returns the index and whether this is an index segment.
func (s Segment) Index() (int, bool) { return s.index, s.kind == segIndex }

// Name returns the segment as an attribute name.
func (s Segment) Name() string {
	switch s.kind {
	case segKey:
		return s.key
	case segIndex:
		return strconv.Itoa(s.index)
	default:
		return ""
	}
}

// String formats the segment for logs.
func (s Segment) String() string {
	if s.kind == segNull {
		return "null"
	}
	return s.Name()
}

// MarshalJSON encodes the segment as a string, number or null.
func (s Segment) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case segKey:
		return json.Marshal(s.key)
	case segIndex:
		return json.Marshal(s.index)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a string, integral number or null.
func (s *Segment) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*s = Null()
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var k string
		if err := json.Unmarshal(trimmed, &k); err != nil {
			return err
		}
		*s = Key(k)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("path segment %s: want string, integer or null", trimmed)
	}
	i, err := strconv.Atoi(n.String())
	if err != nil {
		return fmt.Errorf("path segment %s: not an integer", trimmed)
	}
	*s = Index(i)
	return nil
}

// FormatPath renders a path for logs.
func FormatPath(path []Segment) string {
	parts := make([]string, len(path))
	for i, s := range path {
		parts[i] = s.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// -----------------------------------------------------------------------------
// Operations
// -----------------------------------------------------------------------------

// OpKind is the mutation an Operation performs.
type OpKind int

const (
	OpSet OpKind = iota + 1
	OpUnset
	OpInsert
	OpDelete
)

// String returns the wire name.
func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpUnset:
		return "unset"
	case OpInsert:
		return "insert"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseOpKind parses a wire op name.
func ParseOpKind(s string) (OpKind, error) {
	switch s {
	case "set":
		return OpSet, nil
	case "unset":
		return OpUnset, nil
	case "insert":
		return OpInsert, nil
	case "delete":
		return OpDelete, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownOp, s)
	}
}

// MarshalJSON encodes the wire name.
func (k OpKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes the wire name.
func (k *OpKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseOpKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Operation is one mutation against a registered root.
type Operation struct {
	Path      []Segment       `json:"path"`
	Op        OpKind          `json:"op"`
	Value     json.RawMessage `json:"value,omitempty"` // Absent differs from null
	Type      string          `json:"type,omitempty"`
	Pos       *int            `json:"pos,omitempty"`
	FindWhere map[string]any  `json:"findWhere,omitempty"`
}

// HasValue reports whether the operation carries a value, including null.
func (op Operation) HasValue() bool {
	return len(bytes.TrimSpace(op.Value)) > 0
}

// ParseOperation decodes the args of a state message.
func ParseOperation(raw json.RawMessage) (Operation, error) {
	var op Operation
	if err := json.Unmarshal(raw, &op); err != nil {
		return Operation{}, &ApplicationError{Err: fmt.Errorf("%w: %v", ErrMalformedOperation, err)}
	}
	if op.Op == 0 {
		return Operation{}, &ApplicationError{Path: op.Path, Err: fmt.Errorf("%w: missing op", ErrMalformedOperation)}
	}
	return op, nil
}
