package model

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrUnknownKind = errors.New("unknown entity kind")
	ErrNotObject   = errors.New("value is not an object")
)

// Kind names an entity type.
type Kind string

// -----------------------------------------------------------------------------
// Entity Kinds
// -----------------------------------------------------------------------------

const (
	KindUser        Kind = "User"
	KindSession     Kind = "Session"
	KindChatMessage Kind = "ChatMessage"

	// KindEvent is a root-only kind; operations cannot cast to it.
	KindEvent Kind = "Event"
)

// MaxAttendees is the default session join cap.
const MaxAttendees = 10

// now stamps chat messages that arrive without a time.
var now = time.Now

// castable is the closed set of kinds an operation may carry.
var castable = map[Kind]bool{
	KindUser:        true,
	KindSession:     true,
	KindChatMessage: true,
}

// ParseKind validates an operation's type tag.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !castable[k] {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Defaults returns a fresh attribute set for kind.
func Defaults(kind Kind) (map[string]any, error) {
	switch kind {
	case "":
		return map[string]any{}, nil
	case KindUser:
		return map[string]any{
			"picture":          "",
			"perms":            map[string]any{},
			"superuser":        false,
			"displayName":      "[unknown]",
			"link":             nil,
			"emails":           []any{},
			"preferredContact": nil,
			"networkList":      map[string]any{},
		}, nil
	case KindSession:
		return map[string]any{
			"title":                 "",
			"description":           "",
			"shortCode":             nil,
			"proposedBy":            nil,
			"connectedParticipants": []any{},
			"joiningParticipants":   []any{},
			"activities":            []any{},
			"joinCap":               float64(MaxAttendees),
			"approved":              false,
			"votes":                 float64(0),
			"votedBy":               []any{},
		}, nil
	case KindChatMessage:
		return map[string]any{
			"text":        "",
			"time":        float64(now().UnixMilli()),
			"user":        nil,
			"past":        false,
			"postAsAdmin": false,
		}, nil
	case KindEvent:
		return map[string]any{
			"title":                 "",
			"organizer":             "",
			"shortName":             nil,
			"description":           "",
			"open":                  false,
			"hoa":                   nil,
			"sessionsOpen":          false,
			"adminProposedSessions": true,
			"previousVideoEmbeds":   []any{},
			"admins":                []any{},
			"sessions":              NewCollection(KindSession),
			"connectedUsers":        NewCollection(KindUser),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// New creates an object of kind, filling absent attributes from its defaults.
// Plain sequences supplied for a collection-valued default are cast into it.
func New(kind Kind, attrs map[string]any) (*Object, error) {
	out, err := Defaults(kind)
	if err != nil {
		return nil, err
	}
	for k, v := range attrs {
		if k == KindKey {
			continue
		}
		if coll, ok := out[k].(*Collection); ok {
			if seq, ok := v.([]any); ok {
				items, err := castAll(coll.Kind(), seq)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", kind, k, err)
				}
				coll.Reset(items)
				continue
			}
		}
		out[k] = v
	}
	return &Object{kind: kind, attrs: out}, nil
}

// Cast converts a decoded JSON value into an entity of kind.
// An *Object passes through when its kind already matches.
func Cast(kind Kind, value any) (*Object, error) {
	switch v := value.(type) {
	case *Object:
		if v.kind == kind {
			return v, nil
		}
		return New(kind, v.Attributes())
	case map[string]any:
		return New(kind, v)
	default:
		return nil, fmt.Errorf("%w: cannot cast %T to %s", ErrNotObject, value, kind)
	}
}

func castAll(kind Kind, seq []any) ([]*Object, error) {
	items := make([]*Object, 0, len(seq))
	for i, v := range seq {
		o, err := Cast(kind, v)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		items = append(items, o)
	}
	return items, nil
}
