package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
)

// ErrMalformedSharePayload reports a sharedWith payload that could not be decoded.
// Decoding still yields an empty, fail-closed value alongside this error.
var ErrMalformedSharePayload = errors.New("malformed sharedWith payload")

// SharedWith lists the explicit share targets of a product. GroupIDs are only
// consulted for groups visibility and UserIDs only for specific visibility.
type SharedWith struct {
	GroupIDs []string `json:"groupIds"`
	UserIDs  []string `json:"userIds"`
	// Malformed marks a payload that failed to decode; it carries no targets.
	Malformed bool `json:"malformed,omitempty"`
}

// NewSharedWith builds a normalised share target value.
func NewSharedWith(groupIDs, userIDs []string) SharedWith {
	return SharedWith{GroupIDs: normaliseIDs(groupIDs), UserIDs: normaliseIDs(userIDs)}
}

// IsZero reports whether no targets are recorded.
func (s SharedWith) IsZero() bool {
	return len(s.GroupIDs) == 0 && len(s.UserIDs) == 0 && !s.Malformed
}

// Clone returns a deep copy.
func (s SharedWith) Clone() SharedWith {
	return SharedWith{
		GroupIDs:  append([]string(nil), s.GroupIDs...),
		UserIDs:   append([]string(nil), s.UserIDs...),
		Malformed: s.Malformed,
	}
}

type sharedWithWire struct {
	GroupIDs  []json.RawMessage `json:"groupIds"`
	UserIDs   []json.RawMessage `json:"userIds"`
	Malformed bool              `json:"malformed"`
}

// DecodeSharedWith decodes a stored sharedWith payload. It accepts the
// structured object form, the legacy form where that object was stored as a
// JSON-encoded string, and numeric or string identifiers. Any failure yields
// an empty value with Malformed set and ErrMalformedSharePayload.
func DecodeSharedWith(raw []byte) (SharedWith, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return SharedWith{}, nil
	}
	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return malformedSharedWith()
		}
		if inner == "" {
			return SharedWith{}, nil
		}
		return DecodeSharedWith([]byte(inner))
	}
	if trimmed[0] != '{' {
		return malformedSharedWith()
	}
	var wire sharedWithWire
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return malformedSharedWith()
	}
	if wire.Malformed {
		return malformedSharedWith()
	}
	groups, ok := decodeIDList(wire.GroupIDs)
	if !ok {
		return malformedSharedWith()
	}
	users, ok := decodeIDList(wire.UserIDs)
	if !ok {
		return malformedSharedWith()
	}
	return NewSharedWith(groups, users), nil
}

func malformedSharedWith() (SharedWith, error) {
	return SharedWith{Malformed: true}, ErrMalformedSharePayload
}

func decodeIDList(items []json.RawMessage) ([]string, bool) {
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.UseNumber()
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return nil, false
		}
		// fractions, exponents and values outside int64 are not identifiers
		id, err := n.Int64()
		if err != nil {
			return nil, false
		}
		out = append(out, strconv.FormatInt(id, 10))
	}
	return out, true
}

// UnmarshalJSON decodes fail-closed; a malformed payload never returns an error.
func (s *SharedWith) UnmarshalJSON(data []byte) error {
	decoded, _ := DecodeSharedWith(data)
	*s = decoded
	return nil
}

// MarshalJSON always emits both lists so stored payloads stay structured.
func (s SharedWith) MarshalJSON() ([]byte, error) {
	wire := struct {
		GroupIDs  []string `json:"groupIds"`
		UserIDs   []string `json:"userIds"`
		Malformed bool     `json:"malformed,omitempty"`
	}{
		GroupIDs:  s.GroupIDs,
		UserIDs:   s.UserIDs,
		Malformed: s.Malformed,
	}
	if wire.GroupIDs == nil {
		wire.GroupIDs = []string{}
	}
	if wire.UserIDs == nil {
		wire.UserIDs = []string{}
	}
	return json.Marshal(wire)
}

func normaliseIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	set := NewIDSet(ids...)
	delete(set, "")
	if len(set) == 0 {
		return nil
	}
	return set.Slice()
}

// IDSet is a set of user or group identifiers.
type IDSet map[string]struct{}

// NewIDSet builds a set from the provided identifiers.
func NewIDSet(ids ...string) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Intersects reports whether any of ids is in the set.
func (s IDSet) Intersects(ids []string) bool {
	for _, id := range ids {
		if s.Has(id) {
			return true
		}
	}
	return false
}

// Slice returns the members in ascending order.
func (s IDSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
