// Package claims provides the claim bag carried by context tokens.
//
// The issuing service serializes claims as a flat JSON object. Claim order is
// significant for lookup: when a claim type appears more than once, the first
// occurrence wins. The standard library's map-based decoding loses both order
// and duplicates, so the bag is decoded from the raw token stream instead.
package claims

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Claim is a single claim-type/value pair
type Claim struct {
	Type  string
	Value string
}

// ClaimSet is an ordered collection of claims
type ClaimSet struct {
	claims []Claim
}

// NewClaimSet creates a claim set from a slice of claims, preserving order
func NewClaimSet(claims []Claim) *ClaimSet {
	return &ClaimSet{claims: claims}
}

// ParseJSON decodes a JSON object into an ordered claim set.
//
// Scalar values are rendered to their string form (numbers keep their JSON
// representation, null becomes the empty string). Nested objects and arrays
// are kept as their raw JSON text, since claims such as "appctx" carry a
// JSON-encoded object as their value.
func ParseJSON(payload []byte) (*ClaimSet, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to decode claim bag: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("claim bag is not a JSON object")
	}

	var set ClaimSet
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to decode claim type: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("claim type is not a string: %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode value for claim %q: %w", key, err)
		}

		set.claims = append(set.claims, Claim{Type: key, Value: rawToString(raw)})
	}

	// Consume the closing brace
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to decode claim bag: %w", err)
	}

	return &set, nil
}

// Get returns the value of the first claim with the given type
func (s *ClaimSet) Get(claimType string) (string, bool) {
	for _, c := range s.claims {
		if c.Type == claimType {
			return c.Value, true
		}
	}
	return "", false
}

// Value returns the value of the first claim with the given type, or ""
func (s *ClaimSet) Value(claimType string) string {
	v, _ := s.Get(claimType)
	return v
}

// All returns the claims in their original order
func (s *ClaimSet) All() []Claim {
	out := make([]Claim, len(s.claims))
	copy(out, s.claims)
	return out
}

// Len returns the number of claims in the set
func (s *ClaimSet) Len() int {
	return len(s.claims)
}

func rawToString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return string(raw)
	case 'n': // null
		return ""
	default:
		// Numbers, booleans, objects and arrays keep their JSON text
		return string(raw)
	}
}
