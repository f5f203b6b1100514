package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Canonical scope names used by the pre-built route gates.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"
)

// ValidScope reports whether the scope name is one of the canonical scopes.
func ValidScope(scope string) bool {
	switch scope {
	case ScopeRead, ScopeWrite, ScopeAdmin:
		return true
	}
	return false
}

// ScopeList is an ordered set of capability strings granted to a principal.
type ScopeList []string

// Contains reports whether the list grants the given scope.
func (s ScopeList) Contains(scope string) bool {
	for _, v := range s {
		if v == scope {
			return true
		}
	}
	return false
}

// Missing returns the scopes in required that are not granted. An empty
// result means the requirement is satisfied.
func (s ScopeList) Missing(required ScopeList) ScopeList {
	var missing ScopeList
	for _, r := range required {
		if !s.Contains(r) {
			missing = append(missing, r)
		}
	}
	return missing
}

// EncodeScopesJSON serializes a scope list to its JSON array column form.
// A nil list encodes as "[]" so the column never holds NULL.
func EncodeScopesJSON(s ScopeList) (string, error) {
	if s == nil {
		s = ScopeList{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal scopes: %w", err)
	}
	return string(b), nil
}

// DecodeScopesJSON parses the JSON array column form back into a scope list.
// Empty input decodes to an empty list.
func DecodeScopesJSON(raw string) (ScopeList, error) {
	if raw == "" {
		return ScopeList{}, nil
	}
	var s ScopeList
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("unmarshal scopes: %w", err)
	}
	if s == nil {
		s = ScopeList{}
	}
	return s, nil
}

// EncodeScopesCSV serializes a scope list to the comma-separated column form
// used for user records.
func EncodeScopesCSV(s ScopeList) string {
	return strings.Join(s, ",")
}

// DecodeScopesCSV parses the comma-separated column form back into a scope
// list. Empty input decodes to an empty list.
func DecodeScopesCSV(raw string) ScopeList {
	if raw == "" {
		return ScopeList{}
	}
	return ScopeList(strings.Split(raw, ","))
}
