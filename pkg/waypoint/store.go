// Package waypoint persists named waypoint documents. A document is any
// JSON value the operator saved; it is stored and returned whole.
package waypoint

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when no document has the name.
	ErrNotFound = errors.New("waypoint not found")
	// ErrInvalidName is returned for empty names and names that could
	// escape the store.
	ErrInvalidName = errors.New("invalid waypoint name")
	// ErrInvalidDocument is returned when a document is not valid JSON.
	ErrInvalidDocument = errors.New("invalid waypoint document")
)

// Store defines the waypoint storage operations.
type Store interface {
	// Save creates or overwrites a document
	Save(ctx context.Context, name string, doc json.RawMessage) error

	// Load returns a document or ErrNotFound
	Load(ctx context.Context, name string) (json.RawMessage, error)

	// All returns every document keyed by name
	All(ctx context.Context) (map[string]json.RawMessage, error)
}

// ValidateName rejects names that are empty or contain path syntax.
func ValidateName(name string) error {
	if name == "" || name == "." || strings.Contains(name, "..") ||
		strings.ContainsAny(name, `/\`+"\x00") {
		return ErrInvalidName
	}
	return nil
}

func validate(name string, doc json.RawMessage) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if !json.Valid(doc) {
		return ErrInvalidDocument
	}
	return nil
}
