// Package document defines the unit of indexing: an identifier plus named
// text fields. Documents are validated before they enter a store and are
// never modified afterwards.
package document

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

const (
	maxIDLength        = 1024
	maxFieldNameLength = 128
	maxFieldLength     = 1048576
)

// Document is an identifier plus named text fields.
type Document struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// New returns a Document holding its own copy of fields.
func New(id string, fields map[string]string) Document {
	return Document{ID: id, Fields: maps.Clone(fields)}
}

// Clone returns a deep copy so callers cannot mutate stored documents.
func (d Document) Clone() Document {
	return Document{ID: d.ID, Fields: maps.Clone(d.Fields)}
}

// FieldNames returns the field names in ascending order.
func (d Document) FieldNames() []string {
	return slices.Sorted(maps.Keys(d.Fields))
}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	ID     string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", field, e.Fields[field]))
	}
	if e.ID == "" {
		return strings.Join(parts, "; ")
	}
	return fmt.Sprintf("document %q: %s", e.ID, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidDocument
}

// Validate checks the ID and every field and returns a ValidationError
// listing each problem found.
func Validate(d Document) error {
	errs := make(map[string]string)

	id := strings.TrimSpace(d.ID)
	if id == "" {
		errs["id"] = "id is required"
	} else if len(d.ID) > maxIDLength {
		errs["id"] = fmt.Sprintf("id must be at most %d characters", maxIDLength)
	}
	if len(d.Fields) == 0 {
		errs["fields"] = "at least one field is required"
	}
	for name, value := range d.Fields {
		switch {
		case strings.TrimSpace(name) == "":
			errs["fields"] = "field names must not be empty"
		case len(name) > maxFieldNameLength:
			errs[name] = fmt.Sprintf("field name must be at most %d characters", maxFieldNameLength)
		case strings.ContainsAny(name, ": \t\n\"()"):
			errs[name] = "field name must not contain spaces, quotes, parentheses or ':'"
		case strings.TrimSpace(value) == "":
			errs[name] = "value must not be empty"
		case len(value) > maxFieldLength:
			errs[name] = fmt.Sprintf("value must be at most %d characters", maxFieldLength)
		}
	}
	if len(errs) > 0 {
		return &ValidationError{ID: d.ID, Fields: errs}
	}
	return nil
}
