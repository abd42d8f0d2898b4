package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/yndnr/sandstore-go/internal/core/domain"
)

// ValidationMode selects how expected documents are compared with a
// collection.
type ValidationMode string

// Validation modes.
const (
	ValidateEquals       ValidationMode = "equals"
	ValidateContains     ValidationMode = "contains"
	ValidateContainsAny  ValidationMode = "contains_any"
	ValidateContainsNone ValidationMode = "contains_none"
)

// ParseValidationMode parses a mode name.
func ParseValidationMode(s string) (ValidationMode, error) {
	switch m := ValidationMode(s); m {
	case ValidateEquals, ValidateContains, ValidateContainsAny, ValidateContainsNone:
		return m, nil
	}
	return "", domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("unknown validation mode %q", s))
}

// Validator checks a tenant collection against expected documents.
// Documents compare by content with _id ignored and key order irrelevant.
type Validator struct {
	data *DataService
}

// NewValidator creates a new Validator.
func NewValidator(data *DataService) *Validator {
	return &Validator{data: data}
}

// ValidateRequest contains parameters for a validation.
type ValidateRequest struct {
	Target
	Mode      ValidationMode
	Documents json.RawMessage // One object or an array of objects
}

// Validate reports whether the collection satisfies the mode.
func (v *Validator) Validate(ctx context.Context, req *ValidateRequest) (bool, error) {
	// 1. Expected documents
	expected, err := splitDocuments(req.Documents)
	if err != nil {
		return false, err
	}

	// 2. Actual documents
	actual, err := v.data.Find(ctx, &FindRequest{Target: req.Target})
	if err != nil {
		return false, err
	}

	have := make(map[string]int, len(actual))
	for _, d := range actual {
		have[canonical(d)]++
	}

	// 3. Compare
	switch req.Mode {
	case ValidateEquals:
		if len(expected) != len(actual) {
			return false, nil
		}
		for _, d := range expected {
			key := canonical(d)
			if have[key] == 0 {
				return false, nil
			}
			have[key]--
		}
		return true, nil
	case ValidateContains:
		for _, d := range expected {
			if have[canonical(d)] == 0 {
				return false, nil
			}
		}
		return true, nil
	case ValidateContainsAny:
		return containsAny(have, expected), nil
	case ValidateContainsNone:
		return !containsAny(have, expected), nil
	}
	return false, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("unknown validation mode %q", req.Mode))
}

func containsAny(have map[string]int, expected []domain.Document) bool {
	for _, d := range expected {
		if have[canonical(d)] > 0 {
			return true
		}
	}
	return false
}

// canonical returns doc without _id, keys sorted, whitespace removed.
func canonical(doc domain.Document) string {
	stripped, err := sjson.DeleteBytes(doc, "_id")
	if err != nil {
		stripped = doc
	}
	return gjson.GetBytes(stripped, `@pretty:{"sortKeys":true}|@ugly`).Raw
}
