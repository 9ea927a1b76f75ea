// Package types provides type definitions for structured data used throughout the keyword-collector system.
package types

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CollectionRequest is the immutable input to one keyword collection run.
type CollectionRequest struct {
	Category            string   `json:"category" validate:"max=200"`
	Purposes            []string `json:"purposes" validate:"max=20,dive,max=200"`
	AdditionalParams    []string `json:"additional_params" validate:"max=20,dive,max=200"`
	CategoryDescription string   `json:"category_description,omitempty" validate:"max=2000"`
}

// collectionRequestWire mirrors CollectionRequest but tolerates the legacy
// single-string purpose forms.
type collectionRequestWire struct {
	Category            string          `json:"category"`
	Purpose             string          `json:"purpose"`
	Purposes            json.RawMessage `json:"purposes"`
	AdditionalParams    []string        `json:"additional_params"`
	CategoryDescription string          `json:"category_description"`
}

// UnmarshalJSON accepts "purposes" as a list or a string, and the legacy
// "purpose" string field. Strings are split on commas.
func (r *CollectionRequest) UnmarshalJSON(data []byte) error {
	var wire collectionRequestWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	var purposes []string
	if len(wire.Purposes) > 0 && string(wire.Purposes) != "null" {
		var list []string
		if err := json.Unmarshal(wire.Purposes, &list); err == nil {
			purposes = list
		} else {
			var single string
			if err := json.Unmarshal(wire.Purposes, &single); err != nil {
				return &ValidationError{Field: "purposes", Message: "must be a string or a list of strings"}
			}
			purposes = NormalizePurposes(single)
		}
	}
	if len(purposes) == 0 && wire.Purpose != "" {
		purposes = NormalizePurposes(wire.Purpose)
	}

	*r = CollectionRequest{
		Category:            wire.Category,
		Purposes:            purposes,
		AdditionalParams:    wire.AdditionalParams,
		CategoryDescription: wire.CategoryDescription,
	}
	return nil
}

// NormalizePurposes converts a single purpose string into the list form.
// Commas separate purposes; blanks are dropped and order is preserved.
func NormalizePurposes(purpose string) []string {
	var out []string
	for _, part := range strings.Split(purpose, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsEmpty reports whether every field that contributes to the query is blank.
func (r *CollectionRequest) IsEmpty() bool {
	if strings.TrimSpace(r.Category) != "" {
		return false
	}
	for _, p := range r.Purposes {
		if strings.TrimSpace(p) != "" {
			return false
		}
	}
	for _, p := range r.AdditionalParams {
		if strings.TrimSpace(p) != "" {
			return false
		}
	}
	return true
}

// Validate validates the CollectionRequest using the validator.
func (r *CollectionRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{Field: fe.Namespace(), Message: "failed on '" + fe.Tag() + "' rule"}
		}
		return &ValidationError{Field: "request", Message: err.Error()}
	}
	return nil
}

// ValidationError indicates that a collection request is malformed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " - " + e.Message
}
