// Package validation checks job variables against JSON schemas before a
// handler decodes them.
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// GetErrorMessages returns "field: message" for every error.
func (vr *ValidationResult) GetErrorMessages() []string {
	msgs := make([]string, 0, len(vr.Errors))
	for _, e := range vr.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return msgs
}

func (vr *ValidationResult) HasErrors(field string) bool {
	for _, e := range vr.Errors {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Err folds the result into one error, nil when valid.
func (vr *ValidationResult) Err() error {
	if vr.Valid {
		return nil
	}
	return fmt.Errorf("input schema: %s", strings.Join(vr.GetErrorMessages(), "; "))
}

// Schema is a compiled job input schema.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// MustCompile compiles def and panics on a malformed schema. Schemas are
// package-level values, so a failure is a programming error.
func MustCompile(name string, def map[string]interface{}) *Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def))
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return &Schema{name: name, schema: s}
}

func (s *Schema) Name() string { return s.name }

// Validate checks the raw JSON job variables.
func (s *Schema) Validate(variables string) *ValidationResult {
	result, err := s.schema.Validate(gojsonschema.NewStringLoader(variables))
	if err != nil {
		return &ValidationResult{
			Errors: []ValidationError{{Field: "(root)", Message: err.Error(), Code: "INVALID_JSON"}},
		}
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out
}

// Object builds an object schema.
func Object(required []string, properties map[string]interface{}) map[string]interface{} {
	def := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		def["required"] = required
	}
	return def
}

// StringList is an array of strings.
func StringList() map[string]interface{} {
	return map[string]interface{}{
		"type":  "array",
		"items": map[string]interface{}{"type": "string"},
	}
}

// TemplateSchema is the structural shape of a template. Content rules such
// as missing names or codes are left to the engine validator, which reports
// them as issues instead of rejecting the job.
func TemplateSchema() map[string]interface{} {
	form := Object(nil, map[string]interface{}{
		"id":            map[string]interface{}{"type": "string"},
		"tcode":         map[string]interface{}{"type": "string"},
		"customName":    map[string]interface{}{"type": "string"},
		"jsonData":      map[string]interface{}{"type": []interface{}{"object", "null"}},
		"parameters":    map[string]interface{}{"type": []interface{}{"array", "null"}, "items": map[string]interface{}{"type": "string"}},
		"defaultValues": map[string]interface{}{"type": []interface{}{"object", "null"}},
	})
	return Object([]string{"forms"}, map[string]interface{}{
		"id":   map[string]interface{}{"type": "string"},
		"name": map[string]interface{}{"type": "string"},
		"type": map[string]interface{}{"type": "string"},
		"forms": map[string]interface{}{
			"type":  "array",
			"items": form,
		},
	})
}

func DateRangeSchema() map[string]interface{} {
	return Object([]string{"startDate"}, map[string]interface{}{
		"startDate":  map[string]interface{}{"type": "string", "minLength": 1},
		"endDate":    map[string]interface{}{"type": "string"},
		"periodType": map[string]interface{}{"type": "string"},
	})
}
