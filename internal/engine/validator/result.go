// Package validator checks templates, packages and generated files before
// and after they are persisted. Problems are collected into a Result instead
// of being returned as errors, so callers can show everything at once.
package validator

import (
	"fmt"
)

// Severity of an Issue. Only errors make a result invalid.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue codes, stable for callers that branch on them.
const (
	CodeMissingName       = "MISSING_NAME"
	CodeNoForms           = "NO_FORMS"
	CodeUnknownType       = "UNKNOWN_TEMPLATE_TYPE"
	CodeMissingTCode      = "MISSING_TCODE"
	CodeMissingCustomName = "MISSING_CUSTOM_NAME"
	CodeMissingMeta       = "MISSING_META"
	CodeMissingMetaTCode  = "MISSING_META_TCODE"
	CodeSchemaMismatch    = "SCHEMA_MISMATCH"
	CodeMissingContext    = "MISSING_TARGET_CONTEXT"
	CodeMissingSteps      = "MISSING_STEPS"
	CodeNoParameters      = "NO_PARAMETERS"
	CodeMissingDefault    = "MISSING_DEFAULT"
	CodeDuplicateName     = "DUPLICATE_NAME"
	CodeMissingFlow       = "MISSING_FLOW"
	CodeInvalidDate       = "INVALID_DATE"
	CodeInvalidPeriod     = "INVALID_PERIOD_TYPE"
	CodeBadExtension      = "BAD_EXTENSION"
	CodeNamePattern       = "NAME_PATTERN"
	CodeEmptyFile         = "EMPTY_FILE"
	CodeSizeDeviation     = "SIZE_DEVIATION"
	CodeSummary           = "SUMMARY"
)

// Issue is one finding, attributed to the entity that triggered it.
type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Field    string   `json:"field,omitempty"`
	FormID   string   `json:"formId,omitempty"`
	TCode    string   `json:"tcode,omitempty"`
}

func (i Issue) String() string {
	if i.FormID != "" {
		return fmt.Sprintf("[%s] %s (form %s)", i.Severity, i.Message, i.FormID)
	}
	return fmt.Sprintf("[%s] %s", i.Severity, i.Message)
}

// Summary counts. FormsWithErrors and FormsWithWarnings count distinct form
// IDs, not issues.
type Summary struct {
	TotalForms            int `json:"totalForms"`
	FormsWithErrors       int `json:"formsWithErrors"`
	FormsWithWarnings     int `json:"formsWithWarnings"`
	MissingRequiredFields int `json:"missingRequiredFields"`
	InvalidDates          int `json:"invalidDates"`
	DuplicateNames        int `json:"duplicateNames"`
	SchemaMismatches      int `json:"schemaMismatches"`
	MissingFlows          int `json:"missingFlows"`
	MissingDefaults       int `json:"missingDefaults"`
}

// Result of one validation call. IsValid holds exactly when Errors is empty.
type Result struct {
	IsValid  bool    `json:"isValid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
	Info     []Issue `json:"info"`
	Summary  Summary `json:"summary"`
}

// HasErrors reports whether any error-severity issue was recorded.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// FirstError returns the first error message, or "".
func (r *Result) FirstError() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// Messages lists errors then warnings in display form.
func (r *Result) Messages() []string {
	out := make([]string, 0, len(r.Errors)+len(r.Warnings))
	for _, i := range r.Errors {
		out = append(out, i.String())
	}
	for _, i := range r.Warnings {
		out = append(out, i.String())
	}
	return out
}

// Merge folds other into r and recomputes the derived fields.
func (r *Result) Merge(other Result) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Info = append(r.Info, other.Info...)

	if other.Summary.TotalForms > r.Summary.TotalForms {
		r.Summary.TotalForms = other.Summary.TotalForms
	}
	r.Summary.MissingRequiredFields += other.Summary.MissingRequiredFields
	r.Summary.InvalidDates += other.Summary.InvalidDates
	r.Summary.DuplicateNames += other.Summary.DuplicateNames
	r.Summary.SchemaMismatches += other.Summary.SchemaMismatches
	r.Summary.MissingFlows += other.Summary.MissingFlows
	r.Summary.MissingDefaults += other.Summary.MissingDefaults
	r.finalize()
}

func (r *Result) finalize() {
	r.IsValid = len(r.Errors) == 0
	r.Summary.FormsWithErrors = distinctForms(r.Errors)
	r.Summary.FormsWithWarnings = distinctForms(r.Warnings)
}

func distinctForms(issues []Issue) int {
	seen := make(map[string]struct{})
	for _, i := range issues {
		if i.FormID != "" {
			seen[i.FormID] = struct{}{}
		}
	}
	return len(seen)
}

// collector accumulates issues for a single validation call.
type collector struct {
	res Result
}

func newCollector(totalForms int) *collector {
	return &collector{res: Result{
		Errors:   []Issue{},
		Warnings: []Issue{},
		Info:     []Issue{},
		Summary:  Summary{TotalForms: totalForms},
	}}
}

func (c *collector) add(sev Severity, code, field, formID, tcode, format string, args ...interface{}) {
	issue := Issue{
		Severity: sev,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Field:    field,
		FormID:   formID,
		TCode:    tcode,
	}
	switch sev {
	case SeverityError:
		c.res.Errors = append(c.res.Errors, issue)
	case SeverityWarning:
		c.res.Warnings = append(c.res.Warnings, issue)
	default:
		c.res.Info = append(c.res.Info, issue)
	}
}

func (c *collector) result() Result {
	c.res.finalize()
	return c.res
}
