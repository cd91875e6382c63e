// Package errors provides the engine error taxonomy and its mapping onto
// BPMN errors for the job workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Engine errors
const (
	ErrCodeInvalidDate       ErrorCode = "INVALID_DATE"
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrCodeSchemaMismatch    ErrorCode = "SCHEMA_MISMATCH"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeInvalidCode       ErrorCode = "INVALID_CODE"
	ErrCodeTemplateNotFound  ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeDocumentInvalid   ErrorCode = "DOCUMENT_INVALID"
	ErrCodeParseError        ErrorCode = "PARSE_ERROR"
)

// Storage gateway errors
const (
	ErrCodeGatewayFailure ErrorCode = "GATEWAY_FAILURE"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists  ErrorCode = "ALREADY_EXISTS"
	ErrCodeTransport      ErrorCode = "TRANSPORT_ERROR"
)

// Infrastructure errors
const (
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout         ErrorCode = "TIMEOUT"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotification    ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeAuditFailed     ErrorCode = "AUDIT_INDEX_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is reports equality by code, so the package-level sentinels below work
// with errors.Is.
func (e *StandardError) Is(target error) bool {
	var t *StandardError
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidDate       = &StandardError{Code: ErrCodeInvalidDate}
	ErrValidationFailed  = &StandardError{Code: ErrCodeValidationFailed}
	ErrInvalidTransition = &StandardError{Code: ErrCodeInvalidTransition}
	ErrInvalidCode       = &StandardError{Code: ErrCodeInvalidCode}
	ErrDocumentInvalid   = &StandardError{Code: ErrCodeDocumentInvalid}
	ErrTemplateNotFound  = &StandardError{Code: ErrCodeTemplateNotFound}
	ErrGatewayFailure    = &StandardError{Code: ErrCodeGatewayFailure}
	ErrNotFound          = &StandardError{Code: ErrCodeNotFound}
	ErrAlreadyExists     = &StandardError{Code: ErrCodeAlreadyExists}
	ErrTransport         = &StandardError{Code: ErrCodeTransport}
)

// CodeOf returns the code of the first StandardError in err's chain, or
// ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewInvalidDateError reports an input date that could not be parsed.
func NewInvalidDateError(field, value string) *StandardError {
	return newError(ErrCodeInvalidDate, "Invalid date", fmt.Sprintf("%s=%q", field, value), false, nil).
		WithMetadata("field", field)
}

// NewValidationFailedError is returned at the job boundary when a validation
// result carries at least one error.
func NewValidationFailedError(errorCount int, first string) *StandardError {
	return newError(ErrCodeValidationFailed, "Validation failed",
		fmt.Sprintf("%d error(s), first: %s", errorCount, first), false, nil).
		WithMetadata("errorCount", errorCount)
}

func NewInvalidTransitionError(stepID, from, to string) *StandardError {
	return newError(ErrCodeInvalidTransition, "Invalid step transition",
		fmt.Sprintf("step %s: %s -> %s", stepID, from, to), false, nil)
}

func NewInvalidCodeError(code string) *StandardError {
	return newError(ErrCodeInvalidCode, "Invalid transaction code", code, false, nil)
}

func NewTemplateNotFoundError(name string) *StandardError {
	return newError(ErrCodeTemplateNotFound, "Template not found", name, false, nil)
}

func NewDocumentInvalidError(details string) *StandardError {
	return newError(ErrCodeDocumentInvalid, "Invalid template document", details, false, nil)
}

func NewParseError(err error) *StandardError {
	return newError(ErrCodeParseError, "Failed to parse input", err.Error(), false, err)
}

// NewGatewayFailureError wraps any gateway error recorded against a save step.
func NewGatewayFailureError(fileName string, err error) *StandardError {
	return newError(ErrCodeGatewayFailure, "Storage gateway call failed",
		fmt.Sprintf("%s: %v", fileName, err), false, err)
}

func NewNotFoundError(path string) *StandardError {
	return newError(ErrCodeNotFound, "File not found", path, false, nil)
}

func NewAlreadyExistsError(path string) *StandardError {
	return newError(ErrCodeAlreadyExists, "File already exists", path, false, nil)
}

func NewTransportError(backend string, err error) *StandardError {
	return newError(ErrCodeTransport, "Storage transport failure",
		fmt.Sprintf("%s: %v", backend, err), true, err)
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, "External service error",
		fmt.Sprintf("%s: %v", service, err), true, err)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, "Operation timed out",
		fmt.Sprintf("%s: %v", service, err), true, err)
}

func NewNotificationError(channel string, err error) *StandardError {
	return newError(ErrCodeNotification, "Notification send failed",
		fmt.Sprintf("%s: %v", channel, err), true, err)
}

func NewAuditError(err error) *StandardError {
	return newError(ErrCodeAuditFailed, "Audit index failed", err.Error(), true, err)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes. Codes that
// are absent map to themselves.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidDate:      "INVALID_DATE",
	ErrCodeValidationFailed: "VALIDATION_FAILED",
	ErrCodeDocumentInvalid:  "TEMPLATE_INVALID",
	ErrCodeParseError:       "TEMPLATE_INVALID",
	ErrCodeTemplateNotFound: "TEMPLATE_NOT_FOUND",
	ErrCodeGatewayFailure:   "PACKAGE_SAVE_FAILED",
	ErrCodeAlreadyExists:    "PACKAGE_SAVE_FAILED",
	ErrCodeNotFound:         "TEMPLATE_NOT_FOUND",
	ErrCodeTransport:        "STORAGE_UNAVAILABLE",
}

// GetRetryCount returns the job retry budget for an error code. Gateway
// failures inside a save run are terminal and never retried.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeTransport, ErrCodeExternalService:
		return 3
	case ErrCodeTimeout:
		return 2
	case ErrCodeNotification, ErrCodeAuditFailed:
		return 1
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "DATE"):
		return "DATE"
	case strings.Contains(codeStr, "TEMPLATE") || strings.Contains(codeStr, "DOCUMENT") || strings.Contains(codeStr, "PARSE"):
		return "TEMPLATE"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "SCHEMA") || strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	case code == ErrCodeGatewayFailure || code == ErrCodeNotFound || code == ErrCodeAlreadyExists || code == ErrCodeTransport:
		return "STORAGE"
	case strings.Contains(codeStr, "NOTIFICATION") || strings.Contains(codeStr, "AUDIT"):
		return "REPORTING"
	default:
		return "OTHER"
	}
}
