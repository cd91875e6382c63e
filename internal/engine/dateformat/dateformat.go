// Package dateformat converts calendar dates into the two date encodings SAP
// transactions expect: DD.MM.YYYY for detail reports and YYYYMM for summary
// loads.
package dateformat

import (
	"strings"
	"time"

	apperrors "sqpr-engine/internal/common/errors"
)

// Kind selects a date encoding.
type Kind string

const (
	Detail  Kind = "detail"
	Summary Kind = "summary"
)

const (
	detailLayout  = "02.01.2006"
	summaryLayout = "200601"
)

// accepted input layouts, tried in order
var inputLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	detailLayout,
}

// Parse reads a calendar date. The calendar components are taken as written;
// offsets in RFC3339 input do not shift the day.
func Parse(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return time.Time{}, apperrors.NewInvalidDateError("date", s)
	}
	for _, layout := range inputLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, apperrors.NewInvalidDateError("date", s)
}

// ToDetailFormat renders DD.MM.YYYY.
func ToDetailFormat(t time.Time) string {
	return t.Format(detailLayout)
}

// ToSummaryFormat renders YYYYMM.
func ToSummaryFormat(t time.Time) string {
	return t.Format(summaryLayout)
}

// Format renders t in the encoding for kind. Unknown kinds use the detail
// encoding.
func Format(kind Kind, t time.Time) string {
	if kind == Summary {
		return ToSummaryFormat(t)
	}
	return ToDetailFormat(t)
}

// FormatString parses s and renders it for kind. field names the input in
// the returned INVALID_DATE error.
func FormatString(kind Kind, field, s string) (string, error) {
	t, err := Parse(s)
	if err != nil {
		return "", apperrors.NewInvalidDateError(field, s)
	}
	return Format(kind, t), nil
}
