// Package naming builds and parses generated package file names of the form
// <8-hex-id>-<CODE>@startDate=<date>.sqpr.
package naming

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "sqpr-engine/internal/common/errors"
	"sqpr-engine/internal/engine/dateformat"
	"sqpr-engine/internal/engine/identifier"
	"sqpr-engine/internal/engine/profile"
	"sqpr-engine/internal/models"
)

// Extension of every generated package file.
const Extension = ".sqpr"

// FilePattern is the exact shape of a generated file name.
var FilePattern = regexp.MustCompile(`^[0-9A-F]{8}-[A-Za-z0-9_#]+@startDate=[0-9.]+\.sqpr$`)

var codePattern = regexp.MustCompile(`^[A-Za-z0-9_#]+$`)

// IDSource issues short identifiers.
type IDSource interface {
	NewShortID() (string, error)
}

// Namer assigns file names to package forms.
type Namer struct {
	ids IDSource
}

// New returns a Namer drawing identifiers from ids. A nil ids uses a
// crypto/rand backed generator.
func New(ids IDSource) *Namer {
	if ids == nil {
		ids = identifier.New()
	}
	return &Namer{ids: ids}
}

// NameFor returns a fresh file name for canonicalCode. Only the start date
// is encoded; summary codes use YYYYMM, everything else DD.MM.YYYY.
func (n *Namer) NameFor(canonicalCode string, dr models.DateRange) (string, error) {
	if !codePattern.MatchString(canonicalCode) {
		return "", apperrors.NewInvalidCodeError(canonicalCode)
	}
	formatted, err := dateformat.FormatString(profile.KindForCode(canonicalCode), "startDate", dr.StartDate)
	if err != nil {
		return "", err
	}
	id, err := n.ids.NewShortID()
	if err != nil {
		return "", fmt.Errorf("generate identifier: %w", err)
	}
	return fmt.Sprintf("%s-%s@startDate=%s%s", id, canonicalCode, formatted, Extension), nil
}

// NameForForm resolves the form's profile and names it.
func (n *Namer) NameForForm(f models.Form, dr models.DateRange) (string, error) {
	return n.NameFor(profile.Resolve(f.TCode, f.CustomName).CanonicalCode, dr)
}

// FileName is a parsed generated file name.
type FileName struct {
	ID        string
	Code      string
	StartDate string
}

func (f FileName) String() string {
	return fmt.Sprintf("%s-%s@startDate=%s%s", f.ID, f.Code, f.StartDate, Extension)
}

// ParseFileName splits a generated file name into its segments. Names that
// do not match FilePattern are rejected.
func ParseFileName(name string) (FileName, error) {
	if !FilePattern.MatchString(name) {
		return FileName{}, apperrors.NewInvalidCodeError(name)
	}
	body := strings.TrimSuffix(name, Extension)
	id, rest, _ := strings.Cut(body, "-")
	code, date, _ := strings.Cut(rest, "@startDate=")
	return FileName{ID: id, Code: code, StartDate: date}, nil
}
