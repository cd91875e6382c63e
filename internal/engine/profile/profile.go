// Package profile maps transaction codes to their date encoding, default
// parameter values and the canonical code used in file names.
package profile

import (
	"strings"

	"sqpr-engine/internal/engine/dateformat"
	"sqpr-engine/internal/models"
)

// Profile describes how one transaction is instantiated.
type Profile struct {
	// CanonicalCode is the code written into generated file names.
	CanonicalCode string
	DateKind      dateformat.Kind
	// Layout is the literal a "layout" parameter defaults to. Empty for
	// transactions without a known layout.
	Layout string
	Known  bool
}

type entry struct {
	// family groups the variants of one transaction.
	family  string
	match   func(normalized string) bool
	profile Profile
}

func contains(sub string) func(string) bool {
	return func(s string) bool { return strings.Contains(s, sub) }
}

// entries are checked in order; the first match wins.
var entries = []entry{
	{
		match: func(s string) bool {
			return strings.Contains(s, "ZFIR_STATSLOAD") || strings.Contains(s, "ZFIR_STATLOAD")
		},
		family:  "ZFIR_STATSLOAD",
		profile: Profile{CanonicalCode: "ZFIR_STATSLOAD", DateKind: dateformat.Summary, Known: true},
	},
	{
		match: func(s string) bool {
			return strings.Contains(s, "CJI3") && strings.Contains(s, "1CANDALL")
		},
		family:  "CJI3",
		profile: Profile{CanonicalCode: "CJI3#1CANDALL", DateKind: dateformat.Detail, Layout: "/1CANDALL", Known: true},
	},
	{
		family:  "CJI3",
		match:   contains("CJI3"),
		profile: Profile{CanonicalCode: "CJI3#ALLCOST", DateKind: dateformat.Detail, Layout: "/ALLCOST", Known: true},
	},
	{
		family:  "KSB1",
		match:   contains("KSB1"),
		profile: Profile{CanonicalCode: "KSB1", DateKind: dateformat.Detail, Layout: "/ALLDETAIL", Known: true},
	},
	{
		family:  "KOB1",
		match:   contains("KOB1"),
		profile: Profile{CanonicalCode: "KOB1", DateKind: dateformat.Detail, Layout: "/ALL_COST", Known: true},
	},
}

// Normalize upper-cases and trims a tcode or custom name.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// SanitizeCode keeps the characters allowed in a file-name code segment and
// replaces everything else with '_'.
func SanitizeCode(s string) string {
	s = Normalize(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '#':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Resolve finds the profile for a form. A known tcode fixes the transaction
// family and the custom name only selects a variant within it, so
// tcode "CJI3" with custom name "1CANDALL" resolves to CJI3#1CANDALL. The
// custom name alone decides only when the tcode is unknown. Unknown
// transactions resolve to a detail-kind profile named after the sanitized
// tcode.
func Resolve(tcode, customName string) Profile {
	code, name := Normalize(tcode), Normalize(customName)
	if code != "" {
		if e, ok := lookup(code, ""); ok {
			if v, ok := lookup(name+" "+code, e.family); ok {
				return v.profile
			}
			return e.profile
		}
	}
	if name != "" {
		if e, ok := lookup(name, ""); ok {
			return e.profile
		}
	}
	return Profile{CanonicalCode: SanitizeCode(tcode), DateKind: dateformat.Detail}
}

// lookup returns the first entry matching s, restricted to family when it is
// not empty.
func lookup(s, family string) (entry, bool) {
	for _, e := range entries {
		if family != "" && e.family != family {
			continue
		}
		if e.match(s) {
			return e, true
		}
	}
	return entry{}, false
}

// KindForCode returns the date encoding for a canonical code.
func KindForCode(code string) dateformat.Kind {
	return Resolve(code, "").DateKind
}

// Known lists the canonical codes with a dedicated profile.
func Known() []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.profile.CanonicalCode)
	}
	return out
}

// DefaultFor resolves the default for param. A value that is already set is
// returned untouched with applied=false; otherwise the first matching rule
// supplies the default.
func (p Profile) DefaultFor(param string, current models.Value) (v models.Value, applied bool) {
	if current.IsSet() {
		return current, false
	}
	for _, r := range rules {
		if !r.Match(param) {
			continue
		}
		if d, ok := r.Effect(p); ok {
			return d, true
		}
		// a matching rule without an effect for this profile ends the search
		return current, false
	}
	return current, false
}
