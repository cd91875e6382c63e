// Package diff compares two versions of a template.
package diff

import (
	"fmt"
	"sort"

	"sqpr-engine/internal/models"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Result lists what changed between two template versions. Form lists hold
// form IDs in the order they appear in the respective template.
type Result struct {
	Differences   []string `json:"differences"`
	AddedForms    []string `json:"addedForms"`
	RemovedForms  []string `json:"removedForms"`
	ModifiedForms []string `json:"modifiedForms"`
}

// Empty reports whether the two versions were equivalent.
func (r Result) Empty() bool {
	return len(r.Differences) == 0 && len(r.AddedForms) == 0 &&
		len(r.RemovedForms) == 0 && len(r.ModifiedForms) == 0
}

// Parameter lists are compared as sets and nil equals empty, so neither
// declaration order nor JSON key order marks a form as modified.
var formOpts = cmp.Options{
	cmpopts.SortSlices(func(a, b string) bool { return a < b }),
	cmpopts.EquateEmpty(),
}

// Compare matches forms by ID and reports added, removed and modified forms
// plus readable "old → new" lines for every change.
func Compare(oldT, newT models.Template) Result {
	res := Result{
		Differences:   []string{},
		AddedForms:    []string{},
		RemovedForms:  []string{},
		ModifiedForms: []string{},
	}

	if oldT.Name != newT.Name {
		res.Differences = append(res.Differences, fmt.Sprintf("name: %s → %s", oldT.Name, newT.Name))
	}
	if oldT.Type != newT.Type {
		res.Differences = append(res.Differences, fmt.Sprintf("type: %s → %s", oldT.Type, newT.Type))
	}

	oldForms := indexForms(oldT.Forms)
	newForms := indexForms(newT.Forms)

	for _, f := range oldT.Forms {
		if _, ok := newForms[f.ID]; !ok {
			res.RemovedForms = append(res.RemovedForms, f.ID)
			res.Differences = append(res.Differences, fmt.Sprintf("form %s (%s) removed", f.ID, f.EffectiveName()))
		}
	}

	for _, nf := range newT.Forms {
		of, ok := oldForms[nf.ID]
		if !ok {
			res.AddedForms = append(res.AddedForms, nf.ID)
			res.Differences = append(res.Differences, fmt.Sprintf("form %s (%s) added", nf.ID, nf.EffectiveName()))
			continue
		}
		changes := compareForm(of, nf)
		if len(changes) == 0 {
			continue
		}
		res.ModifiedForms = append(res.ModifiedForms, nf.ID)
		for _, c := range changes {
			res.Differences = append(res.Differences, fmt.Sprintf("form %s %s", nf.ID, c))
		}
	}

	return res
}

func indexForms(forms []models.TemplateForm) map[string]models.TemplateForm {
	out := make(map[string]models.TemplateForm, len(forms))
	for _, f := range forms {
		out[f.ID] = f
	}
	return out
}

func compareForm(a, b models.TemplateForm) []string {
	var changes []string
	if a.TCode != b.TCode {
		changes = append(changes, fmt.Sprintf("tcode: %s → %s", a.TCode, b.TCode))
	}
	if a.CustomName != b.CustomName {
		changes = append(changes, fmt.Sprintf("customName: %s → %s", a.CustomName, b.CustomName))
	}
	if !cmp.Equal(a.Parameters, b.Parameters, formOpts) {
		changes = append(changes, fmt.Sprintf("parameters: %v → %v", sorted(a.Parameters), sorted(b.Parameters)))
	}
	if !cmp.Equal(a.DefaultValues, b.DefaultValues, formOpts) {
		for _, k := range changedDefaults(a.DefaultValues, b.DefaultValues) {
			changes = append(changes, fmt.Sprintf("defaultValues.%s: %s → %s", k, a.DefaultValues[k], b.DefaultValues[k]))
		}
	}
	return changes
}

// changedDefaults returns the sorted keys whose value differs, including
// keys present on one side only.
func changedDefaults(a, b map[string]models.Value) []string {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	var out []string
	for k := range keys {
		if !a[k].Equal(b[k]) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
