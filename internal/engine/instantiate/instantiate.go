// Package instantiate turns a Template and a DateRange into a Package.
package instantiate

import (
	"fmt"
	"sort"
	"time"

	"sqpr-engine/internal/common/logger"
	"sqpr-engine/internal/common/metrics"
	"sqpr-engine/internal/engine/dateformat"
	"sqpr-engine/internal/engine/profile"
	"sqpr-engine/internal/models"

	"github.com/google/uuid"
)

// implicitStartSlot is the parameter name set when no declared parameter is
// a start-date target but the form has a startDate slot.
const implicitStartSlot = "startDate"

// FormState is the per-form resolution produced alongside the Package.
type FormState struct {
	Profile         profile.Profile `json:"profile"`
	DateKind        dateformat.Kind `json:"dateKind"`
	FormattedStart  string          `json:"formattedStart"`
	FormattedEnd    string          `json:"formattedEnd,omitempty"`
	DateParameters  []string        `json:"dateParameters,omitempty"`
	AppliedDefaults []string        `json:"appliedDefaults,omitempty"`
}

// Result is the instantiated Package plus the state of each form keyed by
// form ID.
type Result struct {
	Package models.Package       `json:"package"`
	States  map[string]FormState `json:"states"`
}

// Instantiator builds packages from templates.
type Instantiator struct {
	logger logger.Logger
	newID  func() string
}

func New(log logger.Logger) *Instantiator {
	return &Instantiator{
		logger: log,
		newID:  func() string { return uuid.NewString() },
	}
}

// Instantiate realizes every form of t for dr. An unparsable start date (or a
// supplied but unparsable end date) aborts the whole call with INVALID_DATE.
// A template without forms yields an empty package.
func (in *Instantiator) Instantiate(t models.Template, dr models.DateRange) (*Result, error) {
	start, err := dateformat.Parse(dr.StartDate)
	if err != nil {
		return nil, fmt.Errorf("instantiate %q: %w", t.Name, err)
	}
	var end *time.Time
	if dr.HasEnd() {
		e, err := dateformat.Parse(dr.EndDate)
		if err != nil {
			return nil, fmt.Errorf("instantiate %q: end date: %w", t.Name, err)
		}
		end = &e
	}

	pkg := models.Package{
		ID:    in.newID(),
		Name:  fmt.Sprintf("%s %s", t.Name, start.Format("2006-01-02")),
		Forms: make([]models.Form, 0, len(t.Forms)),
	}
	states := make(map[string]FormState, len(t.Forms))

	for _, tf := range t.Forms {
		form, state, err := in.instantiateForm(tf, start, end)
		if err != nil {
			return nil, fmt.Errorf("instantiate form %s: %w", tf.ID, err)
		}
		pkg.Forms = append(pkg.Forms, form)
		states[tf.ID] = state
	}

	metrics.PackagesInstantiated.WithLabelValues(string(t.Type)).Inc()
	in.logger.Debug("template instantiated", map[string]interface{}{
		logger.FieldTemplate: t.ID,
		"packageId":          pkg.ID,
		"forms":              len(pkg.Forms),
		"startDate":          dr.StartDate,
	})

	return &Result{Package: pkg, States: states}, nil
}

func (in *Instantiator) instantiateForm(tf models.TemplateForm, start time.Time, end *time.Time) (models.Form, FormState, error) {
	prof := profile.Resolve(tf.TCode, tf.CustomName)
	state := FormState{
		Profile:        prof,
		DateKind:       prof.DateKind,
		FormattedStart: dateformat.Format(prof.DateKind, start),
	}
	if end != nil {
		state.FormattedEnd = dateformat.Format(prof.DateKind, *end)
	}

	names := parameterNames(tf)
	params := make(map[string]models.Value, len(names))
	for _, name := range names {
		params[name] = tf.DefaultValues[name]
	}

	startAssigned := false
	for _, name := range names {
		slot, ok := matchDate(name)
		if !ok {
			continue
		}
		switch slot {
		case SlotStart:
			params[name] = models.StringValue(state.FormattedStart)
			startAssigned = true
			state.DateParameters = append(state.DateParameters, name)
		case SlotEnd:
			if end != nil {
				params[name] = models.StringValue(state.FormattedEnd)
				state.DateParameters = append(state.DateParameters, name)
			}
		}
	}
	if !startAssigned && hasImplicitStartSlot(tf) {
		params[implicitStartSlot] = models.StringValue(state.FormattedStart)
		state.DateParameters = append(state.DateParameters, implicitStartSlot)
	}

	for _, name := range names {
		if v, applied := prof.DefaultFor(name, params[name]); applied {
			params[name] = v
			state.AppliedDefaults = append(state.AppliedDefaults, name)
		}
	}

	// declared parameters are always present, unset ones as ""
	for name, v := range params {
		if v.Kind() == models.KindUnset {
			params[name] = models.StringValue("")
		}
	}

	jd, err := models.CloneFlow(tf.JSONData)
	if err != nil {
		return models.Form{}, FormState{}, err
	}

	return models.Form{
		ID:         tf.ID,
		TCode:      tf.TCode,
		CustomName: tf.CustomName,
		JSONData:   jd,
		Parameters: params,
	}, state, nil
}

// parameterNames is the sorted union of declared parameters and keys with a
// template default.
func parameterNames(tf models.TemplateForm) []string {
	n := len(tf.Parameters) + len(tf.DefaultValues)
	seen := make(map[string]struct{}, n)
	names := make([]string, 0, n)
	for _, p := range tf.Parameters {
		if _, ok := seen[p]; ok || p == "" {
			continue
		}
		seen[p] = struct{}{}
		names = append(names, p)
	}
	for k := range tf.DefaultValues {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func hasImplicitStartSlot(tf models.TemplateForm) bool {
	_, ok := tf.JSONData[implicitStartSlot]
	return ok
}
