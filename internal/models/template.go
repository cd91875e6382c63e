// Package models holds the template, package and date range records that
// flow through the engine.
package models

import (
	"fmt"

	"github.com/tiendc/go-deepcopy"
)

// TemplateType classifies a template by the kind of sync it produces.
type TemplateType string

const (
	TemplateSummarySync TemplateType = "SUMMARY_SYNC"
	TemplateDetailsSync TemplateType = "DETAILS_SYNC"
	TemplateCustom      TemplateType = "CUSTOM"
)

func (t TemplateType) Valid() bool {
	switch t {
	case TemplateSummarySync, TemplateDetailsSync, TemplateCustom:
		return true
	}
	return false
}

// FlowDefinition is the opaque SAP GUI flow document attached to a form.
// Only $meta.tcode, targetContext and steps are ever inspected.
type FlowDefinition = map[string]interface{}

// Template is a reusable, date-agnostic set of transaction forms.
type Template struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Type  TemplateType   `json:"type"`
	Forms []TemplateForm `json:"forms"`
}

// TemplateForm declares one transaction's parameters inside a Template.
type TemplateForm struct {
	ID            string           `json:"id"`
	TCode         string           `json:"tcode"`
	CustomName    string           `json:"customName"`
	JSONData      FlowDefinition   `json:"jsonData,omitempty"`
	Parameters    []string         `json:"parameters"`
	DefaultValues map[string]Value `json:"defaultValues,omitempty"`
}

// Package is a date-stamped instantiation of a Template.
type Package struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Forms []Form `json:"forms"`
}

// Form is a realized TemplateForm with every declared parameter resolved.
type Form struct {
	ID         string           `json:"id"`
	TCode      string           `json:"tcode"`
	CustomName string           `json:"customName"`
	JSONData   FlowDefinition   `json:"jsonData,omitempty"`
	Parameters map[string]Value `json:"parameters"`
}

// EffectiveName is the form's custom name, falling back to its tcode.
func (f Form) EffectiveName() string {
	if f.CustomName != "" {
		return f.CustomName
	}
	return f.TCode
}

func (f TemplateForm) EffectiveName() string {
	if f.CustomName != "" {
		return f.CustomName
	}
	return f.TCode
}

// Clone returns a deep copy of t that shares no mutable state with it.
func (t Template) Clone() (Template, error) {
	out := Template{ID: t.ID, Name: t.Name, Type: t.Type}
	if t.Forms == nil {
		return out, nil
	}
	out.Forms = make([]TemplateForm, len(t.Forms))
	for i, f := range t.Forms {
		jd, err := CloneFlow(f.JSONData)
		if err != nil {
			return Template{}, fmt.Errorf("clone form %s: %w", f.ID, err)
		}
		out.Forms[i] = TemplateForm{
			ID:            f.ID,
			TCode:         f.TCode,
			CustomName:    f.CustomName,
			JSONData:      jd,
			Parameters:    cloneStrings(f.Parameters),
			DefaultValues: cloneValues(f.DefaultValues),
		}
	}
	return out, nil
}

// Clone returns a deep copy of p.
func (p Package) Clone() (Package, error) {
	out := Package{ID: p.ID, Name: p.Name}
	if p.Forms == nil {
		return out, nil
	}
	out.Forms = make([]Form, len(p.Forms))
	for i, f := range p.Forms {
		jd, err := CloneFlow(f.JSONData)
		if err != nil {
			return Package{}, fmt.Errorf("clone form %s: %w", f.ID, err)
		}
		out.Forms[i] = Form{
			ID:         f.ID,
			TCode:      f.TCode,
			CustomName: f.CustomName,
			JSONData:   jd,
			Parameters: cloneValues(f.Parameters),
		}
	}
	return out, nil
}

// CloneFlow deep-copies a flow definition.
func CloneFlow(src FlowDefinition) (FlowDefinition, error) {
	if src == nil {
		return nil, nil
	}
	var dst FlowDefinition
	if err := deepcopy.Copy(&dst, &src); err != nil {
		return nil, err
	}
	return dst, nil
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneValues(in map[string]Value) map[string]Value {
	if in == nil {
		return nil
	}
	out := make(map[string]Value, len(in))
	for k, v := range in {
		if v.kind == KindList {
			v = ListValue(v.list...)
		}
		out[k] = v
	}
	return out
}

// MetaTCode returns jsonData.$meta.tcode when present.
func MetaTCode(jd FlowDefinition) (string, bool) {
	meta, ok := jd["$meta"].(map[string]interface{})
	if !ok {
		return "", false
	}
	tcode, ok := meta["tcode"].(string)
	if !ok {
		return "", false
	}
	return tcode, true
}

// HasMeta reports whether jsonData.$meta is an object.
func HasMeta(jd FlowDefinition) bool {
	_, ok := jd["$meta"].(map[string]interface{})
	return ok
}

// HasKey reports whether jsonData carries a non-nil top-level key.
func HasKey(jd FlowDefinition, key string) bool {
	v, ok := jd[key]
	return ok && v != nil
}
