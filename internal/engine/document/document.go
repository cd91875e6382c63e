// Package document encodes templates and packages to the combined JSON
// document and decodes template documents back.
//
// A combined document is an object keyed by form name. Each value holds the
// form's tcode plus every declared parameter; unset parameters are written as
// "" so a reloaded template keeps its full parameter list.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	apperrors "sqpr-engine/internal/common/errors"
	"sqpr-engine/internal/models"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

const tcodeKey = "tcode"

var combinedSchema = map[string]interface{}{
	"type": "object",
	"additionalProperties": map[string]interface{}{
		"type":     "object",
		"required": []interface{}{tcodeKey},
		"properties": map[string]interface{}{
			tcodeKey: map[string]interface{}{"type": "string", "minLength": 1},
		},
		"additionalProperties": map[string]interface{}{
			"type":  []interface{}{"string", "boolean", "number", "array", "null"},
			"items": map[string]interface{}{"type": "string"},
		},
	},
}

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewGoLoader(combinedSchema))
	})
	return schema, schemaErr
}

// EncodeTemplate writes t as a combined document. Template defaults become
// the parameter values. Two forms sharing an effective name cannot be
// represented and fail with DOCUMENT_INVALID.
func EncodeTemplate(t models.Template) ([]byte, error) {
	var doc orderedDocument
	for _, f := range t.Forms {
		entry := map[string]interface{}{tcodeKey: f.TCode}
		for _, p := range f.Parameters {
			entry[p] = valueOrEmpty(f.DefaultValues[p])
		}
		for k, v := range f.DefaultValues {
			if _, ok := entry[k]; !ok {
				entry[k] = valueOrEmpty(v)
			}
		}
		if err := doc.add(f.EffectiveName(), entry); err != nil {
			return nil, err
		}
	}
	return doc.marshal()
}

// EncodePackage writes p as a combined document.
func EncodePackage(p models.Package) ([]byte, error) {
	var doc orderedDocument
	for _, f := range p.Forms {
		if err := doc.add(f.EffectiveName(), formEntry(f)); err != nil {
			return nil, err
		}
	}
	return doc.marshal()
}

// orderedDocument is a combined document that keeps forms in insertion
// order, which json.Marshal of a map would not.
type orderedDocument struct {
	names   []string
	entries []map[string]interface{}
}

func (d *orderedDocument) add(name string, entry map[string]interface{}) error {
	for _, n := range d.names {
		if n == name {
			return apperrors.NewDocumentInvalidError(fmt.Sprintf("duplicate form name %q", name))
		}
	}
	d.names = append(d.names, name)
	d.entries = append(d.entries, entry)
	return nil
}

func (d *orderedDocument) marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range d.names {
		key, err := json.Marshal(name)
		if err != nil {
			return nil, fmt.Errorf("encode document: %w", err)
		}
		value, err := json.MarshalIndent(d.entries[i], "  ", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode document: %w", err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString("\n  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(value)
	}
	if len(d.names) > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FormDocument is the content of one generated .sqpr file.
type FormDocument struct {
	Name       string                 `json:"name"`
	TCode      string                 `json:"tcode"`
	Parameters map[string]interface{} `json:"parameters"`
	Flow       models.FlowDefinition  `json:"flow,omitempty"`
}

// EncodeForm writes a single realized form, its parameters and its flow.
func EncodeForm(f models.Form) ([]byte, error) {
	params := formEntry(f)
	delete(params, tcodeKey)
	return marshal(FormDocument{
		Name:       f.EffectiveName(),
		TCode:      f.TCode,
		Parameters: params,
		Flow:       f.JSONData,
	})
}

// DecodeForm reads a document written by EncodeForm.
func DecodeForm(data []byte) (FormDocument, error) {
	var doc FormDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return FormDocument{}, apperrors.NewDocumentInvalidError(err.Error())
	}
	if doc.TCode == "" {
		return FormDocument{}, apperrors.NewDocumentInvalidError("form document has no tcode")
	}
	return doc, nil
}

// DecodeTemplate reads a combined document into a new Template named name.
// Forms keep document order and receive fresh IDs. Every key other than
// tcode becomes a declared parameter; only set values become defaults. The
// flow of a decoded form is the minimal {"$meta":{"tcode":...}} stub.
func DecodeTemplate(name string, data []byte) (models.Template, error) {
	s, err := compiledSchema()
	if err != nil {
		return models.Template{}, fmt.Errorf("compile document schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return models.Template{}, apperrors.NewDocumentInvalidError(err.Error())
	}
	if !res.Valid() {
		msgs := make([]string, len(res.Errors()))
		for i, desc := range res.Errors() {
			msgs[i] = desc.String()
		}
		return models.Template{}, apperrors.NewDocumentInvalidError(strings.Join(msgs, "; "))
	}

	order, err := topLevelKeys(data)
	if err != nil {
		return models.Template{}, apperrors.NewDocumentInvalidError(err.Error())
	}
	var doc map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.Template{}, apperrors.NewDocumentInvalidError(err.Error())
	}

	t := models.Template{
		ID:    uuid.NewString(),
		Name:  name,
		Type:  models.TemplateCustom,
		Forms: make([]models.TemplateForm, 0, len(order)),
	}
	for _, formName := range order {
		entry := doc[formName]
		var tcode string
		if err := json.Unmarshal(entry[tcodeKey], &tcode); err != nil {
			return models.Template{}, apperrors.NewDocumentInvalidError(fmt.Sprintf("%s.tcode: %v", formName, err))
		}

		form := models.TemplateForm{
			ID:            uuid.NewString(),
			TCode:         tcode,
			CustomName:    formName,
			JSONData:      models.FlowDefinition{"$meta": map[string]interface{}{tcodeKey: tcode}},
			Parameters:    make([]string, 0, len(entry)-1),
			DefaultValues: make(map[string]models.Value),
		}
		for key, raw := range entry {
			if key == tcodeKey {
				continue
			}
			v, err := models.ValueFromInterface(raw)
			if err != nil {
				return models.Template{}, apperrors.NewDocumentInvalidError(fmt.Sprintf("%s.%s: %v", formName, key, err))
			}
			form.Parameters = append(form.Parameters, key)
			if v.IsSet() {
				form.DefaultValues[key] = v
			}
		}
		sort.Strings(form.Parameters)
		t.Forms = append(t.Forms, form)
	}
	return t, nil
}

func formEntry(f models.Form) map[string]interface{} {
	entry := make(map[string]interface{}, len(f.Parameters)+1)
	for k, v := range f.Parameters {
		entry[k] = valueOrEmpty(v)
	}
	entry[tcodeKey] = f.TCode
	return entry
}

func valueOrEmpty(v models.Value) interface{} {
	if v.Kind() == models.KindUnset {
		return ""
	}
	return v.Interface()
}

func marshal(v interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// topLevelKeys returns the object keys of data in document order.
func topLevelKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("document is not an object")
	}
	var keys []string
	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
