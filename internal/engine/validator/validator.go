package validator

import (
	"strings"

	"sqpr-engine/internal/common/logger"
	"sqpr-engine/internal/common/metrics"
	"sqpr-engine/internal/engine/dateformat"
	"sqpr-engine/internal/engine/naming"
	"sqpr-engine/internal/models"
)

const (
	entityTemplate = "template"
	entityPackage  = "package"
	entityFile     = "file"
)

// Options tune a single validation call.
type Options struct {
	// AvailableFlows is the authoritative list of flow file names. A nil
	// list skips the flow reference check.
	AvailableFlows []string
}

// Validator holds no per-call state; concurrent use is safe.
type Validator struct {
	logger logger.Logger
}

func New(log logger.Logger) *Validator {
	return &Validator{logger: log}
}

// formShape is the subset of a form the shared rules look at.
type formShape struct {
	id         string
	tcode      string
	customName string
	jsonData   models.FlowDefinition
}

// ValidateTemplate runs the structural, JSON-shape, duplicate-name and flow
// reference rules against t.
func (v *Validator) ValidateTemplate(t models.Template, opts Options) Result {
	c := newCollector(len(t.Forms))

	shapes := make([]formShape, len(t.Forms))
	for i, f := range t.Forms {
		shapes[i] = formShape{id: f.ID, tcode: f.TCode, customName: f.CustomName, jsonData: f.JSONData}
	}
	checkHeader(c, t.Name, len(t.Forms))
	if t.Type != "" && !t.Type.Valid() {
		c.add(SeverityWarning, CodeUnknownType, "type", "", "",
			"unknown template type %q", t.Type)
	}

	for i, f := range t.Forms {
		checkForm(c, shapes[i])
		checkParameters(c, f)
	}
	checkDuplicates(c, t.Forms)
	checkFlows(c, shapes, opts.AvailableFlows)

	c.add(SeverityInfo, CodeSummary, "", "", "", "template %q has %d form(s)", t.Name, len(t.Forms))
	return v.finish(c, entityTemplate, t.ID)
}

// ValidatePackage runs the structural and JSON-shape rules against p and, when
// dr is non-nil, the date range rules.
func (v *Validator) ValidatePackage(p models.Package, dr *models.DateRange) Result {
	c := newCollector(len(p.Forms))

	checkHeader(c, p.Name, len(p.Forms))
	for _, f := range p.Forms {
		checkForm(c, formShape{id: f.ID, tcode: f.TCode, customName: f.CustomName, jsonData: f.JSONData})
	}
	if dr != nil {
		checkDateRange(c, *dr)
	}

	c.add(SeverityInfo, CodeSummary, "", "", "", "package %q has %d form(s)", p.Name, len(p.Forms))
	return v.finish(c, entityPackage, p.ID)
}

// FileCheck describes one written package file.
type FileCheck struct {
	FileName string
	Size     int64
	// ExpectedSize enables the size deviation warning when > 0.
	ExpectedSize int64
	FormID       string
	TCode        string
}

// ValidateGeneratedFile checks a file after it was written. A wrong extension
// or an empty file is an error; naming drift and unusual sizes are warnings.
func (v *Validator) ValidateGeneratedFile(fc FileCheck) Result {
	c := newCollector(1)

	if !strings.HasSuffix(fc.FileName, naming.Extension) {
		c.add(SeverityError, CodeBadExtension, "fileName", fc.FormID, fc.TCode,
			"file %q does not end in %s", fc.FileName, naming.Extension)
	} else if !naming.FilePattern.MatchString(fc.FileName) {
		c.add(SeverityWarning, CodeNamePattern, "fileName", fc.FormID, fc.TCode,
			"file %q does not match the package naming pattern", fc.FileName)
	}

	if fc.Size <= 0 {
		c.add(SeverityError, CodeEmptyFile, "size", fc.FormID, fc.TCode,
			"file %q is empty", fc.FileName)
	} else if fc.ExpectedSize > 0 {
		if fc.Size > 2*fc.ExpectedSize || 2*fc.Size < fc.ExpectedSize {
			c.add(SeverityWarning, CodeSizeDeviation, "size", fc.FormID, fc.TCode,
				"file %q is %d bytes, expected about %d", fc.FileName, fc.Size, fc.ExpectedSize)
		}
	}

	return v.finish(c, entityFile, fc.FileName)
}

func (v *Validator) finish(c *collector, entity, id string) Result {
	res := c.result()
	record(entity, res)
	v.logger.Debug("validation finished", map[string]interface{}{
		"entity":   entity,
		"id":       id,
		"isValid":  res.IsValid,
		"errors":   len(res.Errors),
		"warnings": len(res.Warnings),
	})
	return res
}

func record(entity string, res Result) {
	if n := len(res.Errors); n > 0 {
		metrics.ValidationIssues.WithLabelValues(entity, string(SeverityError)).Add(float64(n))
	}
	if n := len(res.Warnings); n > 0 {
		metrics.ValidationIssues.WithLabelValues(entity, string(SeverityWarning)).Add(float64(n))
	}
}

func checkHeader(c *collector, name string, forms int) {
	if strings.TrimSpace(name) == "" {
		c.add(SeverityError, CodeMissingName, "name", "", "", "name is required")
		c.res.Summary.MissingRequiredFields++
	}
	if forms == 0 {
		c.add(SeverityWarning, CodeNoForms, "forms", "", "", "no forms defined")
	}
}

func checkForm(c *collector, f formShape) {
	tcode := strings.TrimSpace(f.tcode)
	if tcode == "" {
		c.add(SeverityError, CodeMissingTCode, "tcode", f.id, "", "form has no transaction code")
		c.res.Summary.MissingRequiredFields++
	}
	if strings.TrimSpace(f.customName) == "" {
		c.add(SeverityWarning, CodeMissingCustomName, "customName", f.id, f.tcode,
			"form has no custom name, %q will be used", f.tcode)
	}

	if !models.HasMeta(f.jsonData) {
		c.add(SeverityError, CodeMissingMeta, "jsonData.$meta", f.id, f.tcode, "flow definition has no $meta")
	} else if meta, ok := models.MetaTCode(f.jsonData); !ok || strings.TrimSpace(meta) == "" {
		c.add(SeverityError, CodeMissingMetaTCode, "jsonData.$meta.tcode", f.id, f.tcode, "flow definition has no $meta.tcode")
	} else if tcode != "" && !strings.EqualFold(strings.TrimSpace(meta), tcode) {
		c.add(SeverityWarning, CodeSchemaMismatch, "jsonData.$meta.tcode", f.id, f.tcode,
			"flow is for %q but form declares %q", meta, f.tcode)
		c.res.Summary.SchemaMismatches++
	}

	if !models.HasKey(f.jsonData, "targetContext") {
		c.add(SeverityWarning, CodeMissingContext, "jsonData.targetContext", f.id, f.tcode, "flow definition has no targetContext")
	}
	if !models.HasKey(f.jsonData, "steps") {
		c.add(SeverityWarning, CodeMissingSteps, "jsonData.steps", f.id, f.tcode, "flow definition has no steps")
	}
}

func checkParameters(c *collector, f models.TemplateForm) {
	if len(f.Parameters) == 0 {
		c.add(SeverityWarning, CodeNoParameters, "parameters", f.ID, f.TCode, "form declares no parameters")
		return
	}
	for _, p := range f.Parameters {
		if _, ok := f.DefaultValues[p]; !ok {
			c.add(SeverityWarning, CodeMissingDefault, "defaultValues."+p, f.ID, f.TCode,
				"parameter %q has no default value", p)
			c.res.Summary.MissingDefaults++
		}
	}
}

// checkDuplicates flags every repeat of an effective form name. The summary
// counts duplicated names, not repeats.
func checkDuplicates(c *collector, forms []models.TemplateForm) {
	seen := make(map[string]int, len(forms))
	for _, f := range forms {
		name := strings.TrimSpace(f.EffectiveName())
		if name == "" {
			continue
		}
		seen[name]++
		switch seen[name] {
		case 1:
			continue
		case 2:
			c.res.Summary.DuplicateNames++
		}
		c.add(SeverityError, CodeDuplicateName, "customName", f.ID, f.TCode,
			"name %q is used by more than one form", name)
	}
}

func checkFlows(c *collector, forms []formShape, available []string) {
	if available == nil {
		c.add(SeverityInfo, CodeMissingFlow, "", "", "", "no flow list supplied, flow reference check skipped")
		return
	}
	index := make(map[string]struct{}, len(available))
	for _, name := range available {
		index[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	for _, f := range forms {
		tcode, ok := models.MetaTCode(f.jsonData)
		if !ok || tcode == "" {
			continue
		}
		flow := tcode + ".json"
		if _, ok := index[strings.ToLower(flow)]; !ok {
			c.add(SeverityWarning, CodeMissingFlow, "jsonData.$meta.tcode", f.id, f.tcode,
				"flow %q is not in the available flow list", flow)
			c.res.Summary.MissingFlows++
		}
	}
}

func checkDateRange(c *collector, dr models.DateRange) {
	if strings.TrimSpace(dr.StartDate) == "" {
		c.add(SeverityError, CodeInvalidDate, "dateRange.startDate", "", "", "start date is required")
		c.res.Summary.InvalidDates++
		return
	}
	start, err := dateformat.Parse(dr.StartDate)
	if err != nil {
		c.add(SeverityError, CodeInvalidDate, "dateRange.startDate", "", "",
			"start date %q cannot be parsed", dr.StartDate)
		c.res.Summary.InvalidDates++
	}

	if dr.HasEnd() {
		end, endErr := dateformat.Parse(dr.EndDate)
		switch {
		case endErr != nil:
			c.add(SeverityError, CodeInvalidDate, "dateRange.endDate", "", "",
				"end date %q cannot be parsed", dr.EndDate)
			c.res.Summary.InvalidDates++
		case err == nil && end.Before(start):
			c.add(SeverityError, CodeInvalidDate, "dateRange.endDate", "", "",
				"end date %s is before start date %s", dr.EndDate, dr.StartDate)
			c.res.Summary.InvalidDates++
		case err == nil:
			days := int(end.Sub(start).Hours()/24) + 1
			c.add(SeverityInfo, CodeSummary, "dateRange", "", "", "date range covers %d day(s)", days)
		}
	}

	if !dr.PeriodType.Valid() {
		c.add(SeverityError, CodeInvalidPeriod, "dateRange.periodType", "", "",
			"period type %q must be %q or %q", dr.PeriodType, models.PeriodMonth, models.PeriodDay)
	}
}
