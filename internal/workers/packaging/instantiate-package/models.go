package instantiatepackage

import (
	"sqpr-engine/internal/common/validation"
	"sqpr-engine/internal/engine/instantiate"
	"sqpr-engine/internal/engine/validator"
	"sqpr-engine/internal/models"
)

type Input struct {
	Template       models.Template  `json:"template"`
	DateRange      models.DateRange `json:"dateRange"`
	AvailableFlows []string         `json:"availableFlows,omitempty"`
}

// Output carries the package and a preview of its file names. The names use
// fresh identifiers; saving the package generates new ones.
type Output struct {
	Package    models.Package                   `json:"package"`
	States     map[string]instantiate.FormState `json:"states"`
	FileNames  []string                         `json:"fileNames"`
	Validation validator.Result                 `json:"validation"`
}

var inputSchema = validation.MustCompile(TaskType, validation.Object(
	[]string{"template", "dateRange"},
	map[string]interface{}{
		"template":       validation.TemplateSchema(),
		"dateRange":      validation.DateRangeSchema(),
		"availableFlows": validation.StringList(),
	},
))
