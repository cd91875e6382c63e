package savepackage

import (
	"sqpr-engine/internal/common/validation"
	"sqpr-engine/internal/engine/execution"
	"sqpr-engine/internal/engine/validator"
	"sqpr-engine/internal/models"
)

type Input struct {
	Template       models.Template  `json:"template"`
	DateRange      models.DateRange `json:"dateRange"`
	Directory      string           `json:"directory,omitempty"`
	AvailableFlows []string         `json:"availableFlows,omitempty"`
	// ExpectedSizes maps form ID to an expected file size in bytes.
	ExpectedSizes map[string]int64 `json:"expectedSizes,omitempty"`
}

type Output struct {
	Outcome    string            `json:"outcome"`
	Report     *execution.Report `json:"report"`
	Validation validator.Result  `json:"validation"`
}

var inputSchema = validation.MustCompile(TaskType, validation.Object(
	[]string{"template", "dateRange"},
	map[string]interface{}{
		"template":       validation.TemplateSchema(),
		"dateRange":      validation.DateRangeSchema(),
		"directory":      map[string]interface{}{"type": "string"},
		"availableFlows": validation.StringList(),
		"expectedSizes": map[string]interface{}{
			"type":                 "object",
			"additionalProperties": map[string]interface{}{"type": "integer", "minimum": 0},
		},
	},
))
