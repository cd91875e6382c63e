package validatetemplate

import (
	"sqpr-engine/internal/common/validation"
	"sqpr-engine/internal/engine/diff"
	"sqpr-engine/internal/engine/validator"
	"sqpr-engine/internal/models"
)

type Input struct {
	Template models.Template `json:"template"`

	// PreviousTemplateName names the stored version to diff against. It
	// defaults to the template's own file name.
	PreviousTemplateName string   `json:"previousTemplateName,omitempty"`
	AvailableFlows       []string `json:"availableFlows,omitempty"`

	// Store writes the template as the new stored version when it has no
	// validation errors and differs from the stored one.
	Store bool `json:"store,omitempty"`

	// Revert restores the version replaced by the last store of this
	// template instead of validating Template.
	Revert bool `json:"revert,omitempty"`
}

type Output struct {
	Validation    validator.Result `json:"validation"`
	PreviousFound bool             `json:"previousFound"`
	Diff          *diff.Result     `json:"diff,omitempty"`
	StoredAs      string           `json:"storedAs,omitempty"`
	Reverted      bool             `json:"reverted,omitempty"`

	// VersionsKept is the number of replaced versions available to revert.
	VersionsKept int `json:"versionsKept"`
}

var inputSchema = validation.MustCompile(TaskType, validation.Object(
	[]string{"template"},
	map[string]interface{}{
		"template":             validation.TemplateSchema(),
		"previousTemplateName": map[string]interface{}{"type": "string"},
		"availableFlows":       validation.StringList(),
		"store":                map[string]interface{}{"type": "boolean"},
		"revert":               map[string]interface{}{"type": "boolean"},
	},
))
