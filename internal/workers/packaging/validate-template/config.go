package validatetemplate

import (
	"time"

	"sqpr-engine/internal/engine/history"
)

type Config struct {
	Timeout time.Duration
	// TemplateDirectory holds stored template documents, one
	// "<template name>.json" file per template.
	TemplateDirectory string
	AvailableFlows    []string
	// HistoryCapacity bounds the replaced versions kept per template for
	// revert.
	HistoryCapacity int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:           30 * time.Second,
		TemplateDirectory: "/templates",
		HistoryCapacity:   history.DefaultCapacity,
	}
}
