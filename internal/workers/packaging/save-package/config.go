package savepackage

import "time"

type Config struct {
	Timeout time.Duration
	// OutputDirectory receives packages whose job names no directory.
	OutputDirectory string
	AvailableFlows  []string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:         2 * time.Minute,
		OutputDirectory: "/packages",
	}
}
