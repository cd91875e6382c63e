package instantiatepackage

import "time"

type Config struct {
	Timeout time.Duration
	// AvailableFlows comes from the flow registry and is used when a job
	// does not carry its own list.
	AvailableFlows []string
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
