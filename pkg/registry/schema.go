package registry

// FlowRegistry is the authoritative list of flow definitions that forms may
// reference through $meta.tcode.
type FlowRegistry struct {
	Version     string `json:"version" yaml:"version"`
	LastUpdated string `json:"lastUpdated" yaml:"lastUpdated"`
	Flows       []Flow `json:"flows" yaml:"flows"`
}

// Flow is one flow file, e.g. Name "KSB1.json" recording TCode "KSB1".
type Flow struct {
	Name        string   `json:"name" yaml:"name"`
	TCode       string   `json:"tcode" yaml:"tcode"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}
