package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const CurrentVersion = "1.0.0"

// New returns an empty registry stamped with now.
func New(now time.Time) *FlowRegistry {
	return &FlowRegistry{
		Version:     CurrentVersion,
		LastUpdated: now.UTC().Format(time.RFC3339),
		Flows:       []Flow{},
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadRegistry reads a JSON or YAML registry, chosen by file extension.
func LoadRegistry(path string) (*FlowRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg FlowRegistry
	if isYAML(path) {
		err = yaml.Unmarshal(data, &reg)
	} else {
		err = json.Unmarshal(data, &reg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return &reg, nil
}

// SaveRegistry writes reg through a temp file in the target directory and
// renames it into place.
func SaveRegistry(reg *FlowRegistry, path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(reg)
	} else {
		data, err = json.MarshalIndent(reg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".registry-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

// FlowNames lists every flow file name in registry order.
func (r *FlowRegistry) FlowNames() []string {
	names := make([]string, 0, len(r.Flows))
	for _, f := range r.Flows {
		names = append(names, f.Name)
	}
	return names
}

// Find looks a flow up by file name, ignoring case.
func (r *FlowRegistry) Find(name string) (Flow, bool) {
	for _, f := range r.Flows {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Flow{}, false
}

// Add appends flow. The name defaults to "<TCODE>.json".
func (r *FlowRegistry) Add(flow Flow, now time.Time) error {
	if flow.TCode == "" {
		return fmt.Errorf("flow tcode is required")
	}
	flow.TCode = strings.ToUpper(strings.TrimSpace(flow.TCode))
	if flow.Name == "" {
		flow.Name = flow.TCode + ".json"
	}
	if _, exists := r.Find(flow.Name); exists {
		return fmt.Errorf("flow %s already exists", flow.Name)
	}
	r.Flows = append(r.Flows, flow)
	r.LastUpdated = now.UTC().Format(time.RFC3339)
	return nil
}

func (r *FlowRegistry) Remove(name string, now time.Time) error {
	for i, f := range r.Flows {
		if strings.EqualFold(f.Name, name) {
			r.Flows = append(r.Flows[:i], r.Flows[i+1:]...)
			r.LastUpdated = now.UTC().Format(time.RFC3339)
			return nil
		}
	}
	return fmt.Errorf("flow %s not found", name)
}

// Validate checks required fields and name uniqueness.
func (r *FlowRegistry) Validate() error {
	if len(r.Flows) == 0 {
		return fmt.Errorf("registry contains no flows")
	}
	seen := make(map[string]bool, len(r.Flows))
	for _, f := range r.Flows {
		if f.Name == "" {
			return fmt.Errorf("flow missing required field: name")
		}
		key := strings.ToLower(f.Name)
		if seen[key] {
			return fmt.Errorf("duplicate flow name: %s", f.Name)
		}
		seen[key] = true
		if f.TCode == "" {
			return fmt.Errorf("flow %s missing required field: tcode", f.Name)
		}
		if !strings.EqualFold(f.Name, f.TCode+".json") {
			return fmt.Errorf("flow %s does not match tcode %s", f.Name, f.TCode)
		}
	}
	return nil
}
