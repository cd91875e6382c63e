package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func createTestRegistry(t *testing.T) *FlowRegistry {
	reg := New(fixedNow)
	require.NoError(t, reg.Add(Flow{TCode: "ksb1", Description: "Cost centers actual"}, fixedNow))
	require.NoError(t, reg.Add(Flow{TCode: "KOB1", Tags: []string{"orders"}}, fixedNow))
	return reg
}

func TestFlowRegistry_AddRemove(t *testing.T) {
	reg := createTestRegistry(t)

	assert.Equal(t, []string{"KSB1.json", "KOB1.json"}, reg.FlowNames())

	err := reg.Add(Flow{Name: "ksb1.JSON", TCode: "KSB1"}, fixedNow)
	assert.Error(t, err)
	assert.Error(t, reg.Add(Flow{}, fixedNow))

	later := fixedNow.Add(time.Hour)
	require.NoError(t, reg.Remove("kob1.json", later))
	assert.Equal(t, []string{"KSB1.json"}, reg.FlowNames())
	assert.Equal(t, later.Format(time.RFC3339), reg.LastUpdated)
	assert.Error(t, reg.Remove("KOB1.json", later))
}

func TestFlowRegistry_Validate(t *testing.T) {
	tests := []struct {
		name    string
		flows   []Flow
		wantErr string
	}{
		{name: "valid", flows: []Flow{{Name: "KSB1.json", TCode: "KSB1"}}},
		{name: "empty", wantErr: "no flows"},
		{name: "missing name", flows: []Flow{{TCode: "KSB1"}}, wantErr: "name"},
		{name: "missing tcode", flows: []Flow{{Name: "KSB1.json"}}, wantErr: "tcode"},
		{name: "duplicate", flows: []Flow{{Name: "KSB1.json", TCode: "KSB1"}, {Name: "ksb1.json", TCode: "KSB1"}}, wantErr: "duplicate"},
		{name: "mismatch", flows: []Flow{{Name: "KOB1.json", TCode: "KSB1"}}, wantErr: "does not match"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := &FlowRegistry{Flows: tt.flows}
			err := reg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	for _, file := range []string{"flows.json", "flows.yaml"} {
		t.Run(file, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", file)
			reg := createTestRegistry(t)

			require.NoError(t, SaveRegistry(reg, path))
			loaded, err := LoadRegistry(path)
			require.NoError(t, err)
			assert.Equal(t, reg, loaded)

			entries, err := os.ReadDir(filepath.Dir(path))
			require.NoError(t, err)
			assert.Len(t, entries, 1, "temp file left behind")
		})
	}
}

func TestLoadRegistry_Errors(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, os.IsNotExist(err))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("flows: [unclosed"), 0644))
	_, err = LoadRegistry(path)
	assert.Error(t, err)
}
