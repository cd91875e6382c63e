// cmd/tools/worker-generator/main.go
package main

import (
	"bytes"
	"flag"
	"fmt"
	"go/format"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
)

// WorkerData holds data for templates
type WorkerData struct {
	Name        string
	PackageName string
	TaskType    string
	Description string
	Timeout     string
}

var taskTypePattern = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)

// newWorkerData derives package and display names from a kebab-case task
// type.
func newWorkerData(taskType, description, timeout string) (WorkerData, error) {
	if !taskTypePattern.MatchString(taskType) {
		return WorkerData{}, fmt.Errorf("task type %q must be lower-case kebab-case", taskType)
	}
	parts := strings.Split(taskType, "-")
	for i, p := range parts {
		parts[i] = upperFirst(p)
	}
	if description == "" {
		description = "handles " + taskType + " jobs"
	}
	if timeout == "" {
		timeout = "30 * time.Second"
	}
	return WorkerData{
		Name:        strings.Join(parts, " "),
		PackageName: strings.ReplaceAll(taskType, "-", ""),
		TaskType:    taskType,
		Description: description,
		Timeout:     timeout,
	}, nil
}

// upperFirst makes the first character uppercase
func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

const configTemplate = `package {{ .PackageName }}

import "time"

type Config struct {
	Timeout        time.Duration
	AvailableFlows []string
}

func LoadConfig() *Config {
	return &Config{
		Timeout: {{ .Timeout }},
	}
}
`

const modelsTemplate = `package {{ .PackageName }}

import (
	"sqpr-engine/internal/common/validation"
	"sqpr-engine/internal/engine/validator"
	"sqpr-engine/internal/models"
)

type Input struct {
	Template       models.Template ` + "`json:\"template\"`" + `
	AvailableFlows []string        ` + "`json:\"availableFlows,omitempty\"`" + `
}

type Output struct {
	Validation validator.Result ` + "`json:\"validation\"`" + `
}

var inputSchema = validation.MustCompile(TaskType, validation.Object(
	[]string{"template"},
	map[string]interface{}{
		"template":       validation.TemplateSchema(),
		"availableFlows": validation.StringList(),
	},
))
`

const handlerTemplate = `package {{ .PackageName }}

import (
	"context"
	"encoding/json"
	"time"

	apperrors "sqpr-engine/internal/common/errors"
	"sqpr-engine/internal/common/logger"
	"sqpr-engine/internal/engine/validator"
	"sqpr-engine/internal/workers/packaging"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "{{ .TaskType }}"
)

// Handler {{ .Description }}.
type Handler struct {
	config    *Config
	validator *validator.Validator
	job       *packaging.Job
	logger    logger.Logger
}

func NewHandler(config *Config, v *validator.Validator, rec packaging.Recorder, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		validator: v,
		job:       packaging.NewJob(TaskType, log, rec),
		logger:    log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	started := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := parseInput(job.Variables)
	if err != nil {
		h.job.Fail(ctx, client, job, err, started)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.job.Fail(ctx, client, job, err, started)
		return
	}

	h.job.Complete(ctx, client, job, output, started)
}

func parseInput(variables string) (*Input, error) {
	if res := inputSchema.Validate(variables); !res.Valid {
		return nil, apperrors.NewParseError(res.Err())
	}
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewParseError(err)
	}
	return &input, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	opts := validator.Options{AvailableFlows: packaging.Flows(input.AvailableFlows, h.config.AvailableFlows)}
	res := h.validator.ValidateTemplate(input.Template, opts)
	if res.HasErrors() {
		return nil, apperrors.NewValidationFailedError(len(res.Errors), res.FirstError()).
			WithMetadata("validationErrors", res.Messages())
	}
	return &Output{Validation: res}, nil
}
`

const testTemplate = `package {{ .PackageName }}

import (
	"context"
	"testing"

	"sqpr-engine/internal/common/logger"
	"sqpr-engine/internal/engine/validator"
	"sqpr-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestHandler(t *testing.T) *Handler {
	log := logger.NewTestLogger(t)
	return NewHandler(LoadConfig(), validator.New(log), nil, log)
}

// ==========================
// Tests
// ==========================

func TestHandler_Execute(t *testing.T) {
	h := createTestHandler(t)

	_, err := h.Execute(context.Background(), &Input{Template: models.Template{}})
	require.Error(t, err)

	out, err := h.Execute(context.Background(), &Input{Template: models.Template{Name: "{{ .Name }}"}})
	require.NoError(t, err)
	assert.True(t, out.Validation.IsValid)
}

func TestParseInput(t *testing.T) {
	_, err := parseInput(` + "`{\"template\":{\"name\":\"x\",\"forms\":[]}}`" + `)
	assert.NoError(t, err)

	_, err = parseInput(` + "`{}`" + `)
	assert.Error(t, err)
}
`

var files = []struct {
	name string
	tmpl string
}{
	{"config.go", configTemplate},
	{"models.go", modelsTemplate},
	{"handler.go", handlerTemplate},
	{"handler_test.go", testTemplate},
}

// render executes every template and gofmts the result.
func render(data WorkerData) (map[string][]byte, error) {
	out := make(map[string][]byte, len(files))
	for _, f := range files {
		tmpl, err := template.New(f.name).Parse(f.tmpl)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", f.name, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("render %s: %w", f.name, err)
		}
		src, err := format.Source(buf.Bytes())
		if err != nil {
			return nil, fmt.Errorf("format %s: %w", f.name, err)
		}
		out[f.name] = src
	}
	return out, nil
}

// generate writes the worker package under outputDir/<task type>. Existing
// files are never overwritten.
func generate(data WorkerData, outputDir string, out io.Writer) error {
	rendered, err := render(data)
	if err != nil {
		return err
	}

	dir := filepath.Join(outputDir, data.TaskType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := os.WriteFile(path, rendered[f.name], 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintf(out, "created %s\n", path)
	}

	fmt.Fprintf(out, "\nRegister %s in cmd/worker-manager/app.go and add a workers.%s entry to the config.\n",
		data.PackageName, data.TaskType)
	return nil
}

func main() {
	taskType := flag.String("task", "", "Zeebe task type of the new worker (e.g. export-package)")
	outputDir := flag.String("output", "./internal/workers/packaging", "Directory the worker package is created in")
	description := flag.String("description", "", "One-line description for the handler doc comment")
	timeout := flag.String("timeout", "", "Go expression for the default job timeout")
	flag.Parse()

	if *taskType == "" {
		fmt.Println("Usage: worker-generator -task <task-type> [-output <dir>] [-description <text>]")
		fmt.Println("\nExample:")
		fmt.Println("  go run ./cmd/tools/worker-generator -task export-package")
		os.Exit(1)
	}

	data, err := newWorkerData(*taskType, *description, *timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	if err := generate(data, *outputDir, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
