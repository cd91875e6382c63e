package savepackage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	apperrors "sqpr-engine/internal/common/errors"
	"sqpr-engine/internal/common/logger"
	"sqpr-engine/internal/engine/execution"
	"sqpr-engine/internal/engine/instantiate"
	"sqpr-engine/internal/engine/validator"
	"sqpr-engine/internal/workers/packaging"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "save-package"
)

type Handler struct {
	config       *Config
	instantiator *instantiate.Instantiator
	validator    *validator.Validator
	runner       *execution.Runner
	job          *packaging.Job
	logger       logger.Logger
}

func NewHandler(config *Config, in *instantiate.Instantiator, v *validator.Validator, runner *execution.Runner, rec packaging.Recorder, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		instantiator: in,
		validator:    v,
		runner:       runner,
		job:          packaging.NewJob(TaskType, log, rec),
		logger:       log,
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

// Execute instantiates the template, blocks on pre-validation errors and
// saves every form. Per-file failures do not fail the job; they are reported
// through the outcome and the report.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	opts := validator.Options{AvailableFlows: packaging.Flows(input.AvailableFlows, h.config.AvailableFlows)}
	prepared, err := packaging.Prepare(h.instantiator, h.validator, input.Template, input.DateRange, opts)
	if err != nil {
		var stdErr *apperrors.StandardError
		if errors.As(err, &stdErr) {
			stdErr.WithMetadata("validationErrors", prepared.Validation.Messages())
		}
		return nil, err
	}
	for _, w := range prepared.Validation.Warnings {
		h.logger.Warn("pre-save warning", map[string]interface{}{
			logger.FieldFormID: w.FormID,
			"code":             w.Code,
			"message":          w.Message,
		})
	}

	directory := input.Directory
	if directory == "" {
		directory = h.config.OutputDirectory
	}

	report, err := h.runner.Save(ctx, execution.SaveRequest{
		Package:       prepared.Instantiation.Package,
		DateRange:     input.DateRange,
		Directory:     directory,
		ExpectedSizes: input.ExpectedSizes,
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("package saved", map[string]interface{}{
		logger.FieldRunID:     report.RunID,
		logger.FieldDirectory: directory,
		"outcome":             report.Outcome(),
		"saved":               report.Tally.Success,
		"failed":              report.Tally.Errors,
	})

	return &Output{
		Outcome:    report.Outcome(),
		Report:     report,
		Validation: prepared.Validation,
	}, nil
}
