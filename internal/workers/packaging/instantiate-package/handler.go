package instantiatepackage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	apperrors "sqpr-engine/internal/common/errors"
	"sqpr-engine/internal/common/logger"
	"sqpr-engine/internal/engine/instantiate"
	"sqpr-engine/internal/engine/naming"
	"sqpr-engine/internal/engine/validator"
	"sqpr-engine/internal/workers/packaging"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "instantiate-package"
)

type Handler struct {
	config       *Config
	instantiator *instantiate.Instantiator
	validator    *validator.Validator
	namer        *naming.Namer
	job          *packaging.Job
	logger       logger.Logger
}

func NewHandler(config *Config, in *instantiate.Instantiator, v *validator.Validator, namer *naming.Namer, rec packaging.Recorder, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		instantiator: in,
		validator:    v,
		namer:        namer,
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

// Execute validates and instantiates the template and previews the file
// name of every form.
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
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewTimeoutError(TaskType, err)
	}

	pkg := prepared.Instantiation.Package
	names := make([]string, 0, len(pkg.Forms))
	for _, f := range pkg.Forms {
		name, err := h.namer.NameForForm(f, input.DateRange)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	h.logger.Info("package instantiated", map[string]interface{}{
		logger.FieldTemplate: input.Template.ID,
		"packageId":          pkg.ID,
		"forms":              len(pkg.Forms),
		"warnings":           len(prepared.Validation.Warnings),
	})

	return &Output{
		Package:    pkg,
		States:     prepared.Instantiation.States,
		FileNames:  names,
		Validation: prepared.Validation,
	}, nil
}
