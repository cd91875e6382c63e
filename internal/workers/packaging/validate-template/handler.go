package validatetemplate

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"strings"
	"sync"
	"time"

	apperrors "sqpr-engine/internal/common/errors"
	"sqpr-engine/internal/common/logger"
	"sqpr-engine/internal/engine/diff"
	"sqpr-engine/internal/engine/document"
	"sqpr-engine/internal/engine/history"
	"sqpr-engine/internal/engine/validator"
	"sqpr-engine/internal/gateway"
	"sqpr-engine/internal/models"
	"sqpr-engine/internal/workers/packaging"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "validate-template"

	templateExtension = ".json"
)

type Handler struct {
	config    *Config
	validator *validator.Validator
	gateway   gateway.Gateway
	job       *packaging.Job
	logger    logger.Logger

	mu       sync.Mutex
	versions map[string]*history.Stack
}

func NewHandler(config *Config, v *validator.Validator, gw gateway.Gateway, rec packaging.Recorder, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		validator: v,
		gateway:   gw,
		job:       packaging.NewJob(TaskType, log, rec),
		logger:    log,
		versions:  make(map[string]*history.Stack),
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

// Execute validates the template and, when it has no errors, diffs it
// against the stored previous version. Validation issues are returned in
// the output; only a requested store of an invalid template fails the job.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	opts := validator.Options{AvailableFlows: packaging.Flows(input.AvailableFlows, h.config.AvailableFlows)}
	if input.Revert {
		return h.revert(ctx, input.Template.Name, opts)
	}

	out := &Output{Validation: h.validator.ValidateTemplate(input.Template, opts)}
	if out.Validation.HasErrors() {
		if input.Store {
			return nil, apperrors.NewValidationFailedError(len(out.Validation.Errors), out.Validation.FirstError()).
				WithMetadata("validationErrors", out.Validation.Messages())
		}
		return out, nil
	}

	previous := input.PreviousTemplateName
	if previous == "" {
		previous = templateFileName(input.Template.Name)
	}
	old, d, err := h.compare(ctx, previous, input.Template)
	if err != nil {
		return nil, err
	}
	out.PreviousFound = old != nil
	out.Diff = d

	versions := h.stack(input.Template.Name)
	if input.Store && (d == nil || !d.Empty()) {
		if old != nil {
			if err := versions.Push(*old); err != nil {
				return nil, err
			}
		}
		storedAs, err := h.store(ctx, input.Template)
		if err != nil {
			return nil, err
		}
		out.StoredAs = storedAs
	}
	out.VersionsKept = versions.Len()

	fields := map[string]interface{}{
		logger.FieldTemplate: input.Template.ID,
		"warnings":           len(out.Validation.Warnings),
		"previousFound":      out.PreviousFound,
	}
	if d != nil {
		fields["modifiedForms"] = len(d.ModifiedForms)
		fields["addedForms"] = len(d.AddedForms)
		fields["removedForms"] = len(d.RemovedForms)
	}
	h.logger.Info("template validated", fields)
	return out, nil
}

// revert writes back the version replaced by the last store of name.
func (h *Handler) revert(ctx context.Context, name string, opts validator.Options) (*Output, error) {
	versions := h.stack(name)
	old, ok := versions.Undo()
	if !ok {
		return nil, apperrors.NewTemplateNotFoundError(name + ": no replaced version to revert to")
	}
	old.Name = name

	storedAs, err := h.store(ctx, old)
	if err != nil {
		return nil, err
	}
	h.logger.Info("template reverted", map[string]interface{}{
		logger.FieldFileName: storedAs,
		"versionsKept":       versions.Len(),
	})
	return &Output{
		Validation:    h.validator.ValidateTemplate(old, opts),
		PreviousFound: true,
		StoredAs:      storedAs,
		Reverted:      true,
		VersionsKept:  versions.Len(),
	}, nil
}

func (h *Handler) stack(name string) *history.Stack {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := templateFileName(name)
	s, ok := h.versions[key]
	if !ok {
		s = history.New(h.config.HistoryCapacity)
		h.versions[key] = s
	}
	return s
}

// compare loads the stored version named previous and diffs it against t.
// A missing stored version yields a nil template and diff.
func (h *Handler) compare(ctx context.Context, previous string, t models.Template) (*models.Template, *diff.Result, error) {
	filePath := path.Join(h.config.TemplateDirectory, previous)
	data, err := h.gateway.ReadFile(ctx, filePath)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, apperrors.NewGatewayFailureError(previous, err)
	}

	old, err := document.DecodeTemplate(strings.TrimSuffix(previous, templateExtension), []byte(data))
	if err != nil {
		return nil, nil, err
	}
	cur, err := normalize(t)
	if err != nil {
		return nil, nil, err
	}

	ids := make(map[string]string, len(t.Forms))
	for _, f := range t.Forms {
		ids[f.EffectiveName()] = f.ID
	}
	alignIDs(&old, ids)
	alignIDs(&cur, ids)

	d := diff.Compare(old, cur)
	return &old, &d, nil
}

func (h *Handler) store(ctx context.Context, t models.Template) (string, error) {
	data, err := document.EncodeTemplate(t)
	if err != nil {
		return "", err
	}
	name := templateFileName(t.Name)
	res, err := h.gateway.WriteFile(ctx, h.config.TemplateDirectory, name, string(data), true)
	if err != nil {
		return "", apperrors.NewGatewayFailureError(name, err)
	}
	return res.SavedAs, nil
}

// normalize puts t through the document codec so both sides of the diff
// carry the same parameter and default shape.
func normalize(t models.Template) (models.Template, error) {
	data, err := document.EncodeTemplate(t)
	if err != nil {
		return models.Template{}, err
	}
	return document.DecodeTemplate(t.Name, data)
}

// alignIDs gives forms of a decoded template the ID of the current form with
// the same effective name, or the name itself when there is none.
func alignIDs(t *models.Template, ids map[string]string) {
	for i := range t.Forms {
		name := t.Forms[i].EffectiveName()
		if id, ok := ids[name]; ok {
			t.Forms[i].ID = id
		} else {
			t.Forms[i].ID = name
		}
	}
}

func templateFileName(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasSuffix(name, templateExtension) {
		return name
	}
	return name + templateExtension
}
