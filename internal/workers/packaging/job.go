// Package packaging holds the plumbing shared by the package job workers.
package packaging

import (
	"context"
	"time"

	apperrors "sqpr-engine/internal/common/errors"
	"sqpr-engine/internal/common/logger"
	"sqpr-engine/internal/common/metrics"
	"sqpr-engine/internal/engine/instantiate"
	"sqpr-engine/internal/engine/validator"
	"sqpr-engine/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// Recorder receives per-job OpenTelemetry measurements.
type Recorder interface {
	RecordJobProcessed(ctx context.Context, taskType, status string)
	RecordJobDuration(ctx context.Context, taskType string, duration time.Duration, status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordJobProcessed(context.Context, string, string) {}
func (nopRecorder) RecordJobDuration(context.Context, string, time.Duration, string) {}

// NopRecorder drops all measurements.
var NopRecorder Recorder = nopRecorder{}

// Job carries one activation through parse, execute and report.
type Job struct {
	TaskType string
	Logger   logger.Logger
	Recorder Recorder
	Errors   *apperrors.ErrorHandler
}

func NewJob(taskType string, log logger.Logger, rec Recorder) *Job {
	if rec == nil {
		rec = NopRecorder
	}
	return &Job{
		TaskType: taskType,
		Logger:   log,
		Recorder: rec,
		Errors:   apperrors.NewErrorHandler(log),
	}
}

// Complete sends output as the job result and records success.
func (j *Job) Complete(ctx context.Context, client worker.JobClient, job entities.Job, output interface{}, started time.Time) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		j.Logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		j.Fail(ctx, client, job, err, started)
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		j.Logger.Error("failed to complete job", map[string]interface{}{
			"error": err,
		})
		return
	}

	elapsed := time.Since(started)
	metrics.WorkerJobsCompleted.WithLabelValues(j.TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(j.TaskType).Observe(elapsed.Seconds())
	j.Recorder.RecordJobProcessed(ctx, j.TaskType, "completed")
	j.Recorder.RecordJobDuration(ctx, j.TaskType, elapsed, "completed")
}

// Fail reports err through the error handler and records the failure.
func (j *Job) Fail(ctx context.Context, client worker.JobClient, job entities.Job, err error, started time.Time) {
	code := apperrors.CodeOf(err)
	metrics.WorkerJobsFailed.WithLabelValues(j.TaskType, string(code)).Inc()
	j.Recorder.RecordJobProcessed(ctx, j.TaskType, "failed")
	j.Recorder.RecordJobDuration(ctx, j.TaskType, time.Since(started), "failed")
	j.Errors.HandleJobError(ctx, client, job, err)
}

// Prepared is a template that passed pre-validation and its instantiation.
type Prepared struct {
	Instantiation *instantiate.Result
	Validation    validator.Result
}

// Prepare validates t, instantiates it for dr and validates the resulting
// package. Error-severity issues at either stage fail with
// VALIDATION_FAILED; the validation collected so far is still returned.
func Prepare(in *instantiate.Instantiator, v *validator.Validator, t models.Template, dr models.DateRange, opts validator.Options) (*Prepared, error) {
	res := v.ValidateTemplate(t, opts)
	if res.HasErrors() {
		return &Prepared{Validation: res}, apperrors.NewValidationFailedError(len(res.Errors), res.FirstError())
	}

	inst, err := in.Instantiate(t, dr)
	if err != nil {
		return &Prepared{Validation: res}, err
	}

	res.Merge(v.ValidatePackage(inst.Package, &dr))
	p := &Prepared{Instantiation: inst, Validation: res}
	if res.HasErrors() {
		return p, apperrors.NewValidationFailedError(len(res.Errors), res.FirstError())
	}
	return p, nil
}

// Flows picks the flow list for one job: the job's own list when supplied,
// otherwise the registry's.
func Flows(fromInput, fromRegistry []string) []string {
	if fromInput != nil {
		return fromInput
	}
	return fromRegistry
}
