package execution

import (
	"context"
	"fmt"
	"time"

	apperrors "sqpr-engine/internal/common/errors"
	"sqpr-engine/internal/common/logger"
	"sqpr-engine/internal/common/metrics"
	"sqpr-engine/internal/engine/document"
	"sqpr-engine/internal/engine/naming"
	"sqpr-engine/internal/engine/validator"
	"sqpr-engine/internal/gateway"
	"sqpr-engine/internal/models"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "sqpr-engine/execution"

// SaveRequest asks for every form of Package to be written to Directory.
type SaveRequest struct {
	Package   models.Package
	DateRange models.DateRange
	Directory string
	// ExpectedSizes optionally maps form ID to an expected file size for the
	// post-save size check.
	ExpectedSizes map[string]int64
}

// Report is the outcome of one save run.
type Report struct {
	RunID       string     `json:"runId"`
	PackageID   string     `json:"packageId"`
	PackageName string     `json:"packageName"`
	Directory   string     `json:"directory"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  time.Time  `json:"finishedAt"`
	Tally       Tally      `json:"tally"`
	Steps       []Step     `json:"steps"`
	Log         []LogEntry `json:"log"`
	SavedFiles  []string   `json:"savedFiles"`
	FailedFiles []string   `json:"failedFiles"`
}

// Outcome classifies the run for metrics and notifications.
func (r *Report) Outcome() string {
	switch {
	case r.Tally.Errors == 0:
		return "success"
	case r.Tally.Success == 0:
		return "failed"
	default:
		return "partial"
	}
}

// Reporter receives every finished report. Errors are logged by the runner
// and never change the report.
type Reporter interface {
	Report(ctx context.Context, report *Report) error
}

// Runner saves packages through a gateway.
type Runner struct {
	gateway     gateway.Gateway
	namer       *naming.Namer
	validator   *validator.Validator
	logger      logger.Logger
	tracer      trace.Tracer
	reporters   []Reporter
	logCapacity int
	newID       func() string
	now         func() time.Time
}

type Option func(*Runner)

// WithTracer replaces the global otel tracer.
func WithTracer(tp trace.TracerProvider) Option {
	return func(r *Runner) { r.tracer = tp.Tracer(tracerName) }
}

func WithReporters(reporters ...Reporter) Option {
	return func(r *Runner) { r.reporters = append(r.reporters, reporters...) }
}

func WithLogCapacity(n int) Option {
	return func(r *Runner) { r.logCapacity = n }
}

func NewRunner(gw gateway.Gateway, namer *naming.Namer, v *validator.Validator, log logger.Logger, opts ...Option) *Runner {
	r := &Runner{
		gateway:     gw,
		namer:       namer,
		validator:   v,
		logger:      log,
		tracer:      otel.Tracer(tracerName),
		logCapacity: DefaultLogCapacity,
		newID:       uuid.NewString,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type plannedStep struct {
	step    Step
	content string
}

// Save names and encodes every form, then writes all of them concurrently.
// A naming or encoding failure aborts before anything is written. Gateway
// failures are recorded on their step and never retried; the returned error
// is nil whenever the run itself took place.
func (r *Runner) Save(ctx context.Context, req SaveRequest) (*Report, error) {
	runID := r.newID()
	log := r.logger.WithFields(map[string]interface{}{
		logger.FieldRunID:     runID,
		logger.FieldDirectory: req.Directory,
	})

	plan, err := r.plan(req)
	if err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "package.save", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("package.id", req.Package.ID),
		attribute.Int("package.forms", len(plan)),
	))
	defer span.End()

	tracker := NewTracker(r.logCapacity, log)
	steps := make([]Step, len(plan))
	for i, p := range plan {
		steps[i] = p.step
	}
	if err := tracker.Init(steps); err != nil {
		return nil, err
	}

	started := r.now()
	var g errgroup.Group
	for _, p := range plan {
		p := p
		g.Go(func() error {
			r.saveStep(ctx, tracker, log, req, p)
			return nil
		})
	}
	_ = g.Wait()
	if !tracker.Finished() {
		log.Error("run ended with non-terminal steps", map[string]interface{}{"tally": tracker.Tally()})
	}

	report := &Report{
		RunID:       runID,
		PackageID:   req.Package.ID,
		PackageName: req.Package.Name,
		Directory:   req.Directory,
		StartedAt:   started,
		FinishedAt:  r.now(),
		Tally:       tracker.Tally(),
		Steps:       tracker.Steps(),
		Log:         tracker.Log(),
		SavedFiles:  []string{},
		FailedFiles: []string{},
	}
	for _, s := range report.Steps {
		if s.Status == StatusCompleted {
			report.SavedFiles = append(report.SavedFiles, s.FileName)
		} else {
			report.FailedFiles = append(report.FailedFiles, s.FileName)
		}
	}

	outcome := report.Outcome()
	metrics.ExecutionRuns.WithLabelValues(outcome).Inc()
	span.SetAttributes(
		attribute.Int("tally.success", report.Tally.Success),
		attribute.Int("tally.errors", report.Tally.Errors),
	)
	if report.Tally.Errors > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d files failed", report.Tally.Errors, report.Tally.Total))
	}

	log.Info("package save finished", map[string]interface{}{
		"outcome": outcome,
		"success": report.Tally.Success,
		"errors":  report.Tally.Errors,
		"total":   report.Tally.Total,
		"elapsed": report.FinishedAt.Sub(started).String(),
	})

	r.publish(ctx, log, report)
	return report, nil
}

func (r *Runner) plan(req SaveRequest) ([]plannedStep, error) {
	plan := make([]plannedStep, 0, len(req.Package.Forms))
	for _, f := range req.Package.Forms {
		name, err := r.namer.NameForForm(f, req.DateRange)
		if err != nil {
			return nil, fmt.Errorf("name form %s: %w", f.ID, err)
		}
		content, err := document.EncodeForm(f)
		if err != nil {
			return nil, fmt.Errorf("encode form %s: %w", f.ID, err)
		}
		plan = append(plan, plannedStep{
			step: Step{
				ID:       r.newID(),
				FormID:   f.ID,
				TCode:    f.TCode,
				FormName: f.EffectiveName(),
				FileName: name,
			},
			content: string(content),
		})
	}
	return plan, nil
}

func (r *Runner) saveStep(ctx context.Context, tracker *Tracker, log logger.Logger, req SaveRequest, p plannedStep) {
	s := p.step
	ctx, span := r.tracer.Start(ctx, "package.save_file", trace.WithAttributes(
		attribute.String("step.id", s.ID),
		attribute.String("form.id", s.FormID),
		attribute.String("file.name", s.FileName),
	))
	defer span.End()

	if err := tracker.Start(s.ID); err != nil {
		log.Error("step could not start", map[string]interface{}{"stepId": s.ID, "error": err})
		return
	}

	begin := r.now()
	res, err := r.gateway.WriteFile(ctx, req.Directory, s.FileName, p.content, false)
	elapsed := r.now().Sub(begin)
	metrics.PackageFileSaveDuration.Observe(elapsed.Seconds())

	if err != nil {
		failure := apperrors.NewGatewayFailureError(s.FileName, err)
		span.RecordError(failure)
		span.SetStatus(codes.Error, failure.Error())
		metrics.PackageFiles.WithLabelValues(string(StatusError)).Inc()
		if terr := tracker.Fail(s.ID, elapsed, failure); terr != nil {
			log.Error("step could not fail", map[string]interface{}{"stepId": s.ID, "error": terr})
		}
		log.Warn("package file failed", map[string]interface{}{
			logger.FieldFormID:   s.FormID,
			logger.FieldFileName: s.FileName,
			"error":              err,
		})
		return
	}

	size := int64(len(p.content))
	check := r.validator.ValidateGeneratedFile(validator.FileCheck{
		FileName:     res.SavedAs,
		Size:         size,
		ExpectedSize: req.ExpectedSizes[s.FormID],
		FormID:       s.FormID,
		TCode:        s.TCode,
	})
	metrics.PackageFiles.WithLabelValues(string(StatusCompleted)).Inc()
	if terr := tracker.Complete(s.ID, size, elapsed, &check); terr != nil {
		log.Error("step could not complete", map[string]interface{}{"stepId": s.ID, "error": terr})
	}
	log.Debug("package file saved", map[string]interface{}{
		logger.FieldFormID:   s.FormID,
		logger.FieldFileName: res.SavedAs,
		"size":               humanize.Bytes(uint64(size)),
		"warnings":           len(check.Warnings),
	})
}

func (r *Runner) publish(ctx context.Context, log logger.Logger, report *Report) {
	for _, rep := range r.reporters {
		if err := rep.Report(ctx, report); err != nil {
			log.Warn("report publication failed", map[string]interface{}{
				"reporter": fmt.Sprintf("%T", rep),
				"error":    err,
			})
		}
	}
}
