// Package execution tracks and runs the per-form saves of a package.
package execution

import (
	"fmt"
	"sync"
	"time"

	apperrors "sqpr-engine/internal/common/errors"
	"sqpr-engine/internal/common/logger"
	"sqpr-engine/internal/engine/validator"
)

// DefaultLogCapacity is the number of log entries a tracker keeps.
const DefaultLogCapacity = 200

// Status of a step. Completed and error are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Step is the save of one form.
type Step struct {
	ID         string            `json:"id"`
	FormID     string            `json:"formId"`
	TCode      string            `json:"tcode"`
	FormName   string            `json:"formName"`
	FileName   string            `json:"fileName"`
	Status     Status            `json:"status"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"startedAt,omitempty"`
	Duration   time.Duration     `json:"duration"`
	Size       int64             `json:"size"`
	Validation *validator.Result `json:"validation,omitempty"`
}

// Tally is the aggregate outcome of a run. Success+Errors equals Total once
// the run has finished.
type Tally struct {
	Success int `json:"success"`
	Errors  int `json:"errors"`
	Total   int `json:"total"`
}

type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
	LogSuccess LogLevel = "success"
)

// LogEntry is one line of the run log shown to users.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   LogLevel  `json:"level"`
	Message string    `json:"message"`
	StepID  string    `json:"stepId,omitempty"`

	// Data carries structured details, such as the error of a failed step
	// or the final tally.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Tracker owns the steps of one run. Steps may finish in any order; the run
// is done when the last one reaches a terminal status.
type Tracker struct {
	mu       sync.Mutex
	steps    []Step
	index    map[string]int
	terminal int
	tally    Tally
	done     chan struct{}

	log     []LogEntry
	logHead int
	logLen  int

	logger logger.Logger
	now    func() time.Time
}

// NewTracker returns an empty tracker keeping at most logCapacity log
// entries. logCapacity <= 0 uses DefaultLogCapacity.
func NewTracker(logCapacity int, log logger.Logger) *Tracker {
	if logCapacity <= 0 {
		logCapacity = DefaultLogCapacity
	}
	t := &Tracker{
		log:    make([]LogEntry, logCapacity),
		logger: log,
		now:    time.Now,
	}
	t.resetLocked()
	return t
}

// Reset drops all steps and log entries. A run in progress is abandoned.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

func (t *Tracker) resetLocked() {
	t.steps = nil
	t.index = make(map[string]int)
	t.terminal = 0
	t.tally = Tally{}
	t.done = make(chan struct{})
	for i := range t.log {
		t.log[i] = LogEntry{}
	}
	t.logHead, t.logLen = 0, 0
}

// Init resets the tracker and registers steps as pending, in order. A run
// with no steps is done immediately. Duplicate step IDs leave the tracker
// untouched.
func (t *Tracker) Init(steps []Step) error {
	index := make(map[string]int, len(steps))
	for i, s := range steps {
		if _, dup := index[s.ID]; dup {
			return fmt.Errorf("duplicate step id %s", s.ID)
		}
		index[s.ID] = i
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetLocked()
	t.index = index
	t.steps = make([]Step, len(steps))
	for i, s := range steps {
		s.Status = StatusPending
		t.steps[i] = s
	}
	t.tally.Total = len(steps)
	t.appendLog(LogInfo, "", fmt.Sprintf("starting %d file(s)", len(steps)), nil)
	if len(steps) == 0 {
		t.finishLocked()
	}
	return nil
}

// Start moves a pending step to executing.
func (t *Tracker) Start(stepID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.transition(stepID, StatusPending, StatusExecuting)
	if err != nil {
		return err
	}
	s.StartedAt = t.now()
	t.appendLog(LogInfo, stepID, fmt.Sprintf("saving %s", s.FileName), nil)
	return nil
}

// Complete records a successful save with its post-save validation.
func (t *Tracker) Complete(stepID string, size int64, duration time.Duration, res *validator.Result) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.transition(stepID, StatusExecuting, StatusCompleted)
	if err != nil {
		return err
	}
	s.Size = size
	s.Duration = duration
	s.Validation = res
	t.tally.Success++
	t.appendLog(LogSuccess, stepID, fmt.Sprintf("saved %s", s.FileName), map[string]interface{}{
		"size":       size,
		"durationMs": duration.Milliseconds(),
	})
	if res != nil {
		for _, w := range res.Warnings {
			t.appendLog(LogWarning, stepID, w.Message, map[string]interface{}{"code": w.Code})
		}
	}
	t.markTerminal()
	return nil
}

// Fail records a failed save. The step is not retried.
func (t *Tracker) Fail(stepID string, duration time.Duration, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.transition(stepID, StatusExecuting, StatusError)
	if err != nil {
		return err
	}
	s.Duration = duration
	if cause != nil {
		s.Error = cause.Error()
	}
	t.tally.Errors++
	t.appendLog(LogError, stepID, fmt.Sprintf("failed to save %s: %s", s.FileName, s.Error), map[string]interface{}{
		"error":      s.Error,
		"durationMs": duration.Milliseconds(),
	})
	t.markTerminal()
	return nil
}

func (t *Tracker) transition(stepID string, from, to Status) (*Step, error) {
	i, ok := t.index[stepID]
	if !ok {
		return nil, apperrors.NewNotFoundError("step " + stepID)
	}
	s := &t.steps[i]
	if s.Status != from {
		return nil, apperrors.NewInvalidTransitionError(stepID, string(s.Status), string(to))
	}
	s.Status = to
	return s, nil
}

func (t *Tracker) markTerminal() {
	t.terminal++
	if t.terminal == len(t.steps) {
		t.finishLocked()
	}
}

func (t *Tracker) finishLocked() {
	level := LogSuccess
	if t.tally.Errors > 0 {
		level = LogWarning
	}
	t.appendLog(level, "", fmt.Sprintf("finished: %d saved, %d failed, %d total",
		t.tally.Success, t.tally.Errors, t.tally.Total), map[string]interface{}{
		"tally": t.tally,
	})
	t.logger.Debug("all steps terminal", map[string]interface{}{
		"success": t.tally.Success,
		"errors":  t.tally.Errors,
		"total":   t.tally.Total,
	})
	close(t.done)
}

func (t *Tracker) appendLog(level LogLevel, stepID, msg string, data map[string]interface{}) {
	entry := LogEntry{Time: t.now(), Level: level, Message: msg, StepID: stepID, Data: data}
	capacity := len(t.log)
	if t.logLen < capacity {
		t.log[(t.logHead+t.logLen)%capacity] = entry
		t.logLen++
		return
	}
	t.log[t.logHead] = entry
	t.logHead = (t.logHead + 1) % capacity
}

// Done is closed when every step is terminal.
func (t *Tracker) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Finished reports whether every step is terminal.
func (t *Tracker) Finished() bool {
	select {
	case <-t.Done():
		return true
	default:
		return false
	}
}

func (t *Tracker) Tally() Tally {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tally
}

// Steps returns a copy of the steps in registration order.
func (t *Tracker) Steps() []Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}

// Step returns a copy of one step.
func (t *Tracker) Step(stepID string) (Step, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[stepID]
	if !ok {
		return Step{}, false
	}
	return t.steps[i], true
}

// Log returns the retained log entries, oldest first.
func (t *Tracker) Log() []LogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]LogEntry, 0, t.logLen)
	for i := 0; i < t.logLen; i++ {
		out = append(out, t.log[(t.logHead+i)%len(t.log)])
	}
	return out
}
