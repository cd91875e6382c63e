package execution

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	apperrors "sqpr-engine/internal/common/errors"
	"sqpr-engine/internal/common/logger"
	"sqpr-engine/internal/engine/validator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createSteps(n int) []Step {
	steps := make([]Step, n)
	for i := range steps {
		steps[i] = Step{
			ID:       fmt.Sprintf("s%d", i),
			FormID:   fmt.Sprintf("f%d", i),
			FileName: fmt.Sprintf("%08X-KSB1@startDate=01.01.2025.sqpr", i),
		}
	}
	return steps
}

func TestTracker_Lifecycle(t *testing.T) {
	tr := NewTracker(0, logger.NewTestLogger(t))
	require.NoError(t, tr.Init(createSteps(2)))

	assert.False(t, tr.Finished())
	for _, s := range tr.Steps() {
		assert.Equal(t, StatusPending, s.Status)
	}

	require.NoError(t, tr.Start("s0"))
	require.NoError(t, tr.Start("s1"))
	res := &validator.Result{IsValid: true}
	require.NoError(t, tr.Complete("s1", 42, time.Millisecond, res))
	assert.False(t, tr.Finished())
	require.NoError(t, tr.Fail("s0", time.Millisecond, errors.New("disk full")))

	assert.True(t, tr.Finished())
	assert.Equal(t, Tally{Success: 1, Errors: 1, Total: 2}, tr.Tally())

	s0, ok := tr.Step("s0")
	require.True(t, ok)
	assert.Equal(t, StatusError, s0.Status)
	assert.Equal(t, "disk full", s0.Error)

	s1, _ := tr.Step("s1")
	assert.Equal(t, StatusCompleted, s1.Status)
	assert.Equal(t, int64(42), s1.Size)
	assert.Same(t, res, s1.Validation)

	log := tr.Log()
	require.NotEmpty(t, log)
	assert.Contains(t, log[len(log)-1].Message, "1 saved, 1 failed, 2 total")
}

func TestTracker_InvalidTransitions(t *testing.T) {
	tr := NewTracker(0, logger.NewTestLogger(t))
	require.NoError(t, tr.Init(createSteps(1)))

	err := tr.Complete("s0", 1, 0, nil)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))

	err = tr.Fail("s0", 0, nil)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))

	require.NoError(t, tr.Start("s0"))
	err = tr.Start("s0")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))

	require.NoError(t, tr.Complete("s0", 1, 0, nil))
	err = tr.Fail("s0", 0, errors.New("late"))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
	assert.Equal(t, Tally{Success: 1, Total: 1}, tr.Tally())

	err = tr.Start("missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestTracker_DuplicateStepIDs(t *testing.T) {
	tr := NewTracker(0, logger.NewTestLogger(t))
	steps := createSteps(3)
	steps[2].ID = steps[0].ID
	assert.Error(t, tr.Init(steps))
	assert.Empty(t, tr.Steps())
	assert.Equal(t, Tally{}, tr.Tally())

	require.NoError(t, tr.Init(createSteps(1)))
	assert.Error(t, tr.Init(steps))
	assert.Len(t, tr.Steps(), 1)
	assert.Equal(t, Tally{Total: 1}, tr.Tally())
	_, ok := tr.Step("s2")
	assert.False(t, ok)
}

func TestTracker_LogData(t *testing.T) {
	tr := NewTracker(0, logger.NewTestLogger(t))
	require.NoError(t, tr.Init(createSteps(2)))

	require.NoError(t, tr.Start("s0"))
	require.NoError(t, tr.Start("s1"))
	require.NoError(t, tr.Complete("s0", 42, time.Millisecond, nil))
	require.NoError(t, tr.Fail("s1", time.Millisecond, errors.New("disk full")))

	var failed, finished *LogEntry
	log := tr.Log()
	for i := range log {
		switch {
		case log[i].Level == LogError:
			failed = &log[i]
		case log[i].StepID == "" && log[i].Data != nil:
			finished = &log[i]
		}
	}

	require.NotNil(t, failed)
	assert.Equal(t, "s1", failed.StepID)
	assert.Equal(t, "disk full", failed.Data["error"])

	require.NotNil(t, finished)
	assert.Equal(t, Tally{Success: 1, Errors: 1, Total: 2}, finished.Data["tally"])
	assert.Nil(t, log[0].Data)
}

func TestTracker_NoStepsIsDone(t *testing.T) {
	tr := NewTracker(0, logger.NewTestLogger(t))
	require.NoError(t, tr.Init(nil))

	select {
	case <-tr.Done():
	default:
		t.Fatal("empty run should be done")
	}
	assert.Equal(t, Tally{}, tr.Tally())
}

func TestTracker_AggregatesAnyInterleaving(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			n := 1 + rng.Intn(30)
			outcomes := make([]bool, n)
			wantSuccess := 0
			for i := range outcomes {
				outcomes[i] = rng.Intn(3) > 0
				if outcomes[i] {
					wantSuccess++
				}
			}

			tr := NewTracker(5, logger.NewNoOpLogger())
			require.NoError(t, tr.Init(createSteps(n)))

			var wg sync.WaitGroup
			for _, i := range rng.Perm(n) {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					id := fmt.Sprintf("s%d", i)
					assert.NoError(t, tr.Start(id))
					if outcomes[i] {
						assert.NoError(t, tr.Complete(id, 1, 0, nil))
					} else {
						assert.NoError(t, tr.Fail(id, 0, errors.New("boom")))
					}
				}(i)
			}
			wg.Wait()

			select {
			case <-tr.Done():
			case <-time.After(time.Second):
				t.Fatal("tracker never finished")
			}
			tally := tr.Tally()
			assert.Equal(t, n, tally.Total)
			assert.Equal(t, tally.Total, tally.Success+tally.Errors)
			assert.Equal(t, wantSuccess, tally.Success)
		})
	}
}

func TestTracker_LogCapacity(t *testing.T) {
	tr := NewTracker(3, logger.NewTestLogger(t))
	require.NoError(t, tr.Init(createSteps(3)))
	for _, id := range []string{"s0", "s1", "s2"} {
		require.NoError(t, tr.Start(id))
		require.NoError(t, tr.Complete(id, 1, 0, nil))
	}

	log := tr.Log()
	require.Len(t, log, 3)
	assert.Contains(t, log[2].Message, "finished")
	assert.Equal(t, LogSuccess, log[2].Level)
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker(0, logger.NewTestLogger(t))
	require.NoError(t, tr.Init(createSteps(1)))
	require.NoError(t, tr.Start("s0"))

	tr.Reset()

	assert.Empty(t, tr.Steps())
	assert.Empty(t, tr.Log())
	assert.Equal(t, Tally{}, tr.Tally())
	assert.False(t, tr.Finished())
}
