package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	apperrors "sqpr-engine/internal/common/errors"
	"sqpr-engine/internal/common/logger"
	"sqpr-engine/internal/engine/document"
	"sqpr-engine/internal/engine/naming"
	"sqpr-engine/internal/engine/validator"
	"sqpr-engine/internal/gateway"
	"sqpr-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// ==========================
// Test Helper Functions
// ==========================

type sequentialIDs struct {
	mu sync.Mutex
	n  int
}

func (s *sequentialIDs) NewShortID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%08X", s.n), nil
}

// flakyGateway fails writes whose file name contains failOn.
type flakyGateway struct {
	gateway.Gateway
	failOn string
}

func (g *flakyGateway) WriteFile(ctx context.Context, directory, fileName, content string, overwrite bool) (gateway.WriteResult, error) {
	if g.failOn != "" && strings.Contains(fileName, g.failOn) {
		return gateway.WriteResult{}, apperrors.NewTransportError("test", errors.New("connection reset"))
	}
	return g.Gateway.WriteFile(ctx, directory, fileName, content, overwrite)
}

type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) Report(ctx context.Context, report *Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func createPackage() models.Package {
	form := func(id, tcode string) models.Form {
		return models.Form{
			ID:         id,
			TCode:      tcode,
			CustomName: tcode,
			JSONData:   models.FlowDefinition{"$meta": map[string]interface{}{"tcode": tcode}},
			Parameters: map[string]models.Value{"Layout": models.StringValue("/ALL")},
		}
	}
	return models.Package{
		ID:    "pkg-1",
		Name:  "Close 2025-01-01",
		Forms: []models.Form{form("f1", "KSB1"), form("f2", "KOB1"), form("f3", "ZFIR_STATSLOAD")},
	}
}

func createTestRunner(t *testing.T, gw gateway.Gateway, opts ...Option) *Runner {
	log := logger.NewTestLogger(t)
	return NewRunner(gw, naming.New(&sequentialIDs{}), validator.New(log), log, opts...)
}

var testRange = models.DateRange{StartDate: "2025-01-01", PeriodType: models.PeriodMonth}

// ==========================
// Save
// ==========================

func TestRunner_SaveAll(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	reporter := new(MockReporter)
	var published *Report
	reporter.On("Report", mock.Anything, mock.AnythingOfType("*execution.Report")).
		Run(func(args mock.Arguments) { published = args.Get(1).(*Report) }).
		Return(nil).Once()
	runner := createTestRunner(t, gw, WithReporters(reporter))

	report, err := runner.Save(context.Background(), SaveRequest{
		Package:   createPackage(),
		DateRange: testRange,
		Directory: "/packages",
	})
	require.NoError(t, err)

	assert.Equal(t, Tally{Success: 3, Errors: 0, Total: 3}, report.Tally)
	assert.Equal(t, "success", report.Outcome())
	assert.Len(t, report.SavedFiles, 3)
	assert.Empty(t, report.FailedFiles)
	assert.NotEmpty(t, report.RunID)

	require.Len(t, report.Steps, 3)
	assert.Equal(t, "f1", report.Steps[0].FormID)
	assert.Equal(t, "f3", report.Steps[2].FormID)
	for _, s := range report.Steps {
		assert.Equal(t, StatusCompleted, s.Status)
		assert.True(t, naming.FilePattern.MatchString(s.FileName), s.FileName)
		require.NotNil(t, s.Validation)
		assert.True(t, s.Validation.IsValid)
		assert.Positive(t, s.Size)
	}
	assert.Contains(t, report.Steps[2].FileName, "-ZFIR_STATSLOAD@startDate=202501.sqpr")

	files, err := gw.ListFiles(context.Background(), "/packages")
	require.NoError(t, err)
	assert.Len(t, files, 3)

	content, err := gw.ReadFile(context.Background(), "/packages/"+report.Steps[0].FileName)
	require.NoError(t, err)
	doc, err := document.DecodeForm([]byte(content))
	require.NoError(t, err)
	assert.Equal(t, "KSB1", doc.TCode)

	reporter.AssertExpectations(t)
	assert.Same(t, report, published)
}

func TestRunner_IsolatesGatewayFailures(t *testing.T) {
	gw := &flakyGateway{Gateway: gateway.NewMemoryGateway(), failOn: "KOB1"}
	runner := createTestRunner(t, gw)

	report, err := runner.Save(context.Background(), SaveRequest{Package: createPackage(), DateRange: testRange, Directory: "/out"})
	require.NoError(t, err)

	assert.Equal(t, Tally{Success: 2, Errors: 1, Total: 3}, report.Tally)
	assert.Equal(t, "partial", report.Outcome())
	require.Len(t, report.FailedFiles, 1)
	assert.Contains(t, report.FailedFiles[0], "KOB1")

	failed := report.Steps[1]
	assert.Equal(t, StatusError, failed.Status)
	assert.Contains(t, failed.Error, "GATEWAY_FAILURE")
	assert.Nil(t, failed.Validation)
}

func TestRunner_AlreadyExistsIsTerminal(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	_, err := gw.WriteFile(context.Background(), "/out", "00000001-KSB1@startDate=01.01.2025.sqpr", "old", false)
	require.NoError(t, err)

	report, err := createTestRunner(t, gw).Save(context.Background(), SaveRequest{Package: createPackage(), DateRange: testRange, Directory: "/out"})
	require.NoError(t, err)

	assert.Equal(t, Tally{Success: 2, Errors: 1, Total: 3}, report.Tally)
	assert.Contains(t, report.Steps[0].Error, "ALREADY_EXISTS")

	content, err := gw.ReadFile(context.Background(), "/out/00000001-KSB1@startDate=01.01.2025.sqpr")
	require.NoError(t, err)
	assert.Equal(t, "old", content)
}

func TestRunner_AllFail(t *testing.T) {
	gw := &flakyGateway{Gateway: gateway.NewMemoryGateway(), failOn: "@"}
	reporter := new(MockReporter)
	reporter.On("Report", mock.Anything, mock.MatchedBy(func(r *Report) bool {
		return r.Outcome() == "failed"
	})).Return(errors.New("index down")).Once()

	report, err := createTestRunner(t, gw, WithReporters(reporter)).Save(context.Background(),
		SaveRequest{Package: createPackage(), DateRange: testRange, Directory: "/out"})
	require.NoError(t, err)

	assert.Equal(t, "failed", report.Outcome())
	assert.Equal(t, 3, report.Tally.Errors)
	reporter.AssertExpectations(t)
}

func TestRunner_NamingFailureAbortsBeforeWriting(t *testing.T) {
	gw := gateway.NewMemoryGateway()

	_, err := createTestRunner(t, gw).Save(context.Background(), SaveRequest{
		Package:   createPackage(),
		DateRange: models.DateRange{StartDate: "not a date"},
		Directory: "/out",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidDate))

	files, err := gw.ListFiles(context.Background(), "/out")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRunner_EmptyPackage(t *testing.T) {
	report, err := createTestRunner(t, gateway.NewMemoryGateway()).Save(context.Background(),
		SaveRequest{Package: models.Package{ID: "p"}, DateRange: testRange, Directory: "/out"})
	require.NoError(t, err)
	assert.Equal(t, Tally{}, report.Tally)
	assert.Equal(t, "success", report.Outcome())
}

func TestRunner_ExpectedSizeWarning(t *testing.T) {
	pkg := createPackage()
	report, err := createTestRunner(t, gateway.NewMemoryGateway()).Save(context.Background(), SaveRequest{
		Package:       pkg,
		DateRange:     testRange,
		Directory:     "/out",
		ExpectedSizes: map[string]int64{"f1": 1 << 20},
	})
	require.NoError(t, err)

	require.NotNil(t, report.Steps[0].Validation)
	require.Len(t, report.Steps[0].Validation.Warnings, 1)
	assert.Equal(t, validator.CodeSizeDeviation, report.Steps[0].Validation.Warnings[0].Code)
	assert.Equal(t, StatusCompleted, report.Steps[0].Status)

	var warned bool
	for _, e := range report.Log {
		if e.Level == LogWarning && e.StepID == report.Steps[0].ID {
			warned = true
		}
	}
	assert.True(t, warned)
}

// ==========================
// Tracing
// ==========================

func TestRunner_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	gw := &flakyGateway{Gateway: gateway.NewMemoryGateway(), failOn: "KOB1"}
	_, err := createTestRunner(t, gw, WithTracer(tp)).Save(context.Background(),
		SaveRequest{Package: createPackage(), DateRange: testRange, Directory: "/out"})
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 4)

	var root sdktrace.ReadOnlySpan
	children := 0
	errored := 0
	for _, s := range spans {
		if s.Name() == "package.save" {
			root = s
			continue
		}
		children++
		if len(s.Events()) > 0 {
			errored++
		}
	}
	require.NotNil(t, root)
	assert.Equal(t, 3, children)
	assert.Equal(t, 1, errored)
	for _, s := range spans {
		if s.Name() == "package.save_file" {
			assert.Equal(t, root.SpanContext().SpanID(), s.Parent().SpanID())
		}
	}
}
