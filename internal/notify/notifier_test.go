package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "sqpr-engine/internal/common/errors"
	"sqpr-engine/internal/common/logger"
	"sqpr-engine/internal/engine/execution"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() Config {
	return Config{
		TopicARN:   "arn:aws:sns:eu-central-1:123456789012:sqpr-runs",
		FromEmail:  "sqpr@example.com",
		Recipients: []string{"ops@example.com"},
	}
}

func createTestReport() *execution.Report {
	start := time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC)
	return &execution.Report{
		RunID:       "run-42",
		PackageName: "Month end 01.01.2025",
		Directory:   "/out",
		StartedAt:   start,
		FinishedAt:  start.Add(1500 * time.Millisecond),
		Tally:       execution.Tally{Success: 1, Errors: 1, Total: 2},
		Steps: []execution.Step{
			{FileName: "0A1B2C3D-KSB1@startDate=01.01.2025.sqpr", TCode: "KSB1", Status: execution.StatusCompleted, Size: 2048},
			{FileName: "0A1B2C3E-KOB1@startDate=01.01.2025.sqpr", TCode: "KOB1", Status: execution.StatusError, Error: "GATEWAY_FAILURE"},
		},
	}
}

// ==========================
// Tests
// ==========================

func TestSummary(t *testing.T) {
	out := Summary(createTestReport())

	assert.Contains(t, out, "Month end 01.01.2025")
	assert.Contains(t, out, "1 saved, 1 failed, 2 total in 1.5s")
	assert.Contains(t, out, "0A1B2C3D-KSB1@startDate=01.01.2025.sqpr")
	assert.Contains(t, out, "2.0 kB")
	assert.Contains(t, out, "GATEWAY_FAILURE")
}

func TestSubject(t *testing.T) {
	assert.Equal(t, `SQPR package "Month end 01.01.2025": partial (1/2 saved)`, Subject(createTestReport()))
}

func TestNotifier_Report(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		sesErr      error
		snsErr      error
		wantSES     int
		wantSNS     int
		wantChannel string
	}{
		{name: "both channels", config: createTestConfig(), wantSES: 1, wantSNS: 1},
		{name: "sns only", config: Config{TopicARN: "arn:topic"}, wantSNS: 1},
		{name: "ses without recipients is skipped", config: Config{FromEmail: "a@b.c"}},
		{name: "sns failure still sends email", config: createTestConfig(), snsErr: errors.New("throttled"), wantSES: 1, wantSNS: 1, wantChannel: ChannelSNS},
		{name: "ses failure", config: createTestConfig(), sesErr: errors.New("rejected"), wantSES: 1, wantSNS: 1, wantChannel: ChannelSES},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sesCalls, snsCalls int
			var sent *ses.SendEmailInput
			var published *sns.PublishInput
			mockSES := &MockSESService{
				SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
					sesCalls++
					sent = params
					return &ses.SendEmailOutput{}, tt.sesErr
				},
			}
			mockSNS := &MockSNSService{
				PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
					snsCalls++
					published = params
					return &sns.PublishOutput{}, tt.snsErr
				},
			}

			n := NewNotifier(tt.config, mockSES, mockSNS, logger.NewTestLogger(t))
			err := n.Report(context.Background(), createTestReport())

			assert.Equal(t, tt.wantSES, sesCalls)
			assert.Equal(t, tt.wantSNS, snsCalls)
			if tt.wantChannel != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, &apperrors.StandardError{Code: apperrors.ErrCodeNotification}))
				assert.Contains(t, err.Error(), tt.wantChannel)
				return
			}
			require.NoError(t, err)
			if published != nil {
				assert.Equal(t, tt.config.TopicARN, *published.TopicArn)
				assert.Contains(t, *published.Message, "run-42")
			}
			if sent != nil {
				assert.Equal(t, tt.config.Recipients, sent.Destination.ToAddresses)
				assert.Equal(t, tt.config.FromEmail, *sent.Source)
			}
		})
	}
}
