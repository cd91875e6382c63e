// Package notify publishes a summary of every finished save run over SNS
// and SES.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "sqpr-engine/internal/common/errors"
	"sqpr-engine/internal/common/logger"
	"sqpr-engine/internal/engine/execution"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

const (
	ChannelSNS = "sns"
	ChannelSES = "ses"
)

type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Config selects the channels. An empty TopicARN disables SNS; an empty
// FromEmail or recipient list disables SES.
type Config struct {
	TopicARN   string
	FromEmail  string
	Recipients []string
}

type Notifier struct {
	config    Config
	sesClient SESService
	snsClient SNSService
	logger    logger.Logger
}

func NewNotifier(cfg Config, sesClient SESService, snsClient SNSService, log logger.Logger) *Notifier {
	return &Notifier{
		config:    cfg,
		sesClient: sesClient,
		snsClient: snsClient,
		logger:    log,
	}
}

// Report implements execution.Reporter. Both channels are attempted; the
// first failure is returned.
func (n *Notifier) Report(ctx context.Context, report *execution.Report) error {
	subject := Subject(report)
	body := Summary(report)

	var firstErr error
	if n.config.TopicARN != "" && n.snsClient != nil {
		if err := n.publish(ctx, subject, body); err != nil {
			firstErr = apperrors.NewNotificationError(ChannelSNS, err)
			n.logger.Error("sns publish failed", map[string]interface{}{
				logger.FieldRunID: report.RunID,
				"error":           err,
			})
		}
	}
	if n.config.FromEmail != "" && len(n.config.Recipients) > 0 && n.sesClient != nil {
		if err := n.send(ctx, subject, body); err != nil {
			n.logger.Error("ses send failed", map[string]interface{}{
				logger.FieldRunID: report.RunID,
				"error":           err,
			})
			if firstErr == nil {
				firstErr = apperrors.NewNotificationError(ChannelSES, err)
			}
		}
	}
	return firstErr
}

func (n *Notifier) publish(ctx context.Context, subject, body string) error {
	_, err := n.snsClient.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.config.TopicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(body),
	})
	return err
}

func (n *Notifier) send(ctx context.Context, subject, body string) error {
	_, err := n.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: n.config.Recipients,
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.config.FromEmail),
	})
	return err
}

// Subject is the one-line headline of a run.
func Subject(report *execution.Report) string {
	return fmt.Sprintf("SQPR package %q: %s (%d/%d saved)",
		report.PackageName, report.Outcome(), report.Tally.Success, report.Tally.Total)
}

// Summary renders the run header followed by a per-file table.
func Summary(report *execution.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Package: %s\n", report.PackageName)
	fmt.Fprintf(&b, "Run:     %s\n", report.RunID)
	fmt.Fprintf(&b, "Folder:  %s\n", report.Directory)
	fmt.Fprintf(&b, "Result:  %d saved, %d failed, %d total in %s\n\n",
		report.Tally.Success, report.Tally.Errors, report.Tally.Total,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))

	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"File", "TCode", "Status", "Size", "Duration", "Error"})
	var total uint64
	for _, s := range report.Steps {
		size := "-"
		if s.Size > 0 {
			size = humanize.Bytes(uint64(s.Size))
			total += uint64(s.Size)
		}
		tw.AppendRow(table.Row{s.FileName, s.TCode, s.Status, size, s.Duration.Round(time.Millisecond), s.Error})
	}
	tw.AppendFooter(table.Row{"", "", "", humanize.Bytes(total), "", ""})
	b.WriteString(tw.Render())
	b.WriteString("\n")
	return b.String()
}
