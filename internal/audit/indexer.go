// Package audit records finished package save runs in Elasticsearch.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "sqpr-engine/internal/common/errors"
	"sqpr-engine/internal/common/logger"
	"sqpr-engine/internal/engine/execution"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// DefaultIndex receives run documents when none is configured.
const DefaultIndex = "sqpr-executions"

// StepDocument is the indexed form of one execution step.
type StepDocument struct {
	FormID     string `json:"formId"`
	TCode      string `json:"tcode"`
	FileName   string `json:"fileName"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
	Size       int64  `json:"size"`
	Warnings   int    `json:"warnings"`
}

// RunDocument is the indexed form of a report. The run log is left out.
type RunDocument struct {
	RunID       string         `json:"runId"`
	PackageID   string         `json:"packageId"`
	PackageName string         `json:"packageName"`
	Directory   string         `json:"directory"`
	Outcome     string         `json:"outcome"`
	StartedAt   time.Time      `json:"startedAt"`
	FinishedAt  time.Time      `json:"finishedAt"`
	Success     int            `json:"success"`
	Errors      int            `json:"errors"`
	Total       int            `json:"total"`
	SavedFiles  []string       `json:"savedFiles"`
	FailedFiles []string       `json:"failedFiles"`
	Steps       []StepDocument `json:"steps"`
}

// NewRunDocument flattens report for indexing.
func NewRunDocument(report *execution.Report) RunDocument {
	doc := RunDocument{
		RunID:       report.RunID,
		PackageID:   report.PackageID,
		PackageName: report.PackageName,
		Directory:   report.Directory,
		Outcome:     report.Outcome(),
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
		Success:     report.Tally.Success,
		Errors:      report.Tally.Errors,
		Total:       report.Tally.Total,
		SavedFiles:  report.SavedFiles,
		FailedFiles: report.FailedFiles,
		Steps:       make([]StepDocument, 0, len(report.Steps)),
	}
	for _, s := range report.Steps {
		sd := StepDocument{
			FormID:     s.FormID,
			TCode:      s.TCode,
			FileName:   s.FileName,
			Status:     string(s.Status),
			Error:      s.Error,
			DurationMs: s.Duration.Milliseconds(),
			Size:       s.Size,
		}
		if s.Validation != nil {
			sd.Warnings = len(s.Validation.Warnings)
		}
		doc.Steps = append(doc.Steps, sd)
	}
	return doc
}

// Indexer writes one document per run, keyed by run ID.
type Indexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewIndexer(client *elasticsearch.Client, index string, log logger.Logger) *Indexer {
	if index == "" {
		index = DefaultIndex
	}
	return &Indexer{client: client, index: index, logger: log}
}

// Report implements execution.Reporter.
func (i *Indexer) Report(ctx context.Context, report *execution.Report) error {
	body, err := json.Marshal(NewRunDocument(report))
	if err != nil {
		return apperrors.NewAuditError(fmt.Errorf("encode run document: %w", err))
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: report.RunID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return apperrors.NewAuditError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return apperrors.NewAuditError(fmt.Errorf("index run %s: %s", report.RunID, res.Status()))
	}

	i.logger.Debug("run indexed", map[string]interface{}{
		logger.FieldRunID: report.RunID,
		"index":           i.index,
	})
	return nil
}
