package camunda

import (
	"time"

	"sqpr-engine/internal/common/config"
	"sqpr-engine/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobWorkerOpener is the part of zbc.Client used to open job workers.
type JobWorkerOpener interface {
	NewJobWorker() worker.JobWorkerBuilderStep1
}

var _ JobWorkerOpener = (zbc.Client)(nil)

// StartWorker opens a job worker for taskType when it is enabled. It returns
// nil for disabled workers.
func StartWorker(client JobWorkerOpener, taskType string, wcfg config.WorkerConfig, handler worker.JobHandler, log logger.Logger) worker.JobWorker {
	fields := map[string]interface{}{"taskType": taskType}
	if !wcfg.Enabled {
		log.Info("worker disabled", fields)
		return nil
	}

	jw := client.NewJobWorker().
		JobType(taskType).
		Handler(handler).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	fields["maxJobsActive"] = wcfg.MaxJobsActive
	fields["timeout_ms"] = wcfg.Timeout
	log.Info("worker started", fields)
	return jw
}
