package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sqpr-engine/internal/audit"
	awsclients "sqpr-engine/internal/common/aws"
	"sqpr-engine/internal/common/camunda"
	"sqpr-engine/internal/common/config"
	"sqpr-engine/internal/common/database"
	"sqpr-engine/internal/common/logger"
	"sqpr-engine/internal/engine/execution"
	"sqpr-engine/internal/engine/identifier"
	"sqpr-engine/internal/engine/instantiate"
	"sqpr-engine/internal/engine/naming"
	"sqpr-engine/internal/engine/validator"
	"sqpr-engine/internal/gateway"
	"sqpr-engine/internal/notify"
	"sqpr-engine/internal/workers/packaging"
	instantiatepackage "sqpr-engine/internal/workers/packaging/instantiate-package"
	savepackage "sqpr-engine/internal/workers/packaging/save-package"
	validatetemplate "sqpr-engine/internal/workers/packaging/validate-template"
	"sqpr-engine/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// retryWithBackoff runs operation until it succeeds or maxRetries attempts
// have failed, doubling the delay after each failure.
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(operationName+" failed, retrying", map[string]interface{}{
				"error":       err,
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// backends holds the connections the configuration asks for. Unused ones
// stay nil.
type backends struct {
	postgres      *database.PostgresClient
	redis         *database.RedisClient
	elasticsearch *database.ElasticsearchClient
}

func connectBackends(ctx context.Context, cfg *config.Config, log logger.Logger) (*backends, error) {
	b := &backends{}

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		err := retryWithBackoff(func() error {
			var err error
			b.postgres, err = database.NewPostgres(ctx, cfg.Database.Postgres)
			return err
		}, 5, 2*time.Second, log, "postgres connection")
		if err != nil {
			return nil, err
		}
	case config.BackendRedis:
		err := retryWithBackoff(func() error {
			var err error
			b.redis, err = database.NewRedis(ctx, cfg.Database.Redis)
			return err
		}, 5, 2*time.Second, log, "redis connection")
		if err != nil {
			return nil, err
		}
	}

	if cfg.Audit.Enabled {
		err := retryWithBackoff(func() error {
			var err error
			b.elasticsearch, err = database.NewElasticsearch(ctx, cfg.Database.Elasticsearch)
			return err
		}, 5, 2*time.Second, log, "elasticsearch connection")
		if err != nil {
			b.Close(log)
			return nil, err
		}
	}
	return b, nil
}

func (b *backends) redisClient() *redis.Client {
	if b.redis == nil {
		return nil
	}
	return b.redis.Client
}

func (b *backends) sqlDB() *sql.DB {
	if b.postgres == nil {
		return nil
	}
	return b.postgres.DB
}

func (b *backends) Close(log logger.Logger) {
	if b.postgres != nil {
		if err := b.postgres.Close(); err != nil {
			log.Warn("postgres close failed", map[string]interface{}{"error": err})
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			log.Warn("redis close failed", map[string]interface{}{"error": err})
		}
	}
}

// tracing is the part of observability the save runner needs.
type tracing interface {
	packaging.Recorder
	TracerProvider() trace.TracerProvider
}

// dependencies are shared by every worker handler.
type dependencies struct {
	gateway      gateway.Gateway
	instantiator *instantiate.Instantiator
	validator    *validator.Validator
	namer        *naming.Namer
	runner       *execution.Runner
	flows        []string
}

func buildDependencies(ctx context.Context, cfg *config.Config, b *backends, obs tracing, log logger.Logger) (*dependencies, error) {
	gw, err := gateway.New(cfg.Storage, b.redisClient(), b.sqlDB(), log)
	if err != nil {
		return nil, err
	}
	if pg, ok := gw.(*gateway.PostgresGateway); ok {
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("create package_files table: %w", err)
		}
	}

	flows, err := loadFlows(cfg.Engine.RegistryPath, log)
	if err != nil {
		return nil, err
	}

	reporters, err := buildReporters(ctx, cfg, b, log)
	if err != nil {
		return nil, err
	}

	v := validator.New(log)
	namer := naming.New(identifier.New())
	return &dependencies{
		gateway:      gw,
		instantiator: instantiate.New(log),
		validator:    v,
		namer:        namer,
		runner: execution.NewRunner(gw, namer, v, log,
			execution.WithTracer(obs.TracerProvider()),
			execution.WithReporters(reporters...),
			execution.WithLogCapacity(cfg.Engine.LogCapacity),
		),
		flows: flows,
	}, nil
}

// loadFlows reads the flow registry at path. An empty path means no
// registry; jobs must then carry their own flow list to get flow checks.
func loadFlows(path string, log logger.Logger) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("flow registry %s: %w", path, err)
	}
	log.Info("flow registry loaded", map[string]interface{}{
		"path":    path,
		"version": reg.Version,
		"flows":   len(reg.Flows),
	})
	return reg.FlowNames(), nil
}

func buildReporters(ctx context.Context, cfg *config.Config, b *backends, log logger.Logger) ([]execution.Reporter, error) {
	var reporters []execution.Reporter

	if cfg.Audit.Enabled && b.elasticsearch != nil {
		reporters = append(reporters, audit.NewIndexer(b.elasticsearch.Client, cfg.Audit.Index, log))
	}

	if cfg.Notifications.Enabled {
		clients, err := awsclients.NewClients(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			return nil, err
		}
		reporters = append(reporters, notify.NewNotifier(notify.Config{
			TopicARN:   cfg.Notifications.SNS.TopicARN,
			FromEmail:  cfg.Notifications.SES.FromEmail,
			Recipients: cfg.Notifications.SES.Recipients,
		}, clients.SES, clients.SNS, log))
	}
	return reporters, nil
}

// registerWorkers opens a job worker for every enabled task type.
func registerWorkers(client camunda.JobWorkerOpener, cfg *config.Config, deps *dependencies, rec packaging.Recorder, log logger.Logger) []worker.JobWorker {
	var workers []worker.JobWorker
	start := func(taskType string, handler worker.JobHandler) {
		if w := camunda.StartWorker(client, taskType, config.GetWorkerConfig(cfg, taskType), handler, log); w != nil {
			workers = append(workers, w)
		}
	}

	vtCfg := validatetemplate.LoadConfig()
	vtCfg.TemplateDirectory = cfg.Storage.TemplateDirectory
	vtCfg.AvailableFlows = deps.flows
	vtCfg.HistoryCapacity = cfg.Engine.HistoryCapacity
	start(validatetemplate.TaskType,
		validatetemplate.NewHandler(vtCfg, deps.validator, deps.gateway, rec, log).Handle)

	ipCfg := instantiatepackage.LoadConfig()
	ipCfg.AvailableFlows = deps.flows
	start(instantiatepackage.TaskType,
		instantiatepackage.NewHandler(ipCfg, deps.instantiator, deps.validator, deps.namer, rec, log).Handle)

	spCfg := savepackage.LoadConfig()
	spCfg.OutputDirectory = cfg.Storage.OutputDirectory
	spCfg.AvailableFlows = deps.flows
	start(savepackage.TaskType,
		savepackage.NewHandler(spCfg, deps.instantiator, deps.validator, deps.runner, rec, log).Handle)

	return workers
}
