package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hookhub/relay/internal/advisor"
	"github.com/hookhub/relay/internal/alert"
	"github.com/hookhub/relay/internal/api"
	"github.com/hookhub/relay/internal/auditstore"
	"github.com/hookhub/relay/internal/backoff"
	"github.com/hookhub/relay/internal/circuitbreaker"
	"github.com/hookhub/relay/internal/classifier"
	"github.com/hookhub/relay/internal/config"
	"github.com/hookhub/relay/internal/deliveryclient"
	"github.com/hookhub/relay/internal/dispatcher"
	"github.com/hookhub/relay/internal/eventqueue"
	"github.com/hookhub/relay/internal/logging"
	"github.com/hookhub/relay/internal/models"
	"github.com/hookhub/relay/internal/redis"
	"github.com/hookhub/relay/internal/scheduler"
	"github.com/hookhub/relay/internal/worker"
	"go.uber.org/zap"
)

// retrySchedulerName is the sorted-set namespace holding retry due times.
const retrySchedulerName = "event-retries"

// ServiceBuilder constructs workers based on service configuration. In the
// singular deployment the API and the delivery worker share one queue and
// one set of stores, so shared infrastructure is initialized once and
// reused across Build calls.
type ServiceBuilder struct {
	ctx        context.Context
	cfg        *config.Config
	logger     *logging.Logger
	supervisor *worker.WorkerSupervisor

	// Track service instances for cleanup
	services []*serviceInstance

	// Shared infrastructure, created on first use.
	redisClient  redis.Cmdable
	queue        eventqueue.Queue
	webhookStore models.WebhookStore
	eventStore   models.EventStore
	auditStore   auditstore.AuditStore
	breaker      *circuitbreaker.Breaker
}

// serviceInstance represents a single service with its cleanup functions
type serviceInstance struct {
	name         string
	cleanupFuncs []func(context.Context, *logging.LoggerWithCtx)
}

// NewServiceBuilder creates a new ServiceBuilder.
func NewServiceBuilder(ctx context.Context, cfg *config.Config, logger *logging.Logger) *ServiceBuilder {
	return &ServiceBuilder{
		ctx:        ctx,
		cfg:        cfg,
		logger:     logger,
		supervisor: worker.NewWorkerSupervisor(logger),
		services:   []*serviceInstance{},
	}
}

// ensureInfra initializes the Redis client, the event queue, the stores and
// the circuit breaker shared by every service.
func (b *ServiceBuilder) ensureInfra() error {
	if b.redisClient != nil {
		return nil
	}

	svc := &serviceInstance{
		name:         "infra",
		cleanupFuncs: []func(context.Context, *logging.LoggerWithCtx){},
	}
	b.services = append(b.services, svc)

	b.logger.Debug("initializing Redis client")
	redisClient, err := redis.New(b.ctx, b.cfg.Redis.ToConfig())
	if err != nil {
		b.logger.Error("Redis client initialization failed", zap.Error(err))
		return err
	}
	b.redisClient = redisClient

	b.logger.Debug("initializing event queue", zap.String("driver", b.cfg.Queue.Driver))
	queue := eventqueue.New(b.makeQueueConfig())
	cleanupQueue, err := queue.Init(b.ctx)
	if err != nil {
		b.logger.Error("event queue initialization failed", zap.Error(err))
		return err
	}
	svc.cleanupFuncs = append(svc.cleanupFuncs, func(ctx context.Context, logger *logging.LoggerWithCtx) {
		cleanupQueue()
	})
	b.queue = queue

	b.webhookStore = models.NewWebhookStore(redisClient)
	b.eventStore = models.NewEventStore(redisClient)

	b.logger.Debug("configuring audit store driver")
	auditDriverOpts, err := auditstore.MakeDriverOpts(b.ctx, auditstore.Config{
		PostgresURL: b.cfg.PostgresURL,
	}, redisClient)
	if err != nil {
		b.logger.Error("audit store driver configuration failed", zap.Error(err))
		return err
	}
	svc.cleanupFuncs = append(svc.cleanupFuncs, func(ctx context.Context, logger *logging.LoggerWithCtx) {
		if err := auditDriverOpts.Close(); err != nil {
			logger.Error("error closing audit store driver", zap.Error(err))
		}
	})
	auditStore, err := auditstore.NewAuditStore(b.ctx, auditDriverOpts)
	if err != nil {
		b.logger.Error("audit store creation failed", zap.Error(err))
		return err
	}
	b.auditStore = auditStore

	b.breaker = circuitbreaker.New(
		b.cfg.CircuitFailureThreshold,
		time.Duration(b.cfg.CircuitCooldownSeconds)*time.Second,
		b.cfg.CircuitHalfOpenMaxProbes,
	)
	return nil
}

func (b *ServiceBuilder) makeQueueConfig() *eventqueue.QueueConfig {
	if b.cfg.Queue.Driver != "rabbitmq" {
		return nil
	}
	rmq := b.cfg.Queue.RabbitMQ
	return &eventqueue.QueueConfig{
		RabbitMQ: &eventqueue.RabbitMQConfig{
			ServerURL: rmq.ServerURL,
			Exchange:  rmq.Exchange,
			Queue:     rmq.Queue,
		},
	}
}

// BuildAPIWorkers creates and registers the HTTP server worker.
func (b *ServiceBuilder) BuildAPIWorkers() error {
	b.logger.Debug("building API service workers")

	if err := b.ensureInfra(); err != nil {
		return err
	}

	svc := &serviceInstance{
		name:         "api",
		cleanupFuncs: []func(context.Context, *logging.LoggerWithCtx){},
	}
	b.services = append(b.services, svc)

	gin.SetMode(b.cfg.GinMode)
	router := api.NewRouter(
		api.RouterConfig{
			Hostname: b.serviceName(),
			APIKey:   b.cfg.APIKey,
			Health:   HealthHandler(b.supervisor),
		},
		b.logger,
		b.webhookStore,
		b.eventStore,
		b.auditStore,
		b.queue,
		b.breaker,
	)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", b.cfg.APIPort),
		Handler: router,
	}
	b.supervisor.Register(NewHTTPServerWorker(httpServer, b.logger))

	b.logger.Info("API service workers built successfully")
	return nil
}

// BuildDeliveryWorkers creates and registers the dispatcher and the retry
// scheduler workers.
func (b *ServiceBuilder) BuildDeliveryWorkers() error {
	b.logger.Debug("building delivery service workers")

	if err := b.ensureInfra(); err != nil {
		return err
	}

	svc := &serviceInstance{
		name:         "delivery",
		cleanupFuncs: []func(context.Context, *logging.LoggerWithCtx){},
	}
	b.services = append(b.services, svc)

	client := deliveryclient.New(
		deliveryclient.WithTimeout(time.Duration(b.cfg.DeliveryTimeoutSeconds)*time.Second),
		deliveryclient.WithConnectTimeout(time.Duration(b.cfg.DeliveryConnectTimeoutSeconds)*time.Second),
		deliveryclient.WithUserAgent(b.cfg.HTTPUserAgent),
	)

	eventClassifier, err := b.makeClassifier()
	if err != nil {
		return err
	}

	alertMonitor, err := b.makeAlertMonitor()
	if err != nil {
		return err
	}

	// The scheduler callback closes over the dispatcher, which is built
	// after the scheduler it depends on.
	var disp *dispatcher.Dispatcher
	retryScheduler := scheduler.New(retrySchedulerName, b.redisClient,
		func(ctx context.Context, eventID string, scheduledAt time.Time) error {
			return disp.HandleScheduledRetry(ctx, eventID, scheduledAt)
		},
		scheduler.WithLogger(b.logger),
	)

	disp, err = dispatcher.New(dispatcher.Config{
		Queue:          b.queue,
		WebhookStore:   b.webhookStore,
		EventStore:     b.eventStore,
		AuditStore:     b.auditStore,
		Client:         client,
		Classifier:     eventClassifier,
		Breaker:        b.breaker,
		RetryPolicy:    b.makeRetryPolicy(),
		RetryScheduler: retryScheduler,
		Alerts:         alertMonitor,
		Logger:         b.logger,
		Lanes:          b.cfg.DeliveryMaxConcurrency,
		PollInterval:   time.Duration(b.cfg.DispatchPollIntervalMS) * time.Millisecond,
		PauseWindow:    time.Duration(b.cfg.WebhookPauseSeconds) * time.Second,
	})
	if err != nil {
		b.logger.Error("dispatcher creation failed", zap.Error(err))
		return err
	}

	b.supervisor.Register(NewDispatcherWorker(disp, b.cfg.RecoveryEnabled, b.logger))
	b.supervisor.Register(NewRetrySchedulerWorker(retryScheduler, b.logger))

	b.logger.Info("delivery service workers built successfully")
	return nil
}

func (b *ServiceBuilder) makeClassifier() (*classifier.Classifier, error) {
	rules := classifier.DefaultRules()
	if b.cfg.ClassificationRulesPath != "" {
		loaded, err := classifier.LoadRulesFile(b.cfg.ClassificationRulesPath)
		if err != nil {
			b.logger.Error("classification rules load failed", zap.Error(err))
			return nil, err
		}
		rules = loaded
	}
	engine, err := classifier.NewEngine(rules)
	if err != nil {
		b.logger.Error("classification rules compile failed", zap.Error(err))
		return nil, err
	}

	opts := []classifier.Option{classifier.WithLogger(b.logger)}
	if b.cfg.Advisor.Enabled && b.cfg.Advisor.URL != "" {
		advisorClient := advisor.New(b.cfg.Advisor.URL,
			advisor.WithTimeout(time.Duration(b.cfg.Advisor.TimeoutSeconds)*time.Second))
		opts = append(opts,
			classifier.WithAdvisor(advisorClient, b.cfg.Advisor.MinConfidence),
			classifier.WithAdvisorFallback(b.cfg.Advisor.FallbackEnabled))
	}
	return classifier.New(engine, opts...), nil
}

func (b *ServiceBuilder) makeRetryPolicy() *backoff.RetryPolicy {
	if len(b.cfg.RetrySchedule) > 0 {
		schedule := make([]time.Duration, len(b.cfg.RetrySchedule))
		for i, seconds := range b.cfg.RetrySchedule {
			schedule[i] = time.Duration(seconds) * time.Second
		}
		return backoff.NewSchedulePolicy(schedule)
	}
	return backoff.NewRetryPolicy(
		time.Duration(b.cfg.RetryBaseDelayMS)*time.Millisecond,
		time.Duration(b.cfg.RetryMaxDelayMS)*time.Millisecond,
		b.cfg.RetryMaxAttempts,
	)
}

func (b *ServiceBuilder) makeAlertMonitor() (alert.AlertMonitor, error) {
	if b.cfg.Alert.CallbackURL == "" && b.cfg.Alert.TopicURL == "" {
		return nil, nil
	}
	monitor, err := alert.NewAlertMonitor(b.ctx, b.redisClient, alert.AlertConfig{
		CallbackURL:      b.cfg.Alert.CallbackURL,
		BearerToken:      b.cfg.APIKey,
		TopicURL:         b.cfg.Alert.TopicURL,
		DebounceInterval: time.Duration(b.cfg.Alert.DebounceIntervalMS) * time.Millisecond,
	}, alert.MonitorWithLogger(b.logger))
	if err != nil {
		b.logger.Error("alert monitor creation failed", zap.Error(err))
		return nil, err
	}
	return monitor, nil
}

func (b *ServiceBuilder) serviceName() string {
	if b.cfg.OpenTelemetry != nil && b.cfg.OpenTelemetry.ServiceName != "" {
		return b.cfg.OpenTelemetry.ServiceName
	}
	return "relay"
}

// BuildWorkers builds workers based on the configured service type.
func (b *ServiceBuilder) BuildWorkers() error {
	serviceType, err := b.cfg.GetService()
	if err != nil {
		return err
	}
	b.logger.Debug("building workers for service type", zap.String("service_type", serviceType.String()))

	if serviceType == config.ServiceTypeAPI || serviceType == config.ServiceTypeSingular {
		if err := b.BuildAPIWorkers(); err != nil {
			b.logger.Error("failed to build API workers", zap.Error(err))
			return err
		}
	}
	if serviceType == config.ServiceTypeWorker || serviceType == config.ServiceTypeSingular {
		if err := b.BuildDeliveryWorkers(); err != nil {
			b.logger.Error("failed to build delivery workers", zap.Error(err))
			return err
		}
	}

	return nil
}

// Build returns the configured WorkerSupervisor.
func (b *ServiceBuilder) Build() (*worker.WorkerSupervisor, error) {
	return b.supervisor, nil
}

// Cleanup runs all registered cleanup functions for all services.
func (b *ServiceBuilder) Cleanup(ctx context.Context) {
	logger := b.logger.Ctx(ctx)
	for _, svc := range b.services {
		logger.Debug("cleaning up service", zap.String("service", svc.name))
		for _, cleanupFunc := range svc.cleanupFuncs {
			cleanupFunc(ctx, &logger)
		}
	}
}
