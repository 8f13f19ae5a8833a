package bootstrap

import (
	"context"
	"fmt"

	"github.com/kirillkom/visa-desk/internal/config"
	"github.com/kirillkom/visa-desk/internal/core/domain"
	"github.com/kirillkom/visa-desk/internal/core/ports"
	"github.com/kirillkom/visa-desk/internal/core/usecase"
	"github.com/kirillkom/visa-desk/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/visa-desk/internal/infrastructure/pdfcheck"
	"github.com/kirillkom/visa-desk/internal/infrastructure/queue/nats"
	"github.com/kirillkom/visa-desk/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/visa-desk/internal/infrastructure/resilience"
	"github.com/kirillkom/visa-desk/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/visa-desk/internal/observability/metrics"
)

type Options struct {
	// Service labels metrics emitted by the shared infrastructure.
	Service string
	// HTTPMetrics receives resilience and transition metrics. The worker
	// leaves it nil.
	HTTPMetrics *metrics.HTTPServerMetrics
}

type App struct {
	Config config.Config

	Events  *nats.EventBus
	Storage *localfs.Storage

	SubmitUC   ports.ApplicationSubmitter
	WorkflowUC ports.StatusWorkflow
	DocumentUC ports.DocumentIntake
	QueryUC    ports.ApplicationReader
	NotifyUC   ports.NotificationRecorder

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	resilienceCfg := resilience.DefaultConfig()
	resilienceCfg.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	resilienceCfg.BreakerEnabled = cfg.ResilienceBreakerEnabled
	var executorOpts []resilience.ExecutorOption
	if opts.HTTPMetrics != nil {
		executorOpts = append(executorOpts, resilience.WithObserver(opts.HTTPMetrics.ResilienceObserver(opts.Service)))
	}
	executor := resilience.NewExecutor(resilienceCfg, executorOpts...)

	repo := postgres.NewApplicationRepository(db, executor)
	notifications := postgres.NewNotificationRepository(db, executor)

	storage, err := localfs.New(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	events, err := nats.Connect(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init event bus: %w", err)
	}

	var publisher ports.StatusEventPublisher = events
	if opts.HTTPMetrics != nil {
		publisher = &instrumentedPublisher{next: events, metrics: opts.HTTPMetrics, service: opts.Service}
	}

	submitUC := usecase.NewSubmitApplicationUseCase(repo, publisher, nil)
	workflowUC := usecase.NewStatusWorkflowUseCase(repo, publisher, usecase.WorkflowOptions{
		RequireNote: cfg.WorkflowRequireNote,
	})
	documentUC := usecase.NewDocumentUseCase(repo, storage, pdfcheck.NewInspector(), publisher, usecase.DocumentOptions{})
	queryUC := usecase.NewApplicationQueryUseCase(repo, xlsx.NewExporter())
	notifyUC := usecase.NewNotificationUseCase(notifications, nil)

	return &App{
		Config:  cfg,
		Events:  events,
		Storage: storage,

		SubmitUC:   submitUC,
		WorkflowUC: workflowUC,
		DocumentUC: documentUC,
		QueryUC:    queryUC,
		NotifyUC:   notifyUC,

		closeFn: func() {
			events.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// instrumentedPublisher counts every announced transition before forwarding it.
type instrumentedPublisher struct {
	next    ports.StatusEventPublisher
	metrics *metrics.HTTPServerMetrics
	service string
}

func (p *instrumentedPublisher) PublishStatusChanged(ctx context.Context, event domain.StatusChanged) error {
	p.metrics.RecordTransition(p.service, string(domain.NormalizeStatus(event.Status)), event.Automatic)
	return p.next.PublishStatusChanged(ctx, event)
}
