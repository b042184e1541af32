package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nikoksr/notify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/herdwatch/internal/adapters/alerts"
	"github.com/okian/herdwatch/internal/adapters/http/api"
	"github.com/okian/herdwatch/internal/adapters/http/swagger"
	"github.com/okian/herdwatch/internal/adapters/mq/kafka"
	"github.com/okian/herdwatch/internal/adapters/repository"
	app "github.com/okian/herdwatch/internal/app"
	"github.com/okian/herdwatch/internal/config"
	"github.com/okian/herdwatch/internal/domain/model"
	"github.com/okian/herdwatch/pkg/logger"
	"github.com/okian/herdwatch/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// A local .env is optional.
	_ = godotenv.Load()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't available yet
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "herdwatch stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

// run wires every component from cfg and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	stores, err := repository.Open(ctx, repository.Settings{
		Driver:      cfg.Store,
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Warn(ctx, "store close failed", logger.Error(err))
		}
	}()

	notifier, closers := buildNotifier(cfg, log)
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	dispatcher := alerts.NewDispatcher(notifier,
		alerts.WithQueueSize(cfg.AlertQueueSize),
		alerts.WithWorkers(cfg.AlertWorkers),
		alerts.WithTimeout(cfg.AlertTimeout),
	)

	svc := newService(cfg, stores, dispatcher, log)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	if cfg.KafkaPositionsTopic != "" {
		consumer := kafka.NewPositionConsumer(cfg.KafkaBrokers, cfg.KafkaPositionsTopic, cfg.KafkaGroup,
			submitFunc(svc), kafka.WithRetryable(isBackpressure))
		defer func() { _ = consumer.Close() }()
		go consumer.Run(ctx)
		log.Info(ctx, "consuming positions from kafka", logger.String("topic", cfg.KafkaPositionsTopic))
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc, cfg),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal or a server failure
	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return runErr
}

func newService(cfg *config.Config, stores *repository.Stores, dispatcher app.Dispatcher, log logger.Logger) *app.Service {
	return app.New(stores, dispatcher,
		app.WithLogger(log.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithActiveFence(cfg.ActiveFence),
		app.WithEvaluationInterval(cfg.EvaluationInterval),
		app.WithPassConcurrency(cfg.PassConcurrency),
	)
}

// buildNotifier composes the alert transports enabled in cfg. The log
// service is always present. Returned closers flush external transports.
func buildNotifier(cfg *config.Config, log logger.Logger) (*notify.Notify, []io.Closer) {
	services := []notify.Notifier{alerts.NewLogService(log.Named("alerts"))}
	var closers []io.Closer

	if cfg.SMTPHost != "" {
		services = append(services, alerts.NewMailService(alerts.MailSettings{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			User:       cfg.SMTPUser,
			Password:   cfg.SMTPPassword,
			From:       cfg.SMTPFrom,
			Recipients: cfg.AlertRecipients,
		}))
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaAlertsTopic != "" {
		pub := kafka.NewAlertPublisher(cfg.KafkaBrokers, cfg.KafkaAlertsTopic)
		services = append(services, pub)
		closers = append(closers, pub)
	}
	return alerts.NewNotifier(services...), closers
}

// newMux registers the docs and business API routes.
func newMux(ctx context.Context, svc *app.Service, cfg *config.Config) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, api.WithPositionsRate(cfg.PositionsRate, cfg.PositionsBurst)).Register(ctx, mux)
	return mux
}

func submitFunc(svc *app.Service) kafka.SubmitFunc {
	return func(ctx context.Context, fix model.PositionFix) error {
		_, err := svc.SubmitFix(ctx, fix)
		return err
	}
}

func isBackpressure(err error) bool {
	return errors.Is(err, app.ErrBackpressure)
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystem(m.Alloc, runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes the per-status entity gauges.
func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	stats := svc.GetStats(ctx)
	_ = metrics.UpdateEntityStatusCounts(stats.ByStatus)
}
