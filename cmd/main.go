package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/aggregator/internal/adapters/http/api"
	"github.com/okian/aggregator/internal/adapters/http/site"
	"github.com/okian/aggregator/internal/adapters/http/swagger"
	"github.com/okian/aggregator/internal/adapters/mq/kafka"
	"github.com/okian/aggregator/internal/adapters/repository"
	"github.com/okian/aggregator/internal/adapters/sink"
	app "github.com/okian/aggregator/internal/app"
	"github.com/okian/aggregator/internal/config"
	"github.com/okian/aggregator/pkg/logger"
	"github.com/okian/aggregator/pkg/metrics"
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
	// We collect our own system metrics on a custom registry.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load config", logger.Error(err))
		os.Exit(1)
	}

	if err := logger.InitWith(os.Stdout, cfg.LogFormat); err != nil {
		log.Error(ctx, "failed to switch log format", logger.Error(err))
		os.Exit(1)
	}
	log = logger.Get()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	opts, err := serviceOptions(cfg)
	if err != nil {
		log.Error(ctx, "failed to configure service", logger.Error(err))
		os.Exit(1)
	}
	svc := app.New(append(opts, app.WithLogger(log))...)
	// The service must outlive the signal: requests still in flight during
	// srv.Shutdown publish into it, so it is stopped after the server.
	if err := svc.Start(context.WithoutCancel(ctx)); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		os.Exit(1)
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(ctx, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store_driver", cfg.StoreDriver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdown(srv, svc, log)
}

// shutdown stops accepting requests, waits for in-flight ones, and only then
// stops the service so the consumer drains what they published.
func shutdown(srv *http.Server, svc *app.Service, log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info(ctx, "shutting down server...")
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	svc.Stop()
	log.Info(ctx, "server stopped")
}

// serviceOptions translates configuration into service options.
func serviceOptions(cfg *config.Config) ([]app.Option, error) {
	opts := []app.Option{
		app.WithStoreDriver(cfg.StoreDriver,
			repository.WithSQLitePath(cfg.SQLitePath),
			repository.WithPostgresDSN(cfg.PostgresDSN),
			repository.WithRedisAddr(cfg.RedisAddr),
			repository.WithRedisPassword(cfg.RedisPassword),
			repository.WithRedisDB(cfg.RedisDB),
			repository.WithRedisPrefix(cfg.RedisPrefix),
		),
		app.WithPollInterval(time.Duration(cfg.ConsumerPollMS) * time.Millisecond),
		app.WithMaxRetries(uint64(cfg.ConsumerMaxRetries)), //nolint:gosec // validated non-negative
	}

	if cfg.BloomCapacity > 0 {
		opts = append(opts, app.WithBloomFilter(uint(cfg.BloomCapacity), cfg.BloomFPRate)) //nolint:gosec // validated positive
	}

	if cfg.ElasticURL != "" {
		es, err := sink.NewElastic(cfg.ElasticURL, sink.WithIndex(cfg.ElasticIndex))
		if err != nil {
			return nil, err
		}
		opts = append(opts, app.WithSink(es))
	}

	if brokers := cfg.Brokers(); len(brokers) > 0 {
		opts = append(opts, app.WithKafka(kafka.Config{
			Brokers: brokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}))
	}

	return opts, nil
}

// newRouter mounts the API, the documentation routes and the landing page.
func newRouter(ctx context.Context, svc *app.Service) chi.Router {
	r := api.NewRouter(ctx, svc)
	swagger.Register(ctx, r)
	site.Register(ctx, r)
	return r
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
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes the gauges derived from service stats.
// A stopped service leaves them untouched.
func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	st, err := svc.Stats(ctx)
	if err != nil {
		return
	}
	metrics.UpdateQueueSize(st.QueueLength)
	metrics.UpdateStoreRecords(st.StoredEvents)
}
