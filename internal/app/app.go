// Package app wires the marketplace dependencies and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/gule/marketplace/internal/audit"
	"github.com/gule/marketplace/internal/auth"
	"github.com/gule/marketplace/internal/config"
	"github.com/gule/marketplace/internal/escrow"
	"github.com/gule/marketplace/internal/event"
	handler "github.com/gule/marketplace/internal/handler/http"
	"github.com/gule/marketplace/internal/notify"
	"github.com/gule/marketplace/internal/repository"
	"github.com/gule/marketplace/internal/repository/memory"
	"github.com/gule/marketplace/internal/repository/postgres"
	redisrepo "github.com/gule/marketplace/internal/repository/redis"
	"github.com/gule/marketplace/internal/scheduler"
	"github.com/gule/marketplace/internal/search"
	esengine "github.com/gule/marketplace/internal/search/elasticsearch"
	searchmemory "github.com/gule/marketplace/internal/search/memory"
	"github.com/gule/marketplace/internal/service"
	"github.com/gule/marketplace/migrations"
	"github.com/gule/marketplace/pkg/database"
	"github.com/gule/marketplace/pkg/health"
	"github.com/gule/marketplace/pkg/httpclient"
	pkgkafka "github.com/gule/marketplace/pkg/kafka"
	"github.com/gule/marketplace/pkg/middleware"
	"github.com/gule/marketplace/pkg/tracing"
)

const (
	autoCompleteJob     = "auto-complete-delivered"
	autoCompleteTimeout = 10 * time.Minute
)

// App wires together all dependencies and runs the marketplace server.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	dispatcher     *notify.Dispatcher
	scheduler      *scheduler.Scheduler
	limiter        *middleware.RateLimiter
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
// Resources opened before a failure are released.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	// Initialize OpenTelemetry tracing.
	a.tracerShutdown, err = tracing.Init(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := a.openStore(ctx, reg)
	if err != nil {
		return nil, err
	}

	// Redis backs carts and idempotency keys.
	a.redis, err = database.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))

	events := a.openEvents(reg)

	recorder, err := audit.New(cfg.AuditSink, store, logger)
	if err != nil {
		return nil, err
	}

	ledger, ledgerCheck := a.openLedger(reg)

	index, indexCheck, err := a.openSearch(ctx)
	if err != nil {
		return nil, err
	}

	// Outbound email.
	var mailer notify.Mailer = notify.NewLogMailer(logger)
	if cfg.SMTPEnabled() {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
	}
	a.dispatcher = notify.NewDispatcher(mailer, notify.DispatcherConfig{
		Workers:     cfg.MailWorkers,
		QueueSize:   cfg.MailQueueSize,
		SendTimeout: cfg.MailSendTimeout,
	}, logger, reg)
	logger.Info("email dispatcher initialized", slog.String("mailer", mailer.Name()))

	// Build the dependency graph.
	metrics := service.NewMetrics(reg)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTAccessTTL)
	orders := service.NewOrderService(service.OrderDeps{
		Store:                store,
		Ledger:               ledger,
		Events:               events,
		Audit:                recorder,
		Notifier:             a.dispatcher,
		Idempotency:          redisrepo.NewIdempotencyStore(a.redis, cfg.IdempotencyTTL),
		Metrics:              metrics,
		Logger:               logger,
		RestockAfterShipment: cfg.RestockAfterShipped,
	})
	products := service.NewProductService(store, index, recorder, logger)
	if _, err := products.Reindex(ctx); err != nil {
		logger.Warn("search reindex failed; text search may miss listings until the next restart",
			slog.String("error", err.Error()),
		)
	}
	services := handler.Services{
		Accounts: service.NewAccountService(store, tokens, auth.DefaultHasher, recorder, logger),
		Products: products,
		Orders:   orders,
		Reviews:  service.NewReviewService(store, events, recorder, metrics, logger),
		Carts:    service.NewCartService(redisrepo.NewCartRepository(a.redis, cfg.CartTTL), store, orders, logger),
		Audit:    service.NewAuditService(store.Audit()),
	}

	// Background jobs.
	loc, err := time.LoadLocation(cfg.SchedulerTimezone)
	if err != nil {
		return nil, fmt.Errorf("load scheduler timezone: %w", err)
	}
	a.scheduler = scheduler.New(logger, loc)
	if cfg.AutoCompleteSchedule != "" {
		err = a.scheduler.AddJob(autoCompleteJob, cfg.AutoCompleteSchedule, autoCompleteTimeout, func(ctx context.Context) error {
			_, err := orders.AutoCompleteDelivered(ctx, cfg.AutoCompleteAfter)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("store", store.Ping)
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return a.redis.Ping(ctx).Err()
	})
	if a.producer != nil {
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
	}
	if ledgerCheck != nil {
		healthHandler.RegisterNonCritical("escrow", ledgerCheck)
	}
	if indexCheck != nil {
		healthHandler.RegisterNonCritical("search", indexCheck)
	}

	// HTTP router.
	a.limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins

	routerCfg := handler.RouterConfig{
		ServiceName: cfg.ServiceName,
		Tokens:      tokens.Validate,
		Health:      healthHandler,
		AuthLimiter: a.limiter,
		CORS:        corsCfg,
		PprofCIDRs:  cfg.PprofAllowedCIDRs,
		Logger:      logger,
	}
	if cfg.MetricsEnabled {
		routerCfg.Metrics = middleware.NewHTTPMetrics(reg, cfg.ServiceName)
		routerCfg.Gatherer = reg
	}

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler.NewRouter(services, routerCfg),
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// openStore connects the configured persistence driver.
func (a *App) openStore(ctx context.Context, reg prometheus.Registerer) (repository.Store, error) {
	if a.cfg.StoreDriver == "memory" {
		a.logger.Warn("using in-memory store; data is lost on restart")
		return memory.NewStore(), nil
	}

	pgCfg := a.cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", pgCfg.Host),
		slog.Int("port", pgCfg.Port),
		slog.String("database", pgCfg.DBName),
	)
	if err := database.RegisterPoolMetrics(reg, pool, a.cfg.ServiceName); err != nil {
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}

	if a.cfg.MigrateOnStart {
		if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.logger.Info("database migrations completed")
	}

	if a.cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(a.cfg.SlowQueryThreshold, a.logger)
	}
	return postgres.NewStore(pool), nil
}

// openEvents returns the Kafka publisher, or a no-op one when Kafka is off.
func (a *App) openEvents(reg prometheus.Registerer) event.Publisher {
	if !a.cfg.KafkaEnabled {
		a.logger.Info("kafka disabled; domain events are not published")
		return event.Nop{}
	}
	a.producer = pkgkafka.NewProducer(
		pkgkafka.DefaultProducerConfig(a.cfg.KafkaBrokers),
		a.logger,
		pkgkafka.NewProducerMetrics(reg),
	)
	a.logger.Info("kafka producer initialized", slog.Any("brokers", a.cfg.KafkaBrokers))
	return event.NewProducer(a.producer, a.logger)
}

// openLedger returns the escrow ledger and, for the remote one, a health
// check reporting an open circuit breaker.
func (a *App) openLedger(reg prometheus.Registerer) (escrow.Ledger, health.Checker) {
	if a.cfg.EscrowBaseURL == "" {
		a.logger.Warn("ESCROW_BASE_URL not set; settlements are recorded locally")
		return escrow.NewLocalLedger(a.logger), nil
	}

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = a.cfg.EscrowTimeout
	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpCfg),
		httpclient.DefaultCircuitBreakerConfig("escrow"),
		a.logger,
		httpclient.NewBreakerMetrics(reg),
	)
	a.logger.Info("escrow ledger initialized", slog.String("base_url", a.cfg.EscrowBaseURL))

	check := func(context.Context) error {
		if client.State() == gobreaker.StateOpen {
			return errors.New("escrow circuit breaker is open")
		}
		return nil
	}
	return escrow.NewHTTPLedger(a.cfg.EscrowBaseURL, client, a.logger), check
}

// openSearch returns the product search index, or nil when text search is
// left to the store. Elasticsearch also yields a health check.
func (a *App) openSearch(ctx context.Context) (search.Engine, health.Checker, error) {
	switch a.cfg.SearchEngine {
	case "elasticsearch":
		eng, err := esengine.New(ctx, a.cfg.ElasticsearchURL, a.cfg.ElasticsearchIndex, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		a.logger.Info("elasticsearch search engine initialized",
			slog.String("url", a.cfg.ElasticsearchURL),
			slog.String("index", a.cfg.ElasticsearchIndex),
		)
		return eng, eng.Ping, nil
	case "memory":
		a.logger.Info("in-memory search engine initialized")
		return searchmemory.New(), nil, nil
	default:
		return nil, nil, nil
	}
}

// Run starts the HTTP server and background workers and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.dispatcher.Start()
	a.scheduler.Start()

	limiterCtx, stopLimiter := context.WithCancel(context.Background())
	defer stopLimiter()
	go a.limiter.Run(limiterCtx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops all components in order: the HTTP server drains
// in-flight requests, the scheduler waits for running jobs, queued email is
// flushed, then spans, Kafka and the stores are closed.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	step := func(name string, fn func() error) {
		if err := fn(); err != nil {
			a.logger.Error(name+" shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	step("http server", func() error { return a.httpServer.Shutdown(ctx) })
	step("scheduler", func() error { return a.scheduler.Stop(ctx) })
	step("email dispatcher", func() error { return a.dispatcher.Close(ctx) })
	errs = append(errs, a.release())

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// release closes tracing, Kafka, Redis and PostgreSQL, whichever are open.
func (a *App) release() error {
	var errs []error
	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
