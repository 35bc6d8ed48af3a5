package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/config"
	productrepo "github.com/Ramsey-B/clover/internal/repositories/loanproduct"
	matchrepo "github.com/Ramsey-B/clover/internal/repositories/match"
	logrepo "github.com/Ramsey-B/clover/internal/repositories/processinglog"
	userrepo "github.com/Ramsey-B/clover/internal/repositories/user"
	"github.com/Ramsey-B/clover/pkg/catalog"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/evaluator"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/ingest"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/notify"
	"github.com/Ramsey-B/clover/pkg/oracle"
	"github.com/Ramsey-B/clover/pkg/pipeline"
	"github.com/Ramsey-B/clover/pkg/ratelimit"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	ingestroutes "github.com/Ramsey-B/clover/pkg/routes/ingest"
	productroutes "github.com/Ramsey-B/clover/pkg/routes/loanproduct"
	matchroutes "github.com/Ramsey-B/clover/pkg/routes/match"
	notificationroutes "github.com/Ramsey-B/clover/pkg/routes/notification"
	pipelineroutes "github.com/Ramsey-B/clover/pkg/routes/pipeline"
	statsroutes "github.com/Ramsey-B/clover/pkg/routes/stats"
	userroutes "github.com/Ramsey-B/clover/pkg/routes/user"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := buildLogger(cfg)

	if cfg.TracingEnabled {
		shutdownTracing, err := initTracing(ctx, cfg)
		if err != nil {
			logger.WithError(err).Error("Failed to initialize tracing")
		} else {
			defer shutdownTracing(context.Background())
		}
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Clover exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	// Database
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)
	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	db := database.NewDatabaseInstance(sqlxDB, logger)
	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	defer db.Close()

	// Migrations
	driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	migrationService := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrationService.Migrate(cfg.DatabaseName, driver); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Repositories
	users := userrepo.NewRepository(db, logger)
	products := productrepo.NewRepository(db, logger)
	matches := matchrepo.NewRepository(db, logger)
	logs := logrepo.NewRepository(db, logger)

	// Oracle. Without an API key every oracle call errors out and the
	// evaluator degrades to rule-based fallback decisions.
	var generator *oracle.Generator
	if cfg.GeminiAPIKey != "" {
		generator, err = oracle.NewGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return fmt.Errorf("failed to create gemini client: %w", err)
		}
	} else {
		logger.Warn("GEMINI_API_KEY is not set; matching will rely on rule-based fallback decisions")
	}
	gemini := oracle.NewGemini(generator, logger)

	// Oracle pacing: per-process interval pacer, or a Redis sliding window
	// shared across instances when Redis is configured
	var redisClient goredis.UniversalClient
	var pacer evaluator.Pacer
	if cfg.RedisEnabled {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		limiter := ratelimit.NewRedisLimiter(redisClient, logger, "clover:ratelimit")
		pacer = ratelimit.NewSharedPacer(limiter, "oracle", int64(cfg.OracleRateLimit), cfg.OracleRateWindow, cfg.OracleRateMaxWait)
	} else {
		pacer = ratelimit.NewPacer(cfg.OracleMinInterval)
	}

	eval := evaluator.NewEvaluator(gemini, pacer, logger, evaluator.Config{
		TopCandidates:     cfg.MatchTopCandidates,
		FallbackThreshold: cfg.MatchFallbackThreshold,
		MaxAttempts:       cfg.OracleMaxAttempts,
		BackoffBase:       cfg.OracleBackoffBase,
		CallTimeout:       cfg.OracleTimeout,
	})

	// Events
	var producer *kafka.Producer
	var emitter pipeline.Emitter
	if cfg.KafkaEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		emitter = events.NewEmitter(producer, logger)
	}

	// Matching pipeline
	prefilter := matching.NewPrefilter(matching.Config{
		CreditBuffer:    cfg.MatchCreditBuffer,
		IncomeBufferPct: cfg.MatchIncomeBufferPct,
		AgeBuffer:       cfg.MatchAgeBuffer,
	})
	scorer := matching.NewScorer()
	store := pipeline.NewDBStore(users, products, matches, logs)
	runner := pipeline.NewRunner(store, prefilter, scorer, eval, emitter, logger, pipeline.Config{
		BatchSize: cfg.MatchBatchSize,
	})
	worker := pipeline.NewWorker(runner, cfg.MatchWorkerInterval, logger)

	// Ingestion and catalog
	objectStore, err := ingest.NewObjectStore(ctx, ingest.ObjectStoreConfig{
		Region:        cfg.AWSRegion,
		Bucket:        cfg.IngestBucket,
		UsePathStyle:  cfg.S3UsePathStyle,
		PresignExpiry: cfg.IngestPresignExpiry,
	})
	if err != nil {
		return fmt.Errorf("failed to create object store: %w", err)
	}
	processor := ingest.NewProcessor(objectStore, users, logs, logger)
	refresher := catalog.NewRefresher(products, logs, logger)

	// Notifications
	var dispatcher *notify.Dispatcher
	if cfg.NotifyEnabled {
		sender, err := notify.NewSESSender(ctx, cfg.AWSRegion, cfg.NotifyFromAddress)
		if err != nil {
			return fmt.Errorf("failed to create ses sender: %w", err)
		}
		dispatcher = notify.NewDispatcher(matches, users, products, sender, logs, logger, notify.Config{
			BatchSize:   cfg.NotifyBatchSize,
			MaxPerEmail: cfg.NotifyMaxPerEmail,
			SendDelay:   cfg.NotifySendDelay,
		})
	}

	// DI container for route handlers
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return fmt.Errorf("failed to create di container: %w", err)
	}
	registrations := []func() error{
		func() error { return ectoinject.RegisterInstance[ectologger.Logger](container, logger) },
		func() error { return ectoinject.RegisterInstance[*userrepo.Repository](container, users) },
		func() error { return ectoinject.RegisterInstance[*productrepo.Repository](container, products) },
		func() error { return ectoinject.RegisterInstance[*matchrepo.Repository](container, matches) },
		func() error { return ectoinject.RegisterInstance[*logrepo.Repository](container, logs) },
		func() error { return ectoinject.RegisterInstance[*pipeline.Worker](container, worker) },
		func() error { return ectoinject.RegisterInstance[*ingest.ObjectStore](container, objectStore) },
		func() error { return ectoinject.RegisterInstance[*ingest.Processor](container, processor) },
		func() error { return ectoinject.RegisterInstance[*catalog.Refresher](container, refresher) },
	}
	if dispatcher != nil {
		registrations = append(registrations, func() error {
			return ectoinject.RegisterInstance[*notify.Dispatcher](container, dispatcher)
		})
	}
	for _, register := range registrations {
		if err := register(); err != nil {
			return fmt.Errorf("failed to register dependency: %w", err)
		}
	}

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomw.Recover())
	if cfg.TracingEnabled {
		e.Use(otelecho.Middleware(cfg.AppName))
	}
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	checker := health.NewChecker(db, redisClient, version)
	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	userroutes.Register(api.Group("/users"))
	productroutes.Register(api.Group("/products"))
	matchroutes.Register(api.Group("/matches"))
	pipelineroutes.Register(api.Group("/pipeline"))
	ingestroutes.Register(api.Group("/ingest"))
	statsroutes.Register(api.Group("/stats"))
	if dispatcher != nil {
		notificationroutes.Register(api.Group("/notifications"))
	}

	starter := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	starter.AddDependency(&dependency{
		name: "http-server",
		start: func(context.Context) error {
			go func() {
				addr := fmt.Sprintf(":%d", cfg.Port)
				logger.Infof("Starting HTTP server on %s", addr)
				if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("HTTP server stopped unexpectedly")
				}
			}()
			return nil
		},
		stop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
	if cfg.MatchWorkerEnabled {
		starter.AddDependency(&dependency{
			name:      "matching-worker",
			dependsOn: []string{"http-server"},
			start:     worker.Start,
			stop:      worker.Stop,
		})
	}
	if producer != nil {
		starter.AddDependency(&dependency{
			name:  "kafka-producer",
			start: func(context.Context) error { return nil },
			stop:  func(context.Context) error { return producer.Close() },
		})
	}

	if err := starter.Start(ctx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	checker.SetReady(true)
	logger.Infof("Clover %s is ready", version)

	<-ctx.Done()
	logger.Info("Shutdown signal received")
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := starter.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("Clover stopped")
	return nil
}

func buildLogger(cfg *config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}

	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func initTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	switch cfg.TracingExporter {
	case "otlp":
		otlp, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  cfg.OTLPTimeout,
		})
		if err != nil {
			return nil, err
		}
		exporter = otlp
	default:
		exporter = &exporters.ConsoleExporter{}
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(sdkresource.NewSchemaless(
			attribute.String("service.name", cfg.AppName),
			attribute.String("service.version", version),
		)),
	)

	otel.SetTracerProvider(provider)
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return provider.Shutdown, nil
}

// dependency adapts start/stop funcs to the startup dependency graph
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string {
	return d.name
}

func (d *dependency) DependsOn() []string {
	return d.dependsOn
}

func (d *dependency) Start(ctx context.Context) error {
	return d.start(ctx)
}

func (d *dependency) Stop(ctx context.Context) error {
	return d.stop(ctx)
}
