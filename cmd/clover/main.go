package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/alias"
	"github.com/Ramsey-B/clover/internal/repositories/enginesettings"
	"github.com/Ramsey-B/clover/internal/repositories/entity"
	"github.com/Ramsey-B/clover/internal/repositories/identifier"
	"github.com/Ramsey-B/clover/internal/repositories/matchcandidate"
	"github.com/Ramsey-B/clover/internal/repositories/matchdecision"
	"github.com/Ramsey-B/clover/internal/repositories/mergerecord"
	"github.com/Ramsey-B/clover/internal/repositories/observation"
	"github.com/Ramsey-B/clover/internal/repositories/recordlink"
	"github.com/Ramsey-B/clover/pkg/candidates"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/phonetics"
	"github.com/Ramsey-B/clover/pkg/pipeline"
	"github.com/Ramsey-B/clover/pkg/processor"
	"github.com/Ramsey-B/clover/pkg/resolver"
	candidateroute "github.com/Ramsey-B/clover/pkg/routes/candidate"
	entityroute "github.com/Ramsey-B/clover/pkg/routes/entity"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	observationroute "github.com/Ramsey-B/clover/pkg/routes/observation"
	"github.com/Ramsey-B/clover/pkg/routes/pipelinerun"
	settingroute "github.com/Ramsey-B/clover/pkg/routes/setting"
	"github.com/Ramsey-B/clover/pkg/scoring"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var version = "dev"

// worker adapts a start/stop pair to the startup lifecycle
type worker struct {
	name  string
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

func (w *worker) GetName() string                 { return w.name }
func (w *worker) Start(ctx context.Context) error { return w.start(ctx) }
func (w *worker) Stop(ctx context.Context) error  { return w.stop(ctx) }

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnvToStruct(&cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	shutdownTracing, err := tracing.Setup(ctx, cfg.AppName, version, os.Getenv("ENVIRONMENT"))
	if err != nil {
		logger.WithError(err).Fatal("Failed to set up tracing")
	}

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
		cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)
	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	db := database.NewDatabaseInstance(sqlxDB, logger)

	driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create migration driver")
	}
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	observationRepo := observation.NewRepository(db, logger)
	entityRepo := entity.NewRepository(db, logger)
	identifierRepo := identifier.NewRepository(db, logger)
	aliasRepo := alias.NewRepository(db, logger)
	linkRepo := recordlink.NewRepository(db, logger)
	candidateRepo := matchcandidate.NewRepository(db, logger)
	decisionRepo := matchdecision.NewRepository(db, logger)
	mergeRecordRepo := mergerecord.NewRepository(db, logger)
	settingsRepo := enginesettings.NewRepository(db, logger)

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaOutputTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, logger)

	sinks := []events.Sink{events.NewEmitter(producer, logger)}

	var graphClient *graph.Client
	if cfg.GraphDBEnabled {
		graphClient, err = graph.NewClient(graph.Config{
			Host:     cfg.GraphDBHost,
			Port:     cfg.GraphDBPort,
			Username: cfg.GraphDBUser,
			Password: cfg.GraphDBPassword,
		}, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create graph client")
		}
		if err := graphClient.VerifyConnectivity(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to reach graph database")
		}
		sinks = append(sinks, graph.NewProjector(graphClient, logger))
	}

	sink := events.NewMulti(sinks...)

	coder := phonetics.ForName(cfg.PhoneticCoder)
	resolverEngine := resolver.NewEngine(observationRepo, entityRepo, identifierRepo, aliasRepo, linkRepo, candidateRepo, sink, logger)
	scorer := scoring.NewScorer(identifierRepo, aliasRepo, linkRepo, coder, logger)
	generator := candidates.NewGenerator(entityRepo, decisionRepo, candidateRepo, scorer, coder, sink, logger)
	mergeEngine := merging.NewEngine(
		entityRepo, identifierRepo, aliasRepo, linkRepo,
		candidateRepo, decisionRepo, mergeRecordRepo, observationRepo,
		sink, logger,
	)

	runner := pipeline.NewRunner(resolverEngine, generator, mergeEngine, settingsRepo, pipeline.Config{
		Interval:          cfg.PipelineInterval,
		ResolverBatchSize: cfg.ResolverBatchSize,
		AutoMergeEnabled:  cfg.AutoMergeEnabled,
	}, logger)

	intake := processor.NewProcessor(logger, observationRepo)
	var consumer *kafka.Consumer
	if cfg.KafkaConsumerEnabled {
		consumer = kafka.NewConsumer(cfg, logger, intake.ProcessMessage)
	}

	container, err := ectoinject.NewDependencyContainer()
	if err != nil {
		logger.WithError(err).Fatal("Failed to create dependency container")
	}
	registerDependencies(container, logger, observationRepo, entityRepo, identifierRepo, aliasRepo,
		linkRepo, candidateRepo, decisionRepo, mergeRecordRepo, settingsRepo, mergeEngine, runner)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.HTTPErrorHandler = middleware.Error(logger)

	var consumerHealth interface{ Health() bool }
	if consumer != nil {
		consumerHealth = consumer
	}
	checker := health.NewChecker(sqlxDB, consumerHealth, version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	observationroute.Register(api.Group("/observations"))
	candidateroute.Register(api.Group("/candidates"))
	entityroute.Register(api.Group("/entities"))
	settingroute.Register(api.Group("/settings"))
	pipelinerun.Register(api.Group("/pipeline"))

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	if consumer != nil {
		boot.AddWorker(&worker{
			name:  "kafka-consumer",
			start: consumer.Start,
			stop:  func(context.Context) error { return consumer.Stop() },
		})
	}
	if cfg.PipelineEnabled {
		boot.AddWorker(&worker{
			name:  "pipeline-runner",
			start: runner.Start,
			stop:  func(context.Context) error { return runner.Stop() },
		})
	}
	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start background workers")
	}

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.WithField("addr", addr).Info("HTTP server starting")
		if err := e.Start(addr); err != nil {
			logger.WithError(err).Info("HTTP server stopped")
		}
	}()
	checker.SetReady(true)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Background worker shutdown failed")
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Error("Kafka producer shutdown failed")
	}
	if graphClient != nil {
		if err := graphClient.Close(shutdownCtx); err != nil {
			logger.WithError(err).Error("Graph client shutdown failed")
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Error("Tracing shutdown failed")
	}
	if err := db.Close(); err != nil {
		logger.WithError(err).Error("Database shutdown failed")
	}
}

func newLogger(cfg config.Config) ectologger.Logger {
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

func registerDependencies(
	container *ectoinject.DependencyContainer,
	logger ectologger.Logger,
	observationRepo *observation.Repository,
	entityRepo *entity.Repository,
	identifierRepo *identifier.Repository,
	aliasRepo *alias.Repository,
	linkRepo *recordlink.Repository,
	candidateRepo *matchcandidate.Repository,
	decisionRepo *matchdecision.Repository,
	mergeRecordRepo *mergerecord.Repository,
	settingsRepo *enginesettings.Repository,
	mergeEngine *merging.Engine,
	runner *pipeline.Runner,
) {
	must := func(err error) {
		if err != nil {
			logger.WithError(err).Fatal("Failed to register dependency")
		}
	}
	must(ectoinject.AddSingletonInstance[ectologger.Logger](container, logger))
	must(ectoinject.AddSingletonInstance[*observation.Repository](container, observationRepo))
	must(ectoinject.AddSingletonInstance[*entity.Repository](container, entityRepo))
	must(ectoinject.AddSingletonInstance[*identifier.Repository](container, identifierRepo))
	must(ectoinject.AddSingletonInstance[*alias.Repository](container, aliasRepo))
	must(ectoinject.AddSingletonInstance[*recordlink.Repository](container, linkRepo))
	must(ectoinject.AddSingletonInstance[*matchcandidate.Repository](container, candidateRepo))
	must(ectoinject.AddSingletonInstance[*matchdecision.Repository](container, decisionRepo))
	must(ectoinject.AddSingletonInstance[*mergerecord.Repository](container, mergeRecordRepo))
	must(ectoinject.AddSingletonInstance[*enginesettings.Repository](container, settingsRepo))
	must(ectoinject.AddSingletonInstance[*merging.Engine](container, mergeEngine))
	must(ectoinject.AddSingletonInstance[*pipeline.Runner](container, runner))
}
