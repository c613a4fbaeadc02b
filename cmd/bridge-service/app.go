package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"hookbridge/internal/config"
	"hookbridge/internal/constants"
	"hookbridge/internal/credentials"
	"hookbridge/internal/deduplication"
	"hookbridge/internal/handlers"
	"hookbridge/internal/logger"
	"hookbridge/internal/oauth"
	"hookbridge/internal/planner"
	"hookbridge/internal/queue"
	"hookbridge/internal/security"
	"hookbridge/internal/usermapping"
	"hookbridge/internal/webhook"
	"hookbridge/pkg/bootstrap"
	"hookbridge/pkg/health"
	"hookbridge/pkg/logging"
	"hookbridge/pkg/metrics"
	"hookbridge/pkg/middleware"
	"hookbridge/pkg/migrations"
	"hookbridge/pkg/ratelimit"
	"hookbridge/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector

	redis       redis.UniversalClient
	db          *sql.DB
	mongoClient *mongo.Client

	dedupMemory *deduplication.MemoryStore
	dedupStore  deduplication.Store
	dedup       *deduplication.Service
	mappings    usermapping.Store
	manager     *oauth.Manager
	processor   *queue.Processor
	limiter     *ratelimit.Limiter

	tracerProvider *tracing.TracerProvider
	healthRegistry *health.CheckerRegistry
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:           bootstrap.NewBase(cfg, log),
		dbConnector:    bootstrap.NewDatabaseConnector(cfg, log),
		healthRegistry: health.NewCheckerRegistry(),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	ctx = logging.WithServiceName(ctx, constants.ServiceName)

	tp, err := tracing.Init(a.Config.Tracing.Tracing(), constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.Register()

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	a.initDeduplication()

	if err := a.initOAuth(ctx); err != nil {
		return fmt.Errorf("failed to initialize oauth: %w", err)
	}

	if err := a.InitPublishers(); err != nil {
		return err
	}

	if err := a.initProcessor(); err != nil {
		return fmt.Errorf("failed to initialize event processor: %w", err)
	}

	a.initHTTPServer()
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	cfg := a.Config

	if cfg.Deduplication.Store == constants.StoreTypeRedis || cfg.Credentials.Store == constants.StoreTypeRedis {
		rdb, err := a.dbConnector.InitRedis(ctx)
		if err != nil {
			return err
		}
		a.redis = rdb
		a.healthRegistry.Register(health.NewRedisChecker(rdb))
	}

	if cfg.Credentials.Store == constants.StoreTypePostgres {
		if cfg.Database.RunMigrations {
			if err := migrations.RunPostgres(cfg.Database.Postgres.DSN(), migrations.DirectionUp); err != nil {
				return err
			}
			a.Logger.InfowCtx(ctx, "PostgreSQL migrations applied")
		}
		db, err := a.dbConnector.InitPostgreSQL(ctx)
		if err != nil {
			return err
		}
		a.db = db
		a.healthRegistry.Register(health.NewPostgreSQLChecker(db))
	}

	if cfg.UserMapping.Store == constants.StoreTypeMongoDB {
		client, err := a.dbConnector.InitMongoDB(ctx)
		if err != nil {
			return err
		}
		a.mongoClient = client

		db := client.Database(cfg.Database.MongoDB.Database)
		if err := migrations.EnsureUserMappingIndexes(ctx, db, cfg.UserMapping.Collection); err != nil {
			a.Logger.WarnwCtx(ctx, "Failed to ensure user mapping indexes", "error", err)
		}
		// Uninstall still revokes credentials when mappings are unreachable.
		a.healthRegistry.RegisterOptional(health.NewMongoDBChecker(client))
	}

	return nil
}

func (a *App) initDeduplication() {
	var store deduplication.Store
	switch a.Config.Deduplication.Store {
	case constants.StoreTypeRedis:
		store = deduplication.NewCircuitBreakerStore(
			deduplication.NewRedisStore(a.redis),
			a.Config.CircuitBreaker.Overrides(),
		)
	default:
		a.dedupMemory = deduplication.NewMemoryStore()
		store = a.dedupMemory
	}

	a.dedupStore = store
	a.dedup = deduplication.NewService(store, a.Config.Deduplication, a.Logger)
}

func (a *App) initOAuth(ctx context.Context) error {
	cfg := a.Config

	cipher, err := security.NewTokenCipher(cfg.Security.EncryptionSecret, cfg.Security.KeyDerivation)
	if err != nil {
		return err
	}
	if cfg.Security.KeyDerivation == constants.KeyDerivationRaw {
		a.Logger.WarnwCtx(ctx, "Raw key derivation is enabled; wrong-key decryption may go undetected")
	}

	var creds credentials.Store
	switch cfg.Credentials.Store {
	case constants.StoreTypeRedis:
		creds = credentials.NewRedisStore(a.redis)
	case constants.StoreTypePostgres:
		creds = credentials.NewPostgresStore(a.db)
	default:
		creds = credentials.NewMemoryStore()
	}

	switch cfg.UserMapping.Store {
	case constants.StoreTypeMongoDB:
		a.mappings = usermapping.NewMongoStore(a.mongoClient.Database(cfg.Database.MongoDB.Database), cfg.UserMapping.Collection)
	default:
		a.mappings = usermapping.NewMemoryStore()
	}

	provider := oauth.NewProviderClient(cfg.OAuth, cfg.CircuitBreaker.Overrides(), a.Logger)
	manager, err := oauth.NewManager(cfg.OAuth, cipher, creds, a.mappings, provider, a.Logger)
	if err != nil {
		return err
	}
	manager.UseStateStore(a.dedupStore)
	a.manager = manager

	if cfg.RateLimit.Enabled {
		a.limiter = ratelimit.NewLimiter(cfg.RateLimit.Limiter())
	}
	return nil
}

func (a *App) initProcessor() error {
	var sinks queue.MultiSink
	for _, s := range a.Config.Queue.Sinks {
		if s == constants.SinkTypeLog {
			sinks = append(sinks, queue.NewLogSink(a.Logger))
		}
	}
	for _, p := range a.Publishers {
		sinks = append(sinks, queue.NewPublishingSink(p, a.Logger))
	}
	if len(sinks) == 0 {
		sinks = append(sinks, queue.NewLogSink(a.Logger))
	}

	processor, err := queue.NewProcessor(a.Config.Queue, nil, sinks, a.Logger)
	if err != nil {
		return err
	}

	deps := handlers.Dependencies{
		Credentials: a.manager,
		Mappings:    a.mappings,
		Uninstaller: a.manager,
		Logger:      a.Logger,
	}
	if a.Config.Planner.BaseURL != "" {
		client, err := planner.NewClient(a.Config.Planner, a.Config.CircuitBreaker.Overrides(), a.Logger)
		if err != nil {
			return err
		}
		deps.Planner = client
	} else {
		a.Logger.Warn("planner.base_url is not set; message and app_mention events will be dropped")
	}
	handlers.RegisterDefaults(processor, deps)

	a.processor = processor
	return nil
}

func (a *App) initHTTPServer() {
	if a.Config.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName)...)
	}
	router.Use(middleware.LoggerMiddleware(a.Logger))

	webhook.NewHandler(a.Config.Webhook, a.dedup, a.processor, a.Logger).RegisterRoutes(router)
	oauth.NewHandler(a.manager, a.Config.Server.AdminToken, a.Config.OAuth.SuccessURL, a.limiter, a.Logger).RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		h := a.healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
}

func (a *App) Run(ctx context.Context) error {
	ctx = logging.WithServiceName(ctx, constants.ServiceName)
	g, gCtx := errgroup.WithContext(ctx)

	a.processor.Start(gCtx)
	a.dedup.StartCacheMetrics(gCtx, constants.DedupCacheMetricsInterval)

	if a.dedupMemory != nil {
		g.Go(func() error {
			a.dedupMemory.RunSweeper(gCtx, a.Config.Deduplication.SweepInterval)
			return nil
		})
	}
	if a.limiter != nil {
		g.Go(func() error {
			a.limiter.RunCleanup(gCtx)
			return nil
		})
	}

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(logging.WithServiceName(context.Background(), constants.ServiceName))
	})

	return g.Wait()
}

// Shutdown stops intake first, then drains the processor so that queued
// events still reach the publishers before they are closed.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(ctx, "Shutting down bridge service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			serverCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
			if err := a.server.Shutdown(serverCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
			cancel()
		}

		if a.processor != nil {
			drainCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
			if err := a.processor.Stop(drainCtx); err != nil {
				errs = append(errs, fmt.Errorf("event processor stop error: %w", err))
			}
			cancel()
		}

		if a.dedup != nil {
			a.dedup.StopCacheMetrics()
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.db, a.mongoClient)...)
		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
