package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"projectflow/backend/internal/api"
	"projectflow/backend/internal/auth"
	"projectflow/backend/internal/config"
	"projectflow/backend/internal/events"
	"projectflow/backend/internal/logging"
	"projectflow/backend/internal/mcp"
	"projectflow/backend/internal/metrics"
	"projectflow/backend/internal/repository"
	"projectflow/backend/internal/rules"
	"projectflow/backend/internal/services"
	"projectflow/backend/internal/tls"
	"projectflow/backend/internal/validation"
	"projectflow/backend/pkg/models"
)

func runServe(ctx context.Context, configFile string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}
	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting projectflow",
		"environment", cfg.Environment,
		"db_driver", cfg.DB.Driver,
		"auth_issuer", cfg.Auth.Issuer,
		"dev_mode_bypass", cfg.DevModeBypass,
	)

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	bus := events.NewBus()
	m := metrics.New()
	m.Attach(bus)

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable; event forwarding fails until it recovers", "addr", cfg.Redis.Addr, "error", err)
		}
		events.NewRedisForwarder(rdb, cfg.Redis.Channel, logger).Attach(bus)
		logger.Info("Forwarding events to redis", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	}
	defer bus.Wait()

	validator, err := validation.New()
	if err != nil {
		return fmt.Errorf("compile schemas: %w", err)
	}
	evaluator := rules.NewEvaluator(rules.WithExpressionErrorHandler(func(rule *models.BusinessRule, err error) {
		logger.Warn("rule expression failed", "rule_id", rule.ID, "error", err)
	}))

	workflowSvc := services.NewWorkflowService(repo, validator, logger)
	instanceSvc := services.NewInstanceService(repo, repo, bus, m, logger)
	ruleSvc := services.NewRuleService(repo, evaluator, validator, bus, m, logger)
	statsSvc := services.NewStatisticsService(repo)

	logger.Info("Service layer initialized")

	authz, err := auth.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("auth initialization failed: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler(logger)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(otelecho.Middleware("projectflow"))
	e.Use(api.RequestContext())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.InfoContext(c.Request().Context(), "request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			)
			return nil
		},
	}))

	server := &api.Server{
		Workflows:  workflowSvc,
		Instances:  instanceSvc,
		Rules:      ruleSvc,
		Statistics: statsSvc,
		Store:      repo,
		Logger:     logger,
	}

	e.GET("/health", server.HandleHealth)
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
	e.GET("/openapi.yaml", api.SpecHandler(cfg.Auth.Issuer))
	e.GET("/docs", api.DocsHandler())

	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	api.RegisterHandlers(apiGroup, server)

	logger.Info("REST API handlers mounted")

	mcpServer := mcp.NewServer(workflowSvc, instanceSvc, ruleSvc, statsSvc)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp", echo.WrapHandler(authz.RequireAuth(mcpHandlers)))
	e.Any("/mcp/*", echo.WrapHandler(authz.RequireAuth(mcpHandlers)))

	logger.Info("MCP protocol handlers mounted")

	addr := cfg.Server.Address
	if cfg.TLS.Enable {
		addr = cfg.Server.TLSAddress
		generated, err := tls.EnsureCertificate(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
		if err != nil {
			return fmt.Errorf("prepare tls certificate: %w", err)
		}
		if generated {
			logger.Warn("Generated self-signed certificate", "cert_file", cfg.TLS.CertFile, "hostnames", cfg.TLS.Hostnames)
		}
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			serverErrors <- httpServer.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- httpServer.ListenAndServe()
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := httpServer.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}
		logger.Info("Server stopped gracefully")
	}
	return nil
}

func runMigrate(ctx context.Context, configFile string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}
	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if cfg.DB.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate requires db.driver %q, got %q", config.DriverPostgres, cfg.DB.Driver)
	}

	pool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := repository.Migrate(ctx, pool); err != nil {
		return err
	}
	logger.Info("Database migrated")
	return nil
}

// openRepository returns the configured store and a function releasing it.
func openRepository(ctx context.Context, cfg *config.Config, logger *logging.Logger) (repository.Repository, func(), error) {
	if cfg.DB.Driver == config.DriverMemory {
		logger.Warn("Using in-memory store; data is lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	}

	pool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := repository.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("Database connected")
	return repository.NewPostgresStore(pool), pool.Close, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection", "host", cfg.DB.Host, "name", cfg.DB.Name)

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.DB.MaxConns > 0 {
		poolConfig.MaxConns = cfg.DB.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
