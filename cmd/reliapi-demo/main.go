package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"reliapi-demo/internal/client"
	"reliapi-demo/internal/config"
	"reliapi-demo/internal/demo"
	"reliapi-demo/internal/handler"
	"reliapi-demo/internal/metrics"
	"reliapi-demo/internal/middleware"
	"reliapi-demo/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	ctx := kong.Parse(&cli,
		kong.Name("reliapi-demo"),
		kong.Description("Demonstrates the ReliAPI HTTP and LLM proxy endpoints."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	common := fx.Provide(
		func() *config.CLI { return &cli },
		config.Load,
		newLogger,
		metrics.New,
	)
	fxLogger := fx.WithLogger(newFxLogger)

	switch ctx.Command() {
	case "mock":
		fx.New(
			common,
			fxLogger,
			fx.Provide(
				func() handler.Version { return handler.Version(version) },
				newEcho,
				service.NewMockService,
				handler.NewProxyHandler,
				handler.NewHealthHandler,
			),
			fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, startServer),
		).Run()
	default:
		fx.New(
			common,
			fxLogger,
			fx.Provide(
				fx.Annotate(client.NewReliAPIClient, fx.As(new(demo.Proxy))),
				func() io.Writer { return os.Stdout },
				demo.NewRunner,
			),
			fx.Invoke(warnConfigPermissions, warnPlaceholderKey, runDemos),
		).Run()
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	// Logs go to stderr so they never interleave with the demo narration.
	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		h = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(h)
}

// newFxLogger routes container lifecycle events through slog at debug level.
func newFxLogger(logger *slog.Logger) fxevent.Logger {
	l := &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
	l.UseLogLevel(slog.LevelDebug)
	return l
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.RequestMetrics(m))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Mock.BodyMaxBytes)))
	e.Use(middleware.SecurityHeaders())

	if cfg.Mock.RateLimit.Enabled {
		e.Use(middleware.RateLimiter(cfg.Mock.RateLimit.RequestsPerSecond))
		logger.Info("rate limiter enabled", "rps", cfg.Mock.RateLimit.RequestsPerSecond)
	}

	return e
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func warnPlaceholderKey(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPlaceholderKey(logger)
}

// runDemos runs the demonstrations once the app has started and shuts the
// app down when they finish.
func runDemos(lc fx.Lifecycle, sd fx.Shutdowner, r *demo.Runner, cli *config.CLI, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				defer close(done)
				code := 0
				if err := r.RunAll(ctx, cli.Demo.Only); err != nil {
					logger.Error("demonstrations not run", "err", err)
					code = 2
				}
				if err := sd.Shutdown(fx.ExitCode(code)); err != nil {
					logger.Error("shutdown", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Mock.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting mock server", "addr", addr, "api_key_header", cfg.ReliAPI.APIKeyHeader)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down mock server")
			return e.Shutdown(ctx)
		},
	})
}
