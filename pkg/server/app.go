package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-co-op/gocron"

	"FinFeat/internal/repository"
	"FinFeat/internal/usecase"
	pkgch "FinFeat/pkg/clickhouse"
	"FinFeat/pkg/config"
	xhttp "FinFeat/pkg/http"
	applogger "FinFeat/pkg/logger"
)

// Run modes.
const (
	ModeBuild      = "build"
	ModeServe      = "serve"
	ModeSync       = "sync"
	ModeInitSchema = "init-schema"
)

type closer struct {
	name string
	c    io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	runner      *usecase.BuildRunner
	candles     *usecase.CandlesUseCase
	httpHandler xhttp.Handler
	chClient    *pkgch.Client
	httpServer  *xhttp.Server
	scheduler   *gocron.Scheduler
	closers     []closer
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	runner *usecase.BuildRunner,
	candles *usecase.CandlesUseCase,
	handler xhttp.Handler,
) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{cfg: cfg, log: log.With("app"), runner: runner, candles: candles, httpHandler: handler}
}

// SetClickHouse attaches the ClickHouse client used by init-schema.
func (a *App) SetClickHouse(c *pkgch.Client) {
	a.chClient = c
	if c != nil {
		a.OnClose("clickhouse", c)
	}
}

// OnClose registers a resource closed at shutdown, in registration order.
func (a *App) OnClose(name string, c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, closer{name: name, c: c})
	}
}

// Run executes mode and returns when it finishes or ctx is cancelled.
// families restricts build and sync to the named families; empty means all.
func (a *App) Run(ctx context.Context, mode string, families []string) error {
	defer a.close()

	switch mode {
	case ModeBuild:
		return a.build(ctx, families)
	case ModeSync:
		return a.sync(ctx, families)
	case ModeServe:
		return a.serve(ctx)
	case ModeInitSchema:
		return a.initSchema(ctx)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func (a *App) build(ctx context.Context, families []string) error {
	start := time.Now()
	if len(families) == 0 {
		err := a.runner.RunAll(ctx)
		a.log.Info("build finished", applogger.Duration("took", time.Since(start)), applogger.Bool("ok", err == nil))
		return err
	}
	var errs []error
	for _, f := range families {
		res, err := a.runner.Run(ctx, f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		a.log.Info("family built",
			applogger.String("family", f),
			applogger.String("metadata", res.MetadataPath),
			applogger.Int("train", res.TrainSamples),
			applogger.Int("test", res.TestSamples),
		)
	}
	return errors.Join(errs...)
}

func (a *App) sync(ctx context.Context, families []string) error {
	if len(families) == 0 {
		families = a.runner.Families()
	}
	var errs []error
	for _, f := range families {
		cfg, ok := a.runner.Config(f)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", usecase.ErrUnknownFamily, f))
			continue
		}
		res, err := a.candles.Sync(ctx, cfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", f, err))
			continue
		}
		if len(res.Failed) > 0 {
			a.log.Warn("sync incomplete", applogger.String("family", f), applogger.Strings("failed", res.Failed))
		}
	}
	return errors.Join(errs...)
}

func (a *App) initSchema(ctx context.Context) error {
	if a.chClient == nil {
		return errors.New("init-schema needs clickhouse configured")
	}
	ictx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := a.chClient.InitSchema(ictx, repository.CandleSchema(a.chClient.Database())); err != nil {
		return fmt.Errorf("clickhouse schema: %w", err)
	}
	a.log.Info("clickhouse schema ready", applogger.String("database", a.chClient.Database()))
	return nil
}

// serve runs the HTTP API and the optional rebuild schedule until ctx ends.
func (a *App) serve(ctx context.Context) error {
	if a.cfg.Schedule.Enabled {
		if err := a.startScheduler(ctx); err != nil {
			return err
		}
	}

	opts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	}
	if a.cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(a.cfg.Metrics.Path))
	}
	a.httpServer = xhttp.NewServer(a.httpHandler, a.log, opts...)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("serving", applogger.Int("port", a.cfg.Server.Port), applogger.Strings("families", a.runner.Families()))

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) startScheduler(ctx context.Context) error {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	_, err := s.Cron(a.cfg.Schedule.Cron).Do(func() {
		a.log.Info("scheduled rebuild started")
		if err := a.runner.RunAll(ctx); err != nil {
			a.log.Error("scheduled rebuild failed", applogger.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", a.cfg.Schedule.Cron, err)
	}
	s.StartAsync()
	a.scheduler = s
	a.log.Info("rebuild schedule armed", applogger.String("cron", a.cfg.Schedule.Cron))
	return nil
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if err := a.runner.Shutdown(ctx); err != nil {
		a.log.Warn("builds cancelled at shutdown", applogger.Error(err))
	}
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) close() {
	for _, c := range a.closers {
		if err := c.c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
		}
	}
	a.closers = nil
}
