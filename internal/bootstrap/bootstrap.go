// Package bootstrap holds the process lifecycle shared by the fieldops
// binaries: environment loading, logger setup, resource teardown and the
// signal-bound run group.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/fieldops-backend/pkg/config"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
)

// Task is a long-running unit that returns when ctx is cancelled.
type Task func(ctx context.Context) error

type closer struct {
	name string
	fn   func() error
}

// Process carries the loaded config and logger for one binary.
type Process struct {
	Kind   string
	Config *config.Config
	Logger *logger.Logger

	closers []closer
	exit    func(code int)
}

// Start loads .env and config, then builds the configured logger. Any
// failure here terminates the process.
func Start(kind string) *Process {
	p := &Process{
		Kind:   kind,
		Logger: logger.New(logger.Options{ServiceName: kind}),
		exit:   os.Exit,
	}
	if err := godotenv.Load(); err != nil {
		p.Logger.Debug(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	p.Must("config", err)
	cfg.Service.Kind = kind
	p.Config = cfg

	p.Logger = logger.New(logger.Options{
		ServiceName: kind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	return p
}

// Must aborts startup when a resource failed to initialise. Resources
// registered so far are closed first.
func (p *Process) Must(resource string, err error) {
	if err == nil {
		return
	}
	p.Logger.Error(context.Background(), fmt.Sprintf("failed to initialise %s", resource), err)
	p.Close()
	p.exit(1)
}

// OnClose registers a teardown hook. Hooks run in reverse order.
func (p *Process) OnClose(name string, fn func() error) {
	p.closers = append(p.closers, closer{name: name, fn: fn})
}

// Close runs every registered hook once and logs the combined failures.
func (p *Process) Close() {
	var errs error
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if err := c.fn(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	p.closers = nil
	if errs != nil {
		p.Logger.Error(context.Background(), "shutdown finished with errors", errs)
	}
}

// Context returns a context cancelled on SIGINT or SIGTERM, tagged with the
// environment and service kind.
func (p *Process) Context() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = p.Logger.WithFields(ctx, map[string]any{
		"env":         p.Config.App.Env,
		"serviceKind": p.Kind,
	})
	return ctx, stop
}

// Run starts every task and waits. The first failing task cancels the
// rest. Cancellation by signal is a clean exit; anything else exits 1 after
// teardown.
func (p *Process) Run(tasks ...Task) {
	ctx, stop := p.Context()
	defer stop()

	p.Logger.Info(ctx, p.Kind+" starting")
	err := runAll(ctx, tasks...)
	if err != nil {
		p.Logger.Error(ctx, p.Kind+" stopped unexpectedly", err)
		p.Close()
		p.exit(1)
		return
	}
	p.Logger.Info(ctx, p.Kind+" shut down gracefully")
	p.Close()
}

func runAll(ctx context.Context, tasks ...Task) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		group.Go(func() error { return task(groupCtx) })
	}
	err := group.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
