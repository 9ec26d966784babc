package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/scheduler"
	transport "trivia-live-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server and the match scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if portFlag != "" {
		cfg.Server.Port = portFlag
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger); err != nil {
			return err
		}
	}

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	hub := transport.NewHub(logger)
	// With redis the lifecycle publishes synchro updates there and every
	// instance relays them to its own sockets; otherwise it feeds the hub directly.
	var notifier app.Notifier = hub
	if b.synchro != nil {
		notifier = b.synchro
	}
	service := b.service(notifier)

	checks := map[string]transport.Checker{}
	if b.redis != nil {
		checks["redis"] = transport.CheckFunc(func(ctx context.Context) error { return b.redis.Ping(ctx).Err() })
	}
	if b.pool != nil {
		checks["postgres"] = transport.CheckFunc(b.pool.Ping)
	}
	handler := transport.NewHandler(service, hub, transport.NewHealthHandler(logger, checks), logger)
	if b.synchro != nil {
		handler.WithSnapshots(b.synchro)
	}

	sweep := service.StartDueMatches
	if cfg.Match.Debug {
		logger.Warn("debug sweep enabled, every match runs regardless of schedule")
		sweep = service.StartAllMatches
	}
	sched, err := scheduler.New(sweep, scheduler.Options{
		Interval:       cfg.Match.SweepInterval,
		Timeout:        cfg.Match.SweepTimeout,
		RunImmediately: true,
	}, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting trivia service", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if b.synchro != nil {
		g.Go(func() error {
			err := b.synchro.Listen(gctx, hub.MatchUpdated)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	sched.Start()

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		if err := sched.Shutdown(); err != nil {
			logger.Warn("scheduler shutdown", "error", err)
		}
		service.StopMatches()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
