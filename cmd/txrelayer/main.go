// Command txrelayer runs the transaction relayer service: the HTTP
// admission API plus every background loop (broadcaster, escalator,
// indexer, reorg reconcilers, pruner, metrics publisher). Grounded on
// the original implementation's src/main.rs / src/service.rs.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"txrelayer/internal/app"
	"txrelayer/internal/config"
	"txrelayer/internal/server"
	"txrelayer/internal/store"
	"txrelayer/internal/tasks"
	domain "txrelayer/internal/types"
)

func main() {
	cliApp := &cli.App{
		Name:  "txrelayer",
		Usage: "EVM transaction relayer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a TOML config file",
				EnvVars: []string{"TX_SITTER_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "apply the database schema and exit",
				Action: func(c *cli.Context) error {
					cfg, logger, err := loadConfigAndLogger(c)
					if err != nil {
						return err
					}
					defer logger.Sync()

					st, err := store.Open(cfg.Database.ConnectionString)
					if err != nil {
						return fmt.Errorf("open store: %w", err)
					}
					defer st.Close()

					return st.Migrate(c.Context)
				},
			},
			{
				Name:   "serve",
				Usage:  "run the relayer service (default)",
				Action: serve,
			},
		},
		Action: serve,
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "txrelayer:", err)
		os.Exit(1)
	}
}

func loadConfigAndLogger(c *cli.Context) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("build logger: %w", err)
	}

	return cfg, logger, nil
}

func serve(c *cli.Context) error {
	cfg, logger, err := loadConfigAndLogger(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg.Database.ConnectionString)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	keySource, err := app.NewKeySource(ctx, cfg.Keys)
	if err != nil {
		return fmt.Errorf("build key source: %w", err)
	}

	relayerApp := app.New(st, keySource, logger)
	defer relayerApp.Close()

	if err := relayerApp.DialNetworks(ctx); err != nil {
		return fmt.Errorf("dial networks: %w", err)
	}
	if err := relayerApp.SeedInitialBlocks(ctx); err != nil {
		return fmt.Errorf("seed initial blocks: %w", err)
	}

	runner := tasks.NewRunner(logger)
	deps := relayerApp.Deps()

	runner.Add(ctx, "broadcaster", tasks.NewBroadcaster(deps).Run)
	runner.Add(ctx, "escalator", tasks.NewEscalator(deps, cfg.Service.EscalationInterval.Duration).Run)
	runner.Add(ctx, "indexer", tasks.NewIndexer(deps).Run)
	runner.Add(ctx, "reorg-soft", tasks.NewReorgReconciler(deps, 12, domain.TxStatusMined, time.Minute).Run)
	runner.Add(ctx, "reorg-hard", tasks.NewReorgReconciler(deps, 64, domain.TxStatusFinalized, time.Hour).Run)
	runner.Add(ctx, "pruner", tasks.NewPruner(deps, time.Hour, 100_000).Run)
	runner.Add(ctx, "metrics", tasks.NewMetricsPublisher(deps).Run)

	addr, err := cfg.Server.Addr()
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr: addr,
		Handler: server.New(relayerApp, server.Config{
			DisableAuth: cfg.Server.DisableAuth,
			AdminUser:   cfg.Server.AdminUser,
			AdminPass:   cfg.Server.AdminPass,
		}, logger).Handler(),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	runner.Wait()
	logger.Info("shutdown complete")
	return nil
}
