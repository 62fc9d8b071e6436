package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cpamm/internal/config"
	"cpamm/internal/journal"
	"cpamm/internal/metrics"
	"cpamm/internal/service"
	"cpamm/internal/store"
	"cpamm/internal/store/file"
	pebblestore "cpamm/internal/store/pebble"
	"cpamm/internal/store/postgres"
)

// app is the per-invocation runtime shared by the pool commands.
type app struct {
	ctx      context.Context
	stop     context.CancelFunc
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	svc      *service.Service
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		stop()
		_ = logger.Sync()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	opts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(metrics.New(registry)),
	}
	if cfg.Journal != "" {
		opts = append(opts, service.WithJournal(journal.NewJSONL(cfg.Journal)))
	}
	svc, err := service.Load(ctx, st, opts...)
	if err != nil {
		_ = st.Close()
		stop()
		_ = logger.Sync()
		return nil, err
	}

	logger.Debug("store open",
		zap.String("store", cfg.Store),
		zap.String("data_dir", cfg.DataDir),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("journal", cfg.Journal),
	)
	return &app{ctx: ctx, stop: stop, cfg: cfg, logger: logger, registry: registry, svc: svc}, nil
}

// Close writes the metrics snapshot and releases the store.
func (a *app) Close() {
	if a.cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(a.cfg.MetricsFile, a.registry); err != nil {
			a.logger.Warn("write metrics file", zap.Error(err), zap.String("path", a.cfg.MetricsFile))
		}
	}
	if err := a.svc.Close(); err != nil {
		a.logger.Warn("close store", zap.Error(err))
	}
	a.stop()
	_ = a.logger.Sync()
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.Store {
	case config.StoreFile:
		return file.NewStore(cfg.DataDir)
	case config.StorePebble:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return pebblestore.NewStore(filepath.Join(cfg.DataDir, "pebble"), nil)
	case config.StorePostgres:
		pg, err := postgres.NewStore(ctx, postgres.Options{
			DSN:          cfg.PGDSN,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			if cfg.Store != config.StorePostgres {
				return fmt.Errorf("migrate requires --store=postgres")
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()
			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			return printJSON(cmd.OutOrStdout(), map[string]string{"status": "migrated"})
		},
	}
}
