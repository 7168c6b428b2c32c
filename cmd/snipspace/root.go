package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sakif/snipspace/internal/auth"
	"github.com/sakif/snipspace/internal/config"
	"github.com/sakif/snipspace/internal/logging"
	"github.com/sakif/snipspace/internal/metrics"
	"github.com/sakif/snipspace/internal/repository/sqlite"
	"github.com/sakif/snipspace/internal/scope"
	"github.com/sakif/snipspace/internal/service"
)

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "snipspace",
		Short:        "Per-user snippet namespaces with annotations",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")

	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(newFsckCommand(&configPath))
	return root
}

// app is everything a command needs once the configuration is loaded.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *sqlite.DB
	metrics *metrics.Metrics
	scopes  *scope.Manager
	engine  *service.Engine
}

func openApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		logging.Bootstrap().Error("loading configuration failed", zap.String("file", configPath), zap.Error(err))
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Production)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)

	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create database directory failed")
		}
	}
	db, err := sqlite.New(cfg.Database.Path,
		sqlite.WithBusyTimeout(cfg.Database.BusyTimeoutDuration()),
		sqlite.WithLogger(logger),
	)
	if err != nil {
		return nil, errors.Wrap(err, "open database failed")
	}

	m := metrics.New()
	scopes := scope.New(scope.Config{AcquireTimeout: cfg.Scope.AcquireTimeoutDuration()}, logger, m)
	engine := service.NewEngine(service.Deps{
		Store:   db,
		Scopes:  scopes,
		Logger:  logger,
		Metrics: m,
	}, auth.NewPasswordService(cfg.Auth.BcryptCost))

	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		metrics: m,
		scopes:  scopes,
		engine:  engine,
	}, nil
}

// Close waits for running mutations, then closes the database.
func (a *app) Close() {
	a.scopes.Close()
	if err := a.db.Close(); err != nil {
		a.logger.Error("closing database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
