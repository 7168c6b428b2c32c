package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sakif/snipspace/internal/auth"
	"github.com/sakif/snipspace/internal/server"
)

func newServeCommand(configPath *string) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve [-c config_file] [-p port]",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if port > 0 {
				a.cfg.Server.Port = port
			}

			tokens, err := auth.NewTokenService(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTLDuration())
			if err != nil {
				a.logger.Error("auth is misconfigured; set auth.jwt-secret or JWT_SECRET", zap.Error(err))
				return err
			}

			srv := server.New(server.Config{
				Port:            a.cfg.Server.Port,
				ReadTimeout:     a.cfg.Server.ReadTimeoutDuration(),
				WriteTimeout:    a.cfg.Server.WriteTimeoutDuration(),
				ShutdownTimeout: a.cfg.Server.ShutdownTimeoutDuration(),
				SecureCookies:   a.cfg.Server.SecureCookies,
			}, server.Deps{
				Engine:  a.engine,
				Tokens:  tokens,
				Metrics: a.metrics,
				Logger:  a.logger,
				Health:  a.db.Ping,
			})

			a.logger.Info("configuration loaded",
				zap.String("file", a.cfg.File),
				zap.String("database", a.cfg.Database.Path),
			)
			return srv.Start(cmd.Context())
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides the config file)")
	return cmd
}
