package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/feedback-desk/internal/config"
	"github.com/kingrea/feedback-desk/internal/intake"
	"github.com/kingrea/feedback-desk/internal/logging"
)

const shutdownGrace = 5 * time.Second

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the intake server that receives kiosk submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.Console(verbose)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cfg, err := config.NewConfig(projectDir)
			if err != nil {
				return err
			}
			settings := intake.SettingsFromConfig(cfg)
			if cmd.Flags().Changed("port") {
				settings.Port = port
			}
			store, err := intake.OpenSQLite(settings.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			server := intake.NewServer(settings,
				intake.WithStore(store),
				intake.WithLogger(logger.Named("intake")),
			)
			if err := server.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Accepting submissions at %s/submissions\n", server.BaseURL())

			<-ctx.Done()
			logger.Info("shutting down", zap.String("addr", server.Addr()))
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config.yaml)")
	return cmd
}
