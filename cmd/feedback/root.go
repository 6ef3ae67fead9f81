package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/feedback-desk/internal/config"
	"github.com/kingrea/feedback-desk/internal/inbox"
	"github.com/kingrea/feedback-desk/internal/logging"
	"github.com/kingrea/feedback-desk/internal/tui"
)

var (
	projectDir string
	verbose    bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "feedback",
		Short:         "Feedback and complaint kiosk",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if projectDir == "" {
				cwd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("get working directory: %w", err)
				}
				projectDir = cwd
			}
			abs, err := filepath.Abs(projectDir)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", projectDir, err)
			}
			projectDir = abs
			if err := config.InitFeedbackDir(projectDir); err != nil {
				return fmt.Errorf("initialize %s directory: %w", config.FeedbackDir, err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKiosk(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&projectDir, "dir", "", "kiosk directory (default: current directory)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug-level structured logs")

	root.AddCommand(newServeCmd(), newSendCmd())
	return root
}

// runKiosk opens the TUI with the drop-folder watcher attached.
func runKiosk(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := logging.New(projectDir, verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		return err
	}
	opts := []tui.AppOption{tui.WithLogger(logger)}

	watcher, err := inbox.New(cfg.InboxDir(), inbox.WithLogger(logger.Named("inbox")))
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("inbox unavailable", zap.Error(err))
	} else {
		defer watcher.Stop()
		opts = append(opts, tui.WithInbox(watcher.Batches()))
	}

	app, err := tui.NewApp(projectDir, opts...)
	if err != nil {
		return err
	}
	p := tea.NewProgram(
		app,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}
