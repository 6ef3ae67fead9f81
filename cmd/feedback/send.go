package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/feedback-desk/internal/config"
	"github.com/kingrea/feedback-desk/internal/form"
	"github.com/kingrea/feedback-desk/internal/logging"
	"github.com/kingrea/feedback-desk/internal/media"
	"github.com/kingrea/feedback-desk/internal/submission"
	"github.com/kingrea/feedback-desk/internal/transport"
	"github.com/kingrea/feedback-desk/internal/wizard"
)

type sendOptions struct {
	language string
	name     string
	address  string
	phone    string
	details  string
	images   []string
	endpoint string
}

func newSendCmd() *cobra.Command {
	var opts sendOptions
	cmd := &cobra.Command{
		Use:   "send",
		Short: "File one feedback record without the TUI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(projectDir, verbose)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cfg, err := config.NewConfig(projectDir)
			if err != nil {
				return err
			}
			trCfg := cfg.Transport()
			if opts.endpoint != "" {
				trCfg.Mode = config.TransportHTTP
				trCfg.Endpoint = opts.endpoint
			}
			tr, err := transport.New(trCfg)
			if err != nil {
				return err
			}
			ctrl := wizard.New(
				media.New(media.WithLogger(logger.Named("media")), media.WithMaxConcurrent(cfg.MaxConcurrentDecodes())),
				submission.New(tr, submission.WithLogger(logger.Named("submission"))),
				wizard.WithLogger(logger.Named("wizard")),
			)
			ref, err := sendRecord(cmd.Context(), ctrl, opts, cmd.OutOrStdout())
			if err != nil {
				logger.Error("send failed", zap.Error(err))
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted. Reference ID: %s\n", ref)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.language, "language", string(form.LanguageEnglish), "english, nepali or hindi")
	cmd.Flags().StringVar(&opts.name, "name", "", "full name")
	cmd.Flags().StringVar(&opts.address, "address", "", "address")
	cmd.Flags().StringVar(&opts.phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&opts.details, "details", "", "feedback text (at most 1000 characters)")
	cmd.Flags().StringArrayVar(&opts.images, "image", nil, "photo to attach (repeatable, at most 5)")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "POST to this intake URL instead of the configured transport")
	return cmd
}

// sendRecord walks the controller through every screen the way the TUI
// does and returns the reference issued on success.
func sendRecord(ctx context.Context, ctrl *wizard.Controller, opts sendOptions, out io.Writer) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	lang, ok := form.ParseLanguage(opts.language)
	if !ok {
		return "", fmt.Errorf("unknown language %q", opts.language)
	}
	ctrl.SelectLanguage(lang)
	if err := ctrl.Continue(); err != nil {
		return "", err
	}

	ctrl.SetName(opts.name)
	ctrl.SetAddress(opts.address)
	ctrl.SetPhone(opts.phone)
	if err := ctrl.Continue(); err != nil {
		var verr *form.ValidationError
		if errors.As(err, &verr) {
			return "", fmt.Errorf("contact details: %s", describeErrors(ctrl.Errors()))
		}
		return "", err
	}

	ctrl.SetDetails(opts.details)
	if len(opts.images) > 0 {
		cands := make([]media.Candidate, 0, len(opts.images))
		for _, path := range opts.images {
			cands = append(cands, media.FileCandidate(path))
		}
		adm, outcomes := ctrl.IngestAndWait(ctx, cands)
		rejected := append([]media.Rejection(nil), adm.Rejected...)
		for _, o := range outcomes {
			if !o.Applied {
				rejected = append(rejected, o.Rejection)
			}
		}
		for _, r := range rejected {
			fmt.Fprintf(out, "Skipped %s: %s\n", r.Name, r.Reason)
		}
	}
	if err := ctrl.Continue(); err != nil {
		return "", err
	}

	ticket, err := ctrl.BeginSubmit()
	if err != nil {
		return "", err
	}
	res := ctrl.SettleSubmit(ctrl.Coordinator().Deliver(ctx, ticket))
	if !res.OK() {
		return "", fmt.Errorf("%s: %w", ctrl.SubmissionState().Message, res.Err)
	}
	return ctrl.Reference(), nil
}

func describeErrors(errs form.FieldErrors) string {
	parts := make([]string, 0, len(errs))
	for _, field := range errs.Fields() {
		parts = append(parts, errs[field])
	}
	return strings.Join(parts, "; ")
}
