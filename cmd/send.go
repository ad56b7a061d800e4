package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/imsim/internal/domain"
)

type sendOptions struct {
	start    int64
	count    int
	to       string
	text     string
	hold     time.Duration
	ackWait  time.Duration
	logLines int
	asJSON   bool
}

func newSendCmd(app *app) *cobra.Command {
	var opts sendOptions

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Log in a range of users and have each send a message to one target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSend(cmd, app, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.start, "start", 1014, "First sender user ID")
	cmd.Flags().IntVar(&opts.count, "count", 5, "Number of consecutive senders")
	cmd.Flags().StringVar(&opts.to, "to", "", "Target user ID")
	cmd.Flags().StringVar(&opts.text, "text", "Hello from imsim", "Message content")
	cmd.Flags().DurationVar(&opts.hold, "hold", 3*time.Second, "How long to wait for logins to settle")
	cmd.Flags().DurationVar(&opts.ackWait, "ack-wait", time.Second, "How long to wait for acknowledgements after sending")
	cmd.Flags().IntVar(&opts.logLines, "logs", 3, "Log lines shown per session")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Render JSON output")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func runSend(cmd *cobra.Command, app *app, opts sendOptions) error {
	users := domain.UserRange{Start: domain.UserID(opts.start), Count: opts.count}
	if err := users.Validate(); err != nil {
		return err
	}
	target, err := domain.ParseUserID(opts.to)
	if err != nil {
		return fmt.Errorf("parse --to: %w", err)
	}

	ctx := cmd.Context()
	defer app.registry.DisconnectAll()

	if err := app.registry.LoginBatch(ctx, users.Start, users.Count, ""); err != nil {
		return err
	}
	waitSettled(ctx, app.registry, opts.hold)

	sent := app.registry.SendAll(target, opts.text)
	app.logger.Info("messages sent", "target", int64(target), "sent", sent)
	if !opts.asJSON {
		if _, err := fmt.Fprintf(cmd.ErrOrStderr(), "sent %d messages to %s\n", sent, target); err != nil {
			return err
		}
	}

	if sent > 0 && opts.ackWait > 0 {
		timer := time.NewTimer(opts.ackWait)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
	}

	return writeSnapshotOutput(cmd, app, app.registry.Snapshot(), opts.logLines, opts.asJSON)
}
