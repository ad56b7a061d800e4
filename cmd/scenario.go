package cmd

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/imsim/internal/application"
	"github.com/bnema/imsim/internal/domain"
)

func newScenarioCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "List and run scripted multi-user scenarios",
	}

	cmd.AddCommand(newScenarioListCmd(app), newScenarioRunCmd(app))

	return cmd
}

func newScenarioListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range app.engine.Names() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

type scenarioRunOptions struct {
	start    int64
	logLines int
	asJSON   bool
}

type scenarioOutput struct {
	Report   application.Report     `json:"report"`
	Sessions []domain.SessionStatus `json:"sessions"`
}

func newScenarioRunCmd(app *app) *cobra.Command {
	var opts scenarioRunOptions

	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Run one scenario and show the resulting sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, app, args[0], opts)
		},
	}

	cmd.Flags().Int64Var(&opts.start, "start", 1014, "First user ID used by the scenario")
	cmd.Flags().IntVar(&opts.logLines, "logs", 5, "Log lines shown per session")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Render JSON output")

	return cmd
}

func runScenario(cmd *cobra.Command, app *app, name string, opts scenarioRunOptions) error {
	start := domain.UserID(opts.start)
	if err := (domain.UserRange{Start: start, Count: 1}).Validate(); err != nil {
		return fmt.Errorf("parse --start: %w", err)
	}
	if !slices.Contains(app.engine.Names(), name) {
		return fmt.Errorf("run scenario %q (available: %s): %w", name, strings.Join(app.engine.Names(), ", "), domain.ErrUnknownScenario)
	}

	defer app.registry.DisconnectAll()

	var report application.Report
	runErr := runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), fmt.Sprintf("Running scenario %s...", name), app.snapshots.Summary, func(ctx context.Context) error {
		var err error
		report, err = app.engine.Run(ctx, name, start)
		return err
	})

	snapshot := app.registry.Snapshot()
	if opts.asJSON {
		if err := writeJSON(cmd, scenarioOutput{Report: report, Sessions: snapshot}); err != nil {
			return err
		}
		return runErr
	}

	if _, err := fmt.Fprintln(cmd.OutOrStdout(), reportLine(report, runErr)); err != nil {
		return err
	}
	if err := writeSnapshotOutput(cmd, app, snapshot, opts.logLines, false); err != nil {
		return err
	}
	return runErr
}

func reportLine(report application.Report, err error) string {
	outcome := "completed"
	switch {
	case err != nil:
		outcome = "failed"
	case report.Aborted:
		outcome = "aborted"
	}

	users := make([]string, 0, len(report.Users))
	for _, id := range report.Users {
		users = append(users, id.String())
	}
	return fmt.Sprintf("Scenario %s %s: users=%s operations=%d duration=%s",
		report.Name, outcome, strings.Join(users, ","), report.Operations, report.Duration.Round(time.Millisecond))
}
