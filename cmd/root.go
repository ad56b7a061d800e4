package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bnema/imsim/internal/adapters/metrics"
)

func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "imsim",
		Short:         "IM gateway session simulator",
		Long:          "imsim drives many protocol-level client sessions against an IM gateway: batch logins, message fan-out, and scripted scenarios covering offline delivery, group storms, and multi-device kicks.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	var metricsAddr string
	var stopMetrics func()
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", app.profile.MetricsAddr, "Serve Prometheus metrics on this address while the command runs")
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		stop, err := startMetricsServer(metricsAddr, metrics.Handler(app.gatherer), app.logger)
		if err != nil {
			return err
		}
		stopMetrics = stop
		return nil
	}
	rootCmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if stopMetrics != nil {
			stopMetrics()
		}
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(app),
		newLoginCmd(app),
		newSendCmd(app),
		newScenarioCmd(app),
	)

	return rootCmd
}
