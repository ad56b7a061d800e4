package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/imsim/internal/domain"
)

var errDeviceNeedsSingleLogin = errors.New("--device applies to single logins only (--count 1)")

type loginOptions struct {
	start    int64
	count    int
	password string
	device   string
	hold     time.Duration
	logLines int
	asJSON   bool
}

func newLoginCmd(app *app) *cobra.Command {
	var opts loginOptions

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in a range of users and show their sessions",
		Long:  "Log in --count users starting at --start, wait up to --hold for the logins to settle, print the session table, then disconnect everyone.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd, app, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.start, "start", 1014, "First user ID")
	cmd.Flags().IntVar(&opts.count, "count", 1, "Number of consecutive users")
	cmd.Flags().StringVar(&opts.password, "password", "", "Password (default: profile override, then pass123)")
	cmd.Flags().StringVar(&opts.device, "device", "", "Device type for a single login: mobile, pc or web")
	cmd.Flags().DurationVar(&opts.hold, "hold", 3*time.Second, "How long to wait for logins to settle")
	cmd.Flags().IntVar(&opts.logLines, "logs", 3, "Log lines shown per session")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Render JSON output")

	return cmd
}

func runLogin(cmd *cobra.Command, app *app, opts loginOptions) error {
	users := domain.UserRange{Start: domain.UserID(opts.start), Count: opts.count}
	if err := users.Validate(); err != nil {
		return err
	}
	device, err := parseDeviceFlag(opts.device)
	if err != nil {
		return err
	}
	if device != domain.DeviceUnknown && opts.count != 1 {
		return errDeviceNeedsSingleLogin
	}

	ctx := cmd.Context()
	defer app.registry.DisconnectAll()

	if opts.count == 1 {
		if err := app.registry.LoginSingle(ctx, users.Start, opts.password, device); err != nil {
			return err
		}
	} else if err := app.registry.LoginBatch(ctx, users.Start, users.Count, opts.password); err != nil {
		return err
	}

	waitSettled(ctx, app.registry, opts.hold)
	if app.registry.Len() == 0 {
		return fmt.Errorf("login %d users from %s: %w", users.Count, users.Start, domain.ErrDiscovery)
	}
	return writeSnapshotOutput(cmd, app, app.registry.Snapshot(), opts.logLines, opts.asJSON)
}
