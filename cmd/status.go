package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	statusadapter "github.com/bnema/imsim/internal/adapters/render/status"
	"github.com/bnema/imsim/internal/application"
	"github.com/bnema/imsim/internal/domain"
)

const (
	settlePollInterval = 50 * time.Millisecond
	staleAfter         = 10 * time.Second
)

func writeSnapshotOutput(cmd *cobra.Command, app *app, sessions []domain.SessionStatus, logLines int, asJSON bool) error {
	if asJSON {
		return writeJSON(cmd, sessions)
	}

	rendered, err := app.statusRenderer(sessions, statusadapter.RenderOptions{
		Now:        app.now(),
		StaleAfter: staleAfter,
		LogLines:   logLines,
	})
	if err != nil {
		return fmt.Errorf("render sessions: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// waitSettled polls until no session is still connecting or handshaking, or
// until timeout. Running out of time is not an error: the snapshot shows
// whatever state was reached.
func waitSettled(ctx context.Context, registry *application.Registry, timeout time.Duration) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(settlePollInterval)
	defer ticker.Stop()

	for {
		if settled(registry.Snapshot()) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
		}
	}
}

func settled(sessions []domain.SessionStatus) bool {
	for _, s := range sessions {
		if s.Status == domain.StatusConnecting || s.Status == domain.StatusHandshaking {
			return false
		}
	}
	return true
}

func parseDeviceFlag(raw string) (domain.DeviceType, error) {
	if raw == "" {
		return domain.DeviceUnknown, nil
	}
	device, err := domain.ParseDeviceType(raw)
	if err != nil {
		return domain.DeviceUnknown, fmt.Errorf("parse --device: %w", err)
	}
	return device, nil
}
