package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	profileFileMode = 0o600
	profileDirMode  = 0o700
	tempFilePattern = ".profile-*.toml.tmp"
)

var ErrProfileExists = errors.New("profile file already exists")

// WriteDefault writes a profile with every default spelled out. An existing
// file is left untouched unless overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("write profile %s: %w", path, ErrProfileExists)
		}
	}
	return writeSchema(path, toSchema(DefaultProfile()))
}

func toSchema(p Profile) fileSchema {
	return fileSchema{
		Version: currentSchemaVersion,
		Discovery: discoverySchema{
			BaseURL: p.Discovery.BaseURL,
			Service: p.Discovery.Service,
			Timeout: formatDuration(p.Discovery.Timeout),
		},
		Session: sessionSchema{
			HeartbeatInterval: formatDuration(p.Registry.Session.HeartbeatInterval),
			SyncLimit:         p.Registry.Session.SyncLimit,
			LogCapacity:       p.Registry.Session.LogCapacity,
			StaggerDelay:      formatDuration(p.Registry.StaggerDelay),
			FriendAcceptDelay: formatDuration(p.Registry.FriendAcceptDelay),
			DefaultDevice:     p.Registry.DefaultDevice.String(),
		},
		Scenario: scenarioSchema{
			Password:       p.Scenario.Password,
			KickDevice:     p.Scenario.KickDevice.String(),
			Rounds:         p.Scenario.Rounds,
			StormUsers:     p.Scenario.StormUsers,
			StormMessages:  p.Scenario.StormMessages,
			BurstMessages:  p.Scenario.BurstMessages,
			Settle:         formatDuration(p.Scenario.Settle),
			Cooldown:       formatDuration(p.Scenario.Cooldown),
			OnlineTimeout:  formatDuration(p.Scenario.OnlineTimeout),
			ConfirmTimeout: formatDuration(p.Scenario.ConfirmTimeout),
		},
	}
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

func writeSchema(path string, file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(path), profileDirMode); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode profile file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp profile file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp profile file: %w", err)
	}
	if err := tempFile.Chmod(profileFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp profile file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp profile file: %w", err)
	}
	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace profile file: %w", err)
	}
	cleanup = false

	return nil
}
