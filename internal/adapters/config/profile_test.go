package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/imsim/internal/application"
	"github.com/bnema/imsim/internal/domain"
)

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "profile.toml")

	profile, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, path, profile.Path)
	assert.Equal(t, DefaultBaseURL, profile.Discovery.BaseURL)
	assert.Equal(t, application.DefaultRegistryConfig(), profile.Registry)
	assert.Equal(t, application.DefaultScenarioConfig(), profile.Scenario)
}

func TestLoadFileAppliesOverrides(t *testing.T) {
	t.Parallel()

	path := writeProfile(t, `
version = 1

[discovery]
base_url = "http://gw.test:9000/api"
service = "chat-eu"
timeout = "3s"

[session]
heartbeat_interval = "15s"
sync_limit = 20
stagger_delay = "50ms"
default_device = "pc"

[scenario]
password = "hunter2"
kick_device = "mobile"
rounds = 8
storm_users = 10
cooldown = "250ms"

[[users]]
id = 1014
password = "alt"
device = "mobile"

[[users]]
id = 1015
`)

	profile, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, Discovery{BaseURL: "http://gw.test:9000/api", Service: "chat-eu", Timeout: 3 * time.Second}, profile.Discovery)
	assert.Equal(t, "chat-eu", profile.Registry.Service)
	assert.Equal(t, 15*time.Second, profile.Registry.Session.HeartbeatInterval)
	assert.Equal(t, uint32(20), profile.Registry.Session.SyncLimit)
	assert.Equal(t, domain.DefaultLogCapacity, profile.Registry.Session.LogCapacity)
	assert.Equal(t, 50*time.Millisecond, profile.Registry.StaggerDelay)
	assert.Equal(t, 200*time.Millisecond, profile.Registry.FriendAcceptDelay)
	assert.Equal(t, domain.DevicePC, profile.Registry.DefaultDevice)

	assert.Equal(t, "hunter2", profile.Scenario.Password)
	assert.Equal(t, domain.DeviceMobile, profile.Scenario.KickDevice)
	assert.Equal(t, 8, profile.Scenario.Rounds)
	assert.Equal(t, 10, profile.Scenario.StormUsers)
	assert.Equal(t, 250*time.Millisecond, profile.Scenario.Cooldown)
	assert.Equal(t, time.Second, profile.Scenario.Settle)

	require.Len(t, profile.Registry.Users, 2)
	assert.Equal(t, domain.Credentials{UserID: 1014, Password: "alt", DeviceType: domain.DeviceMobile}, profile.Registry.Users[1014])
	assert.Equal(t, domain.Credentials{UserID: 1015}, profile.Registry.Users[1015])
}

func TestLoadFileRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "newer schema", content: "version = 2\n", want: "unsupported profile schema version 2"},
		{name: "bad duration", content: "[session]\nheartbeat_interval = \"soon\"\n", want: "parse session.heartbeat_interval"},
		{name: "negative duration", content: "[scenario]\ncooldown = \"-1s\"\n", want: "negative duration"},
		{name: "bad device", content: "[scenario]\nkick_device = \"fax\"\n", want: "parse scenario.kick_device"},
		{name: "bad user id", content: "[[users]]\nid = 0\n", want: "users[0]"},
		{name: "not toml", content: "[[[", want: "decode profile file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := LoadFile(writeProfile(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadUsesViperProfilePath(t *testing.T) {
	t.Parallel()

	path := writeProfile(t, "[scenario]\nrounds = 3\n")
	cfg := viper.New()
	cfg.Set("profile.path", path)
	cfg.Set("log.level", "debug")
	cfg.Set("metrics.addr", "127.0.0.1:9100")

	profile, err := Load(cfg)
	require.NoError(t, err)

	assert.Equal(t, path, profile.Path)
	assert.Equal(t, 3, profile.Scenario.Rounds)
	assert.Equal(t, "debug", profile.LogLevel)
	assert.Equal(t, "127.0.0.1:9100", profile.MetricsAddr)
}

func TestLoadExpandsHomeInProfilePath(t *testing.T) {
	t.Parallel()

	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg := viper.New()
	cfg.Set("profile.path", "~/does-not-exist-imsim/profile.toml")

	profile, err := Load(cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(homeDir, "does-not-exist-imsim", "profile.toml"), profile.Path)
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "profile.toml")

	require.NoError(t, WriteDefault(path, false))
	err := WriteDefault(path, false)
	require.ErrorIs(t, err, ErrProfileExists)
	require.NoError(t, WriteDefault(path, true))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(profileFileMode), info.Mode().Perm())

	profile, err := LoadFile(path)
	require.NoError(t, err)
	want := DefaultProfile()
	want.Path = path
	assert.Equal(t, want, profile)
}

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
