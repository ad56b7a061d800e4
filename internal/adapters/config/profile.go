// Package config loads the simulator profile: viper locates the settings
// file and go-toml decodes the versioned profile it points to.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/bnema/imsim/internal/application"
	"github.com/bnema/imsim/internal/domain"
)

const (
	configName     = "config"
	configType     = "toml"
	envPrefix      = "IMSIM"
	profilePathKey = "profile.path"
	logLevelKey    = "log.level"
	metricsAddrKey = "metrics.addr"
	configDir      = ".imsim"
	profileFile    = "profile.toml"

	DefaultBaseURL = "http://localhost:8080/api"
)

type Discovery struct {
	BaseURL string
	Service string
	Timeout time.Duration
}

// Profile is everything the CLI needs to build a registry and an engine.
type Profile struct {
	Path        string
	LogLevel    string
	MetricsAddr string
	Discovery   Discovery
	Registry    application.RegistryConfig
	Scenario    application.ScenarioConfig
}

func DefaultProfile() Profile {
	return Profile{
		LogLevel: "info",
		Discovery: Discovery{
			BaseURL: DefaultBaseURL,
			Service: "chat",
			Timeout: 10 * time.Second,
		},
		Registry: application.DefaultRegistryConfig(),
		Scenario: application.DefaultScenarioConfig(),
	}
}

// Load reads ~/.imsim/config.toml (or IMSIM_* environment overrides) to find
// the profile, then decodes it. Missing files yield the defaults.
func Load(cfg *viper.Viper) (Profile, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Profile{}, fmt.Errorf("resolve home directory: %w", err)
	}

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(filepath.Join(homeDir, configDir))
	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()
	cfg.SetDefault(profilePathKey, filepath.Join(homeDir, configDir, profileFile))
	cfg.SetDefault(logLevelKey, "info")
	cfg.SetDefault(metricsAddrKey, "")

	if err := cfg.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return Profile{}, fmt.Errorf("read config file: %w", err)
		}
	}

	path := cfg.GetString(profilePathKey)
	if path == "" {
		return Profile{}, errors.New("profile path is empty")
	}
	path, err = normalizePath(path, homeDir)
	if err != nil {
		return Profile{}, err
	}

	profile, err := LoadFile(path)
	if err != nil {
		return Profile{}, err
	}
	profile.LogLevel = cfg.GetString(logLevelKey)
	profile.MetricsAddr = cfg.GetString(metricsAddrKey)
	return profile, nil
}

// LoadFile decodes one profile file over the defaults. A missing file is not
// an error.
func LoadFile(path string) (Profile, error) {
	profile := DefaultProfile()
	profile.Path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return profile, nil
		}
		return Profile{}, fmt.Errorf("read profile file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return Profile{}, fmt.Errorf("decode profile file: %w", err)
	}
	file.applyDefaults()
	if err := file.validateVersion(); err != nil {
		return Profile{}, err
	}

	if err := file.apply(&profile); err != nil {
		return Profile{}, fmt.Errorf("apply profile %s: %w", path, err)
	}
	return profile, nil
}

func (s fileSchema) apply(p *Profile) error {
	d := s.Discovery
	setString(&p.Discovery.BaseURL, d.BaseURL)
	setString(&p.Discovery.Service, d.Service)
	setString(&p.Registry.Service, d.Service)
	if err := setDuration(&p.Discovery.Timeout, "discovery.timeout", d.Timeout); err != nil {
		return err
	}

	sess := s.Session
	if err := setDuration(&p.Registry.Session.HeartbeatInterval, "session.heartbeat_interval", sess.HeartbeatInterval); err != nil {
		return err
	}
	if sess.SyncLimit > 0 {
		p.Registry.Session.SyncLimit = sess.SyncLimit
	}
	setInt(&p.Registry.Session.LogCapacity, sess.LogCapacity)
	if err := setDuration(&p.Registry.StaggerDelay, "session.stagger_delay", sess.StaggerDelay); err != nil {
		return err
	}
	if err := setDuration(&p.Registry.FriendAcceptDelay, "session.friend_accept_delay", sess.FriendAcceptDelay); err != nil {
		return err
	}
	if err := setDevice(&p.Registry.DefaultDevice, "session.default_device", sess.DefaultDevice); err != nil {
		return err
	}

	sc := s.Scenario
	setString(&p.Scenario.Password, sc.Password)
	if err := setDevice(&p.Scenario.KickDevice, "scenario.kick_device", sc.KickDevice); err != nil {
		return err
	}
	setInt(&p.Scenario.Rounds, sc.Rounds)
	setInt(&p.Scenario.StormUsers, sc.StormUsers)
	setInt(&p.Scenario.StormMessages, sc.StormMessages)
	setInt(&p.Scenario.BurstMessages, sc.BurstMessages)
	for _, d := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"scenario.settle", sc.Settle, &p.Scenario.Settle},
		{"scenario.cooldown", sc.Cooldown, &p.Scenario.Cooldown},
		{"scenario.online_timeout", sc.OnlineTimeout, &p.Scenario.OnlineTimeout},
		{"scenario.confirm_timeout", sc.ConfirmTimeout, &p.Scenario.ConfirmTimeout},
	} {
		if err := setDuration(d.dst, d.key, d.raw); err != nil {
			return err
		}
	}

	if len(s.Users) > 0 {
		p.Registry.Users = make(map[domain.UserID]domain.Credentials, len(s.Users))
	}
	for i, u := range s.Users {
		if u.ID <= 0 {
			return fmt.Errorf("users[%d]: %w", i, domain.ErrInvalidUserRange)
		}
		id := domain.UserID(u.ID)
		creds := domain.Credentials{UserID: id, Password: u.Password}
		if err := setDevice(&creds.DeviceType, fmt.Sprintf("users[%d].device", i), u.Device); err != nil {
			return err
		}
		p.Registry.Users[id] = creds
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	if d < 0 {
		return fmt.Errorf("parse %s: negative duration %s", key, raw)
	}
	*dst = d
	return nil
}

func setDevice(dst *domain.DeviceType, key, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	device, err := domain.ParseDeviceType(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = device
	return nil
}

func normalizePath(path, homeDir string) (string, error) {
	if path == "~" {
		path = homeDir
	} else if strings.HasPrefix(path, "~/") {
		path = filepath.Join(homeDir, path[2:])
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve profile path: %w", err)
	}
	return filepath.Clean(abs), nil
}
