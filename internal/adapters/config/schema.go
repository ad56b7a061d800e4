package config

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version   int             `toml:"version"`
	Discovery discoverySchema `toml:"discovery"`
	Session   sessionSchema   `toml:"session"`
	Scenario  scenarioSchema  `toml:"scenario"`
	Users     []userSchema    `toml:"users"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported profile schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type discoverySchema struct {
	BaseURL string `toml:"base_url"`
	Service string `toml:"service"`
	Timeout string `toml:"timeout"`
}

type sessionSchema struct {
	HeartbeatInterval string `toml:"heartbeat_interval"`
	SyncLimit         uint32 `toml:"sync_limit"`
	LogCapacity       int    `toml:"log_capacity"`
	StaggerDelay      string `toml:"stagger_delay"`
	FriendAcceptDelay string `toml:"friend_accept_delay"`
	DefaultDevice     string `toml:"default_device"`
}

type scenarioSchema struct {
	Password       string `toml:"password"`
	KickDevice     string `toml:"kick_device"`
	Rounds         int    `toml:"rounds"`
	StormUsers     int    `toml:"storm_users"`
	StormMessages  int    `toml:"storm_messages"`
	BurstMessages  int    `toml:"burst_messages"`
	Settle         string `toml:"settle"`
	Cooldown       string `toml:"cooldown"`
	OnlineTimeout  string `toml:"online_timeout"`
	ConfirmTimeout string `toml:"confirm_timeout"`
}

type userSchema struct {
	ID       int64  `toml:"id"`
	Password string `toml:"password,omitempty"`
	Device   string `toml:"device,omitempty"`
}
