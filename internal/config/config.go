// Package config loads the relayd TOML configuration with environment
// overrides.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is the relayd configuration.
type Config struct {
	Listen    string `toml:"listen"`
	DBPath    string `toml:"db_path"`
	LogPath   string `toml:"log_path"`
	UploadDir string `toml:"upload_dir"`

	HandshakeTimeout Duration `toml:"handshake_timeout"`
	HeartbeatTimeout Duration `toml:"heartbeat_timeout"`

	SendBuffer int     `toml:"send_buffer"`
	EventRate  float64 `toml:"event_rate"`
	EventBurst int     `toml:"event_burst"`

	MaxContentLen     int   `toml:"max_content_len"`
	MaxAttachmentSize int64 `toml:"max_attachment_size"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:            ":8443",
		DBPath:            "relay.db",
		LogPath:           "relayd.log",
		UploadDir:         "uploads",
		HandshakeTimeout:  Duration{10 * time.Second},
		HeartbeatTimeout:  Duration{60 * time.Second},
		SendBuffer:        64,
		EventRate:         25,
		EventBurst:        50,
		MaxContentLen:     4000,
		MaxAttachmentSize: 50 << 20,
	}
}

// Load reads config from the given path over the defaults, then applies
// environment overrides (RELAY_LISTEN, RELAY_DB_PATH, RELAY_LOG_PATH).
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if v := os.Getenv("RELAY_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("RELAY_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("RELAY_LOG_PATH"); v != "" {
		cfg.LogPath = v
	}
	return cfg, nil
}
