package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Proxy holds the configuration the packet pipeline reads.
type Proxy struct {
	// Listener for external clients.
	Bind string `yaml:"bind"`
	// Port the local game server is bound to.
	ServerPort int `yaml:"server-port"`
	// Authenticate clients against the session service.
	OnlineMode bool `yaml:"online-mode"`
	// Smallest body size that gets zlib-compressed; -1 disables.
	CompressionThreshold int `yaml:"compression-threshold"`
	MaxPlayers           int `yaml:"max-players"`
	// RSA key size for the login encryption handshake.
	EncryptionKeySize int `yaml:"encryption-key-size"`
	// Status-ping message of the day.
	MOTD string `yaml:"motd"`
	// Maintain the entity table from SPAWN_*/MOVE/DESTROY packets.
	TrackEntities bool `yaml:"track-entities"`
}

// Log holds logging configuration.
type Log struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Config is the root of the YAML file.
type Config struct {
	Proxy Proxy `yaml:"proxy"`
	Log   Log   `yaml:"log"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Proxy: Proxy{
			Bind:                 "0.0.0.0:25565",
			ServerPort:           25564,
			OnlineMode:           true,
			CompressionThreshold: 256,
			MaxPlayers:           20,
			EncryptionKeySize:    1024,
			MOTD:                 "A proxied server",
			TrackEntities:        false,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads config from a YAML file. A missing file yields defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
