// Package config loads server settings from an optional YAML file.
// Everything has a default; a missing file is only an error when the
// caller explicitly asked for one.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"LiveBoard/internal/room"
)

// Duration parses YAML strings like "45s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

type Config struct {
	// Addr is the listen address for the HTTP and websocket server.
	Addr string `yaml:"addr"`
	// Advertise announces the board over mDNS.
	Advertise bool `yaml:"advertise"`
	// Debug switches logging to development output.
	Debug bool `yaml:"debug"`

	Room Room `yaml:"room"`
}

type Room struct {
	SendBuffer      int      `yaml:"send_buffer"`
	MaxMessageBytes int64    `yaml:"max_message_bytes"`
	PingInterval    Duration `yaml:"ping_interval"`
}

// Options converts the room section for the registry.
func (r Room) Options() room.Options {
	return room.Options{
		SendBuffer:      r.SendBuffer,
		MaxMessageBytes: r.MaxMessageBytes,
		PingInterval:    time.Duration(r.PingInterval),
	}
}

func Default() Config {
	return Config{
		Addr:      ":8765",
		Advertise: true,
		Room: Room{
			SendBuffer:      256,
			MaxMessageBytes: 64 * 1024,
			PingInterval:    Duration(30 * time.Second),
		},
	}
}

// Load reads path over the defaults. Keys absent from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
