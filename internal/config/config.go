// Package config holds the scrapnet configuration: built-in defaults, an
// optional TOML file and the validation applied after CLI flags override it.
package config

import (
	"fmt"
	"net"
	"time"

	"github.com/BurntSushi/toml"
)

// Config stores every tunable of the discovery, probe and relay commands.
type Config struct {
	Master     string   `toml:"master"`       // master server host:port
	LocalAddr  string   `toml:"local_addr"`   // relay: address the game client connects to
	DNSServer  string   `toml:"dns_server"`   // optional resolver for the master hostname
	LogFile    string   `toml:"log_file"`     // relay: decrypted packet log, empty = none
	LogMaxSize int      `toml:"log_max_size"` // megabytes before the packet log rotates, 0 = library default
	HexII      bool     `toml:"hexii"`        // relay: print packets in HexII instead of a hex dump
	Stats      bool     `toml:"stats"`        // relay: log periodic traffic statistics
	Parallel   int      `toml:"parallel"`     // concurrent server probes
	Timeout    Duration `toml:"timeout"`      // per request timeout for master and probe queries

	WSConsole string `toml:"ws_console"` // optional host:port for the WebSocket console
	WSPin     string `toml:"ws_pin"`     // PIN required by the WebSocket console, empty = random
}

// Duration is a time.Duration that decodes from TOML strings like "5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Master:    "scrapland.mercurysteam.com:5000",
		LocalAddr: "127.0.0.1:28086",
		Parallel:  8,
		Timeout:   Duration{5 * time.Second},
	}
}

// Load reads a TOML file on top of Default. Keys absent from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("unknown config keys in %s: %v", path, undecoded)
	}
	return cfg, nil
}

// Validate checks the fields that would otherwise fail deep inside a command.
func (c Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Master); err != nil {
		return fmt.Errorf("invalid master address %q: %w", c.Master, err)
	}
	if _, err := net.ResolveUDPAddr("udp", c.LocalAddr); err != nil {
		return fmt.Errorf("invalid local address %q: %w", c.LocalAddr, err)
	}
	if c.DNSServer != "" {
		if _, _, err := net.SplitHostPort(c.DNSServer); err != nil {
			return fmt.Errorf("invalid dns server %q: %w", c.DNSServer, err)
		}
	}
	if c.WSConsole != "" {
		if _, _, err := net.SplitHostPort(c.WSConsole); err != nil {
			return fmt.Errorf("invalid websocket console address %q: %w", c.WSConsole, err)
		}
	}
	if c.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", c.Parallel)
	}
	if c.Timeout.Duration <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout.Duration)
	}
	if c.LogMaxSize < 0 {
		return fmt.Errorf("log_max_size must not be negative, got %d", c.LogMaxSize)
	}
	return nil
}
