// Package config loads the daemon configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	Device  Device  `yaml:"device"`
	Display Display `yaml:"display"`
	Server  Server  `yaml:"server"`

	// AssetsDir holds the MDI webfont and its metadata.
	AssetsDir string `yaml:"assets_dir"`

	// DiffThreshold is the changed-pixel fraction above which a full
	// frame is sent instead of deltas. Zero selects the built-in default.
	DiffThreshold float64 `yaml:"diff_threshold"`
}

// Device describes the display hardware and how to reach it.
type Device struct {
	// Address is a BLE MAC for the ump family, host:port for opc.
	Address string `yaml:"address"`
	// Family selects the wire protocol: "ump" (default) or "opc".
	Family string `yaml:"family"`
	// MTU bounds one link write; zero uses the transport default.
	MTU int `yaml:"mtu"`
}

// Display is the panel geometry.
type Display struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Server configures the HTTP API.
type Server struct {
	Listen string `yaml:"listen"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() Config {
	return Config{
		Device:    Device{Family: "ump"},
		Display:   Display{Width: 32, Height: 8},
		Server:    Server{Listen: ":8081"},
		AssetsDir: "assets",
	}
}

// Load reads and validates a YAML configuration file.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.Device.Address == "" {
		return fmt.Errorf("config: device.address is required")
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return fmt.Errorf("config: display dimensions must be positive, got %dx%d",
			c.Display.Width, c.Display.Height)
	}
	switch c.Device.Family {
	case "", "ump", "opc":
	default:
		return fmt.Errorf("config: unknown device family %q", c.Device.Family)
	}
	if c.DiffThreshold < 0 || c.DiffThreshold > 1 {
		return fmt.Errorf("config: diff_threshold must be within [0,1]")
	}
	return nil
}
