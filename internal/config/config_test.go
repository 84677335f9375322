package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
device:
  address: "AA:BB:CC:DD:EE:FF"
  mtu: 180
display:
  width: 64
  height: 16
server:
  listen: ":9000"
diff_threshold: 0.5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Device.Address != "AA:BB:CC:DD:EE:FF" || cfg.Device.MTU != 180 {
		t.Errorf("device = %+v", cfg.Device)
	}
	// Unset family keeps the default.
	if cfg.Device.Family != "ump" {
		t.Errorf("family = %q, want ump default", cfg.Device.Family)
	}
	if cfg.Display.Width != 64 || cfg.Display.Height != 16 {
		t.Errorf("display = %+v", cfg.Display)
	}
	if cfg.Server.Listen != ":9000" {
		t.Errorf("listen = %q", cfg.Server.Listen)
	}
	if cfg.DiffThreshold != 0.5 {
		t.Errorf("diff_threshold = %v", cfg.DiffThreshold)
	}
	if cfg.AssetsDir != "assets" {
		t.Errorf("assets_dir = %q, want default", cfg.AssetsDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file should error")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Defaults()
		cfg.Device.Address = "AA:BB:CC:DD:EE:FF"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults with address", func(c *Config) {}, true},
		{"opc family", func(c *Config) { c.Device.Family = "opc"; c.Device.Address = "localhost:7890" }, true},
		{"missing address", func(c *Config) { c.Device.Address = "" }, false},
		{"zero width", func(c *Config) { c.Display.Width = 0 }, false},
		{"negative height", func(c *Config) { c.Display.Height = -1 }, false},
		{"unknown family", func(c *Config) { c.Device.Family = "dmx" }, false},
		{"threshold above 1", func(c *Config) { c.DiffThreshold = 1.5 }, false},
		{"threshold below 0", func(c *Config) { c.DiffThreshold = -0.1 }, false},
	}
	for _, tt := range tests {
		cfg := valid()
		tt.mutate(&cfg)
		err := cfg.Validate()
		if tt.ok != (err == nil) {
			t.Errorf("%s: err = %v", tt.name, err)
		}
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "device: [not a map")
	if _, err := Load(path); err == nil {
		t.Error("malformed yaml should error")
	}
}
