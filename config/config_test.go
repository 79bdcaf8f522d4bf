package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil, env(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.IdleTimeout != 60*time.Second || cfg.PurgeEmptyRooms {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drawsync.yaml")
	yml := `
addr: ":9000"
idle_timeout: 30s
ping_interval: 5s
purge_empty_rooms: true
allowed_origins: ["example.com"]
mdns:
  enabled: true
  instance: studio
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(
		[]string{"-config", path, "-log-format", "json"},
		env(map[string]string{
			"DRAWSYNC_ADDR":          ":9100",
			"DRAWSYNC_PING_INTERVAL": "10s",
			"DRAWSYNC_LOG_FORMAT":    "text",
		}),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tests := []struct {
		name string
		got  any
		want any
	}{
		{"addr from env", cfg.Addr, ":9100"},
		{"idle from file", cfg.IdleTimeout, 30 * time.Second},
		{"ping from env", cfg.PingInterval, 10 * time.Second},
		{"purge from file", cfg.PurgeEmptyRooms, true},
		{"mdns instance from file", cfg.MDNS.Instance, "studio"},
		{"log level from file", cfg.Log.Level, "debug"},
		{"log format from flag", cfg.Log.Format, "json"},
		{"write buffer default", cfg.WriteBuffer, 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "example.com" {
		t.Errorf("allowed origins = %v", cfg.AllowedOrigins)
	}
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(path, []byte("addr: \":7000\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(nil, env(map[string]string{"DRAWSYNC_CONFIG": path}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Errorf("addr = %q", cfg.Addr)
	}
}

func TestLoad_OriginsFlag(t *testing.T) {
	cfg, err := Load([]string{"-allowed-origins", "a.example, b.example"}, env(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "b.example" {
		t.Errorf("origins = %v", cfg.AllowedOrigins)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{name: "bad env duration", env: map[string]string{"DRAWSYNC_IDLE_TIMEOUT": "soon"}},
		{name: "bad env bool", env: map[string]string{"DRAWSYNC_PURGE_EMPTY_ROOMS": "maybe"}},
		{name: "ping not shorter than idle", args: []string{"-ping-interval", "2m"}},
		{name: "unknown log format", args: []string{"-log-format", "xml"}},
		{name: "unknown log level", args: []string{"-log-level", "loud"}},
		{name: "empty addr", args: []string{"-addr", " "}},
		{name: "unknown flag", args: []string{"-nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.args, env(tt.env))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}, env(nil))
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not-exist", err)
	}
}
