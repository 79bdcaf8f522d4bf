package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "DRAWSYNC_"

var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config はサーバープロセスの設定です。
// 既定値、YAML ファイル、環境変数 DRAWSYNC_*、コマンドライン引数の順に上書きされます。
type Config struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ReadLimit       int64         `yaml:"read_limit"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	WriteBuffer     int           `yaml:"write_buffer"`
	PubSubBuffer    int           `yaml:"pubsub_buffer"`
	PurgeEmptyRooms bool          `yaml:"purge_empty_rooms"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	MDNS MDNSConfig `yaml:"mdns"`
	Log  LogConfig  `yaml:"log"`
}

type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Addr:            ":8080",
		ReadLimit:       1 << 20,
		IdleTimeout:     60 * time.Second,
		PingInterval:    20 * time.Second,
		WriteBuffer:     1024,
		PubSubBuffer:    256,
		ShutdownTimeout: 10 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load は args と環境変数から設定を組み立てます。
func Load(args []string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	// 設定ファイルのパスだけを先に読む
	scratch := Default()
	pre := flag.NewFlagSet("drawsync", flag.ContinueOnError)
	pre.SetOutput(io.Discard)
	path := bindFlags(pre, &scratch, getenv(envPrefix+"CONFIG"))
	// 引数の誤りは2回目の解析で使い方と共に報告する
	_ = pre.Parse(args)

	cfg := Default()
	if *path != "" {
		if err := cfg.loadFile(*path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("drawsync", flag.ContinueOnError)
	bindFlags(fs, &cfg, *path)
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func bindFlags(fs *flag.FlagSet, cfg *Config, configPath string) *string {
	path := fs.String("config", configPath, "path to a YAML config file")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	fs.Var((*listValue)(&cfg.AllowedOrigins), "allowed-origins", "comma separated origin patterns accepted for websocket upgrades")
	fs.Int64Var(&cfg.ReadLimit, "read-limit", cfg.ReadLimit, "maximum bytes per websocket frame")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "close connections idle for this long (0 disables)")
	fs.DurationVar(&cfg.PingInterval, "ping-interval", cfg.PingInterval, "websocket ping interval (0 disables)")
	fs.IntVar(&cfg.WriteBuffer, "write-buffer", cfg.WriteBuffer, "per connection outbound queue length")
	fs.IntVar(&cfg.PubSubBuffer, "pubsub-buffer", cfg.PubSubBuffer, "per topic subscriber queue length")
	fs.BoolVar(&cfg.PurgeEmptyRooms, "purge-empty-rooms", cfg.PurgeEmptyRooms, "drop a room's action log when its last member leaves")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")
	fs.BoolVar(&cfg.MDNS.Enabled, "mdns", cfg.MDNS.Enabled, "advertise the server on the LAN via mDNS")
	fs.StringVar(&cfg.MDNS.Instance, "mdns-instance", cfg.MDNS.Instance, "mDNS instance name (defaults to hostname)")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "text or json")
	return path
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	var errs []error
	parse := func(name string, fn func(string) error) {
		v := getenv(envPrefix + name)
		if v == "" {
			return
		}
		if err := fn(v); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s%s=%q: %v", ErrInvalidConfig, envPrefix, name, v, err))
		}
	}
	durationVar := func(dst *time.Duration) func(string) error {
		return func(v string) error {
			d, err := time.ParseDuration(v)
			*dst = d
			return err
		}
	}
	boolVar := func(dst *bool) func(string) error {
		return func(v string) error {
			b, err := strconv.ParseBool(v)
			*dst = b
			return err
		}
	}
	intVar := func(dst *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			*dst = n
			return err
		}
	}

	str("ADDR", &c.Addr)
	parse("ALLOWED_ORIGINS", (*listValue)(&c.AllowedOrigins).Set)
	parse("READ_LIMIT", func(v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		c.ReadLimit = n
		return err
	})
	parse("IDLE_TIMEOUT", durationVar(&c.IdleTimeout))
	parse("PING_INTERVAL", durationVar(&c.PingInterval))
	parse("WRITE_BUFFER", intVar(&c.WriteBuffer))
	parse("PUBSUB_BUFFER", intVar(&c.PubSubBuffer))
	parse("PURGE_EMPTY_ROOMS", boolVar(&c.PurgeEmptyRooms))
	parse("SHUTDOWN_TIMEOUT", durationVar(&c.ShutdownTimeout))
	parse("MDNS", boolVar(&c.MDNS.Enabled))
	str("MDNS_INSTANCE", &c.MDNS.Instance)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	return errors.Join(errs...)
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.ReadLimit < 0 {
		errs = append(errs, fmt.Errorf("read_limit must not be negative: %d", c.ReadLimit))
	}
	if c.IdleTimeout < 0 || c.PingInterval < 0 || c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.IdleTimeout > 0 && c.PingInterval > 0 && c.PingInterval >= c.IdleTimeout {
		errs = append(errs, fmt.Errorf("ping_interval (%s) must be shorter than idle_timeout (%s)", c.PingInterval, c.IdleTimeout))
	}
	if c.WriteBuffer <= 0 || c.PubSubBuffer <= 0 {
		errs = append(errs, errors.New("write_buffer and pubsub_buffer must be positive"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log format must be text or json: %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// SlogLevel はログレベル名を slog.Level に変換します。
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

type listValue []string

func (v *listValue) String() string {
	if v == nil {
		return ""
	}
	return strings.Join(*v, ",")
}

func (v *listValue) Set(s string) error {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*v = out
	return nil
}
