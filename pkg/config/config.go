package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// FileName is the optional config file read from the working directory
const FileName = "dfgraph.toml"

// EnvPrefix prefixes every environment override, e.g. DFGRAPH_PORT=9090
const EnvPrefix = "DFGRAPH_"

// Config holds all configuration for the service
type Config struct {
	Addr         string        `koanf:"addr"`
	Port         int           `koanf:"port"`
	Spool        string        `koanf:"spool"`
	Watch        bool          `koanf:"watch"`
	Verbosity    string        `koanf:"verbosity"`
	VerboseCnt   int           `koanf:"verbose"`
	JSONLogs     bool          `koanf:"json-logs"`
	RenderCache  int           `koanf:"render-cache"`  // entries in the viewer render cache
	ReplayBuffer int           `koanf:"replay-buffer"` // events replayed to late subscribers
	QuietPeriod  time.Duration `koanf:"quiet-period"`  // spool debounce quiet period
	MaxWait      time.Duration `koanf:"max-wait"`      // spool debounce upper bound
}

// Defaults returns the built-in configuration
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"addr":          "127.0.0.1",
		"port":          8080,
		"spool":         "",
		"watch":         false,
		"verbosity":     "",
		"verbose":       0,
		"json-logs":     false,
		"render-cache":  256,
		"replay-buffer": 16,
		"quiet-period":  "250ms",
		"max-wait":      "2s",
	}
}

// RegisterFlags adds the flags Load understands to f
func RegisterFlags(f *pflag.FlagSet) {
	f.String("addr", "127.0.0.1", "Address to listen on")
	f.IntP("port", "p", 8080, "Port to listen on")
	f.String("spool", "", "Directory the kernel bridge drops execution reports into")
	f.BoolP("watch", "w", false, "Watch the spool directory for new reports")
	f.String("verbosity", "", "Log level: trace, debug, info, warn, error")
	f.CountP("verbose", "v", "Increase verbosity (-v debug, -vv trace)")
	f.Bool("json-logs", false, "Log as JSON instead of the compact console format")
	f.Int("render-cache", 256, "Number of rendered views to keep")
	f.Int("replay-buffer", 16, "Events replayed to a viewer that subscribes late")
	f.Duration("quiet-period", 250*time.Millisecond, "Spool debounce quiet period")
	f.Duration("max-wait", 2*time.Second, "Longest a spool batch may be delayed")
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	return LoadFile(FileName, f)
}

// LoadFile is Load with an explicit config file path
func LoadFile(path string, f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(makeMapProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional)
	// We ignore errors here as the file might not exist
	_ = k.Load(file.Provider(path), toml.Parser())

	// 3. Environment Variables
	// Keys are flat, so DFGRAPH_RENDER_CACHE maps to render-cache
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, EnvPrefix)), "_", "-")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// Unmarshal into struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListenAddr is the host:port the HTTP server binds
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Addr, c.Port)
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Watch && c.Spool == "" {
		return fmt.Errorf("watch requires a spool directory")
	}
	if c.RenderCache <= 0 {
		return fmt.Errorf("render-cache must be positive, got %d", c.RenderCache)
	}
	return nil
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
