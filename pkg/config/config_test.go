package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	f := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(f)
	if err := f.Parse(args); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}
	return f
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"), newFlags(t))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Port)
	}
	if cfg.QuietPeriod != 250*time.Millisecond {
		t.Errorf("Expected 250ms quiet period, got %v", cfg.QuietPeriod)
	}
	if cfg.RenderCache != 256 {
		t.Errorf("Expected render cache 256, got %d", cfg.RenderCache)
	}
	if cfg.ListenAddr() != "127.0.0.1:8080" {
		t.Errorf("Unexpected listen address %s", cfg.ListenAddr())
	}
}

func TestLoadPriority(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	content := "port = 9000\nspool = \"/tmp/reports\"\nrender-cache = 8\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv("DFGRAPH_RENDER_CACHE", "32")
	t.Setenv("DFGRAPH_PORT", "9100")

	cfg, err := LoadFile(path, newFlags(t, "--port", "9200", "-vv"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 9200 {
		t.Errorf("Flag should win over env, got port %d", cfg.Port)
	}
	if cfg.RenderCache != 32 {
		t.Errorf("Env should win over file, got render cache %d", cfg.RenderCache)
	}
	if cfg.Spool != "/tmp/reports" {
		t.Errorf("File should win over defaults, got spool %q", cfg.Spool)
	}
	if cfg.VerboseCnt != 2 {
		t.Errorf("Expected verbose count 2, got %d", cfg.VerboseCnt)
	}
}

func TestWatchRequiresSpool(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"), newFlags(t, "--watch"))
	if err == nil {
		t.Error("Expected error when watching without a spool directory")
	}
}
