package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestLoad_DefaultsApplyWhenUnset(t *testing.T) {
	v := viper.New()
	Defaults(v)

	cfg := Load(v)
	if cfg.Port != 8090 {
		t.Fatalf("expected default port 8090, got %d", cfg.Port)
	}
	if cfg.DBPath != "./data/supervisor.db" {
		t.Fatalf("expected default db path, got %s", cfg.DBPath)
	}
	if cfg.ScratchDir == "" {
		t.Fatal("expected scratch dir to fall back to the OS temp dir")
	}
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	v := viper.New()
	Defaults(v)
	v.SetEnvPrefix("SUPERVISOR")
	v.AutomaticEnv()
	t.Setenv("SUPERVISOR_PORT", "9999")

	cfg := Load(v)
	if cfg.Port != 9999 {
		t.Fatalf("expected env override to port 9999, got %d", cfg.Port)
	}
}

func TestLoad_LibraryPathsSplitOnComma(t *testing.T) {
	v := viper.New()
	Defaults(v)
	v.Set("library_paths", "/media/a, /media/b")

	cfg := Load(v)
	if len(cfg.LibraryPaths) != 2 || cfg.LibraryPaths[0] != "/media/a" || cfg.LibraryPaths[1] != "/media/b" {
		t.Fatalf("expected trimmed split paths, got %+v", cfg.LibraryPaths)
	}
}
