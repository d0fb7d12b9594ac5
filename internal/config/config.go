// Package config loads the application's layered configuration (flags,
// then env, then file, then default), using the SUPERVISOR_*-prefixed
// environment variables of §6.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved process configuration, sourced from flags, the
// SUPERVISOR_* environment variables, an optional config file, and the
// defaults below, in that priority order.
type Config struct {
	Port           int
	DBPath         string
	TranscoderPath string
	ProbePath      string
	ScratchDir     string
	ScanInterval   time.Duration // 0 disables scheduled rescans
	LogLevel       string
	LibraryPaths   []string
	ScanExtensions []string
}

// Load reads configuration via viper, which has already had flags bound
// and the SUPERVISOR env prefix registered by the cobra command that
// calls this.
func Load(v *viper.Viper) *Config {
	cfg := &Config{
		Port:           v.GetInt("port"),
		DBPath:         v.GetString("db_path"),
		TranscoderPath: v.GetString("transcoder_path"),
		ProbePath:      v.GetString("probe_path"),
		ScratchDir:     v.GetString("scratch_dir"),
		ScanInterval:   v.GetDuration("scan_interval"),
		LogLevel:       v.GetString("log_level"),
	}

	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}

	if paths := v.GetString("library_paths"); paths != "" {
		cfg.LibraryPaths = splitAndTrim(paths)
	}
	if exts := v.GetString("scan_extensions"); exts != "" {
		cfg.ScanExtensions = splitAndTrim(exts)
	}

	return cfg
}

// Defaults registers this package's defaults on v, per §6.
func Defaults(v *viper.Viper) {
	v.SetDefault("port", 8090)
	v.SetDefault("db_path", "./data/supervisor.db")
	v.SetDefault("transcoder_path", "ffmpeg")
	v.SetDefault("probe_path", "ffprobe")
	v.SetDefault("scratch_dir", "")
	v.SetDefault("scan_interval", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("library_paths", "")
	v.SetDefault("scan_extensions", "")
}

func splitAndTrim(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
