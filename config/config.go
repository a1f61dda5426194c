package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix   = "LOGTRACKER_"
	DefaultFile = "logtracker.yaml"
)

type Config struct {
	Report  ReportConfig  `koanf:"report"`
	Output  OutputConfig  `koanf:"output"`
	Capture CaptureConfig `koanf:"capture"`
	Server  ServerConfig  `koanf:"server"`
	Trace   TraceConfig   `koanf:"trace"`
}

type ReportConfig struct {
	StatusThreshold int    `koanf:"status_threshold"`
	RequireBody     bool   `koanf:"require_body"`
	CreatorName     string `koanf:"creator_name"`
	CreatorVersion  string `koanf:"creator_version"`
}

type OutputConfig struct {
	Dir     string `koanf:"dir"`     // report directory, empty disables file output
	Archive string `koanf:"archive"` // sqlite path, empty disables archiving
}

type CaptureConfig struct {
	DrainTimeout time.Duration `koanf:"drain_timeout"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
}

type TraceConfig struct {
	Enabled bool `koanf:"enabled"`
}

var defaults = map[string]interface{}{
	"report.status_threshold": 199,
	"report.require_body":     false,
	"report.creator_name":     "logTracker",
	"report.creator_version":  "0.1",
	"output.dir":              ".",
	"output.archive":          "",
	"capture.drain_timeout":   "2s",
	"server.addr":             ":9222",
	"trace.enabled":           false,
}

// Load reads configuration from a YAML file and LOGTRACKER_* environment
// variables, in that order of precedence (lowest first). An empty path looks
// for logtracker.yaml in the working directory and tolerates its absence; an
// explicit path must exist.
//
// Nested keys are addressed in the environment with a double underscore:
// LOGTRACKER_REPORT__STATUS_THRESHOLD sets report.status_threshold.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Capture.DrainTimeout < 0 {
		return fmt.Errorf("capture.drain_timeout must not be negative, got %s", c.Capture.DrainTimeout)
	}
	if c.Report.StatusThreshold < 0 {
		return fmt.Errorf("report.status_threshold must not be negative, got %d", c.Report.StatusThreshold)
	}
	return nil
}
