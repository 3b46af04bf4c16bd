package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// EnvConfigPath overrides the default config file location.
const EnvConfigPath = "DEVKIT_GATES_CONFIG"

type Config struct {
	Gates      GatesConfig
	LogQuality LogQualityConfig
	Audit      AuditConfig
	Telemetry  TelemetryConfig
}

// GatesConfig switches individual gates on or off. A disabled gate stays
// installable and always allows.
type GatesConfig struct {
	Handoff     bool `toml:"handoff"`
	LogQuality  bool `toml:"log_quality"`
	CommitTrace bool `toml:"commit_trace"`
}

type LogQualityConfig struct {
	MinContentLength int `toml:"min_content_length"`
}

type AuditConfig struct {
	DBPath        string `toml:"db_path"`
	LogPath       string `toml:"log_path"`
	RetentionDays int    `toml:"retention_days"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
	TimeoutMS    int    `toml:"timeout_ms"`
	ServiceName  string `toml:"service_name"`
}

type LoadResult struct {
	Config   Config
	Warnings []string
}

func DefaultConfig() Config {
	return Config{
		Gates: GatesConfig{
			Handoff:     true,
			LogQuality:  true,
			CommitTrace: true,
		},
		LogQuality: LogQualityConfig{
			MinContentLength: 20,
		},
		Audit: AuditConfig{
			RetentionDays: 30,
		},
		Telemetry: TelemetryConfig{
			TimeoutMS:   300,
			ServiceName: "devkit-gates",
		},
	}
}

// DefaultPath returns $DEVKIT_GATES_CONFIG if set, otherwise
// ~/.config/devkit-gates/config.toml.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "devkit-gates", "config.toml")
}

func Load() (*LoadResult, error) {
	return LoadFrom(DefaultPath())
}

// LoadFrom reads the config at path. A missing file yields the defaults.
func LoadFrom(path string) (*LoadResult, error) {
	if path == "" {
		return &LoadResult{Config: DefaultConfig()}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &LoadResult{Config: DefaultConfig()}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	result, err := LoadFromString(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return result, nil
}

func LoadFromString(data string) (*LoadResult, error) {
	result := &LoadResult{Config: DefaultConfig()}

	if strings.TrimSpace(data) == "" {
		return result, nil
	}

	var raw map[string]any
	if _, err := toml.Decode(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	knownTopLevel := map[string]bool{
		"gates":       true,
		"log_quality": true,
		"audit":       true,
		"telemetry":   true,
	}
	for key := range raw {
		if !knownTopLevel[key] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unknown config key: %q", key))
		}
	}

	var tf tomlFile
	if _, err := toml.Decode(data, &tf); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	mergeFromRaw(&result.Config, &tf, raw)

	if err := validate(&result.Config); err != nil {
		return nil, err
	}

	return result, nil
}

type tomlFile struct {
	Gates      *GatesConfig      `toml:"gates"`
	LogQuality *LogQualityConfig `toml:"log_quality"`
	Audit      *AuditConfig      `toml:"audit"`
	Telemetry  *TelemetryConfig  `toml:"telemetry"`
}

// mergeFromRaw copies only the keys present in the file over the defaults,
// so a partial section leaves its other defaults intact.
func mergeFromRaw(cfg *Config, tf *tomlFile, raw map[string]any) {
	if tf.Gates != nil {
		if section, ok := rawSection(raw, "gates"); ok {
			if _, exists := section["handoff"]; exists {
				cfg.Gates.Handoff = tf.Gates.Handoff
			}
			if _, exists := section["log_quality"]; exists {
				cfg.Gates.LogQuality = tf.Gates.LogQuality
			}
			if _, exists := section["commit_trace"]; exists {
				cfg.Gates.CommitTrace = tf.Gates.CommitTrace
			}
		}
	}
	if tf.LogQuality != nil {
		if section, ok := rawSection(raw, "log_quality"); ok {
			if _, exists := section["min_content_length"]; exists {
				cfg.LogQuality.MinContentLength = tf.LogQuality.MinContentLength
			}
		}
	}
	if tf.Audit != nil {
		if section, ok := rawSection(raw, "audit"); ok {
			if _, exists := section["db_path"]; exists {
				cfg.Audit.DBPath = tf.Audit.DBPath
			}
			if _, exists := section["log_path"]; exists {
				cfg.Audit.LogPath = tf.Audit.LogPath
			}
			if _, exists := section["retention_days"]; exists {
				cfg.Audit.RetentionDays = tf.Audit.RetentionDays
			}
		}
	}
	if tf.Telemetry != nil {
		if section, ok := rawSection(raw, "telemetry"); ok {
			if _, exists := section["otlp_endpoint"]; exists {
				cfg.Telemetry.OTLPEndpoint = tf.Telemetry.OTLPEndpoint
			}
			if _, exists := section["timeout_ms"]; exists {
				cfg.Telemetry.TimeoutMS = tf.Telemetry.TimeoutMS
			}
			if _, exists := section["service_name"]; exists {
				cfg.Telemetry.ServiceName = tf.Telemetry.ServiceName
			}
		}
	}
}

func rawSection(raw map[string]any, key string) (map[string]any, bool) {
	v, ok := raw[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.LogQuality.MinContentLength < 1 {
		errs = append(errs, fmt.Sprintf("log_quality min_content_length must be positive, got %d", cfg.LogQuality.MinContentLength))
	}
	if cfg.Audit.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("audit retention_days must be positive, got %d", cfg.Audit.RetentionDays))
	}
	if cfg.Telemetry.TimeoutMS < 1 {
		errs = append(errs, fmt.Sprintf("telemetry timeout_ms must be positive, got %d", cfg.Telemetry.TimeoutMS))
	}
	if cfg.Telemetry.OTLPEndpoint != "" && !strings.Contains(cfg.Telemetry.OTLPEndpoint, ":") {
		errs = append(errs, fmt.Sprintf("telemetry otlp_endpoint must be host:port, got %q", cfg.Telemetry.OTLPEndpoint))
	}
	if cfg.Telemetry.OTLPEndpoint != "" && cfg.Telemetry.ServiceName == "" {
		errs = append(errs, "telemetry service_name must not be empty when otlp_endpoint is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation error: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ExpandTilde replaces a leading "~/" with the user's home directory.
func ExpandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
