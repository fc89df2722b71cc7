package clipkitty

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// FileConfig is the YAML shape of the daemon configuration file.
type FileConfig struct {
	DataDir         string   `yaml:"data_dir"`
	MaxBytes        int64    `yaml:"max_bytes"`
	KeepRatio       float64  `yaml:"keep_ratio"`
	RecentLimit     int      `yaml:"recent_limit"`
	IgnoreConcealed *bool    `yaml:"ignore_concealed"`
	IgnoreTransient *bool    `yaml:"ignore_transient"`
	IgnoredAppIDs   []string `yaml:"ignored_app_ids"`
	LegacyDirNames  []string `yaml:"legacy_dir_names"`
}

// ParseConfigFile reads the YAML config at path. An empty path yields the
// defaults: concealed and transient markers respected, no size cap.
func ParseConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return fc, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.UnmarshalWithOptions(buf, &fc, yaml.Strict()); err != nil {
			return fc, fmt.Errorf("parse config: %w", err)
		}
	}
	return fc, nil
}

// EngineConfig converts the file form into the engine's Config.
func (fc FileConfig) EngineConfig() Config {
	cfg := Config{
		IgnoreConcealed: true,
		IgnoreTransient: true,
		IgnoredAppIDs:   fc.IgnoredAppIDs,
		MaxBytes:        fc.MaxBytes,
		KeepRatio:       fc.KeepRatio,
		RecentLimit:     fc.RecentLimit,
		LegacyDirNames:  fc.LegacyDirNames,
	}
	if fc.IgnoreConcealed != nil {
		cfg.IgnoreConcealed = *fc.IgnoreConcealed
	}
	if fc.IgnoreTransient != nil {
		cfg.IgnoreTransient = *fc.IgnoreTransient
	}
	return cfg
}
