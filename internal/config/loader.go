package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load loads the configuration from file and environment variables.
// A missing config file is not an error; the defaults apply.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err == nil {
		data = substituteEnv(data)
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	for prefix, target := range map[string]any{
		"CONVEYR_PATHS":    &cfg.Paths,
		"CONVEYR_GATEWAY":  &cfg.Gateway,
		"CONVEYR_KAFKA":    &cfg.Kafka,
		"CONVEYR_ACTIVITY": &cfg.Activity,
		"CONVEYR_ENGINE":   &cfg.Engine,
	} {
		if err := envconfig.Process(prefix, target); err != nil {
			return nil, fmt.Errorf("process %s env: %w", prefix, err)
		}
	}

	expandHome(&cfg.Paths.DataDir)
	expandHome(&cfg.Paths.ArtifactDir)
	expandHome(&cfg.Paths.Pipeline)

	if cfg.Engine.CandidateLimit <= 0 {
		cfg.Engine.CandidateLimit = 10
	}
	if cfg.Engine.ReaperIntervalSecs <= 0 {
		cfg.Engine.ReaperIntervalSecs = 60
	}
	return cfg, nil
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// substituteEnv replaces ${VAR} references in the raw config with the
// process environment. Unset variables are left verbatim.
func substituteEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		if value, ok := os.LookupEnv(string(name)); ok {
			return []byte(value)
		}
		return match
	})
}

func expandHome(p *string) {
	if strings.HasPrefix(*p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			*p = filepath.Join(home, (*p)[1:])
		}
	}
}
