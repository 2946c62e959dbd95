// Package config holds the runtime configuration of the conveyr service.
// Priority: environment > file > defaults.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".conveyr"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// PathsConfig locates the service's on-disk state.
type PathsConfig struct {
	DataDir     string `json:"dataDir" envconfig:"DATA_DIR"`
	ArtifactDir string `json:"artifactDir" envconfig:"ARTIFACT_DIR"`
	Pipeline    string `json:"pipeline" envconfig:"PIPELINE"`
}

// GatewayConfig configures the HTTP API.
type GatewayConfig struct {
	Listen string `json:"listen" envconfig:"LISTEN"`
}

// KafkaConfig configures the content-change consumer.
type KafkaConfig struct {
	Enabled bool     `json:"enabled" envconfig:"ENABLED"`
	Brokers []string `json:"brokers" envconfig:"BROKERS"`
	Topic   string   `json:"topic" envconfig:"TOPIC"`
	GroupID string   `json:"groupId" envconfig:"GROUP_ID"`
}

// ActivityConfig configures audit mirroring.
type ActivityConfig struct {
	SlackWebhookURL string `json:"slackWebhookUrl" envconfig:"SLACK_WEBHOOK_URL"`
}

// EngineConfig tunes the coordinators.
type EngineConfig struct {
	SystemRole         string `json:"systemRole" envconfig:"SYSTEM_ROLE"`
	CandidateLimit     int    `json:"candidateLimit" envconfig:"CANDIDATE_LIMIT"`
	ReaperIntervalSecs int    `json:"reaperIntervalSecs" envconfig:"REAPER_INTERVAL_SECS"`
	ReaperDisabled     bool   `json:"reaperDisabled" envconfig:"REAPER_DISABLED"`
}

// Config is the root configuration.
type Config struct {
	Paths    PathsConfig    `json:"paths"`
	Gateway  GatewayConfig  `json:"gateway"`
	Kafka    KafkaConfig    `json:"kafka"`
	Activity ActivityConfig `json:"activity"`
	Engine   EngineConfig   `json:"engine"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir:     "~/.conveyr/data",
			ArtifactDir: "~/.conveyr/artifacts",
		},
		Gateway: GatewayConfig{
			Listen: "127.0.0.1:8087",
		},
		Kafka: KafkaConfig{
			Topic:   "content.changes",
			GroupID: "conveyr",
		},
		Engine: EngineConfig{
			SystemRole:         "pipeline-system",
			CandidateLimit:     10,
			ReaperIntervalSecs: 60,
		},
	}
}

// DBPath is the sqlite database file inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.Paths.DataDir, "conveyr.db")
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("CONVEYR_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// EnsureDir ensures a directory exists with proper permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
