package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Storage   StorageConfig
	Extractor ExtractorConfig
	Matcher   MatcherConfig
	Web       WebConfig
}

type StorageConfig struct {
	DataDir      string // root directory for all persisted state (default "data")
	SnapshotPath string // profile collection snapshot (default <DataDir>/profiles.json)
	FacesDir     string // face asset files (default <DataDir>/faces)
}

type ExtractorConfig struct {
	URL string // embedding server URL; empty selects the local grid extractor
	Dim int    // descriptor length expected from the embedding server
}

type MatcherConfig struct {
	Threshold float64 // default recognition threshold in [0, 1]
}

type WebConfig struct {
	Port int    // listen port (default 8080)
	Host string // bind address (default 0.0.0.0)
}

// defaults mirrors the embedded defaults.yaml.
type defaults struct {
	Matcher struct {
		Threshold float64 `yaml:"threshold"`
		Dim       int     `yaml:"dim"`
	} `yaml:"matcher"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float in (0, 1].
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

// envString reads an environment variable with a fallback.
func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func Load() *Config {
	var def defaults
	if err := yaml.Unmarshal(defaultsYAML, &def); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	dataDir := envString("REGISTRY_DATA_DIR", "data")

	return &Config{
		Storage: StorageConfig{
			DataDir:      dataDir,
			SnapshotPath: envString("REGISTRY_SNAPSHOT_PATH", filepath.Join(dataDir, "profiles.json")),
			FacesDir:     envString("FACES_DIR", filepath.Join(dataDir, "faces")),
		},
		Extractor: ExtractorConfig{
			URL: os.Getenv("EXTRACTOR_URL"),
			Dim: envInt("DESCRIPTOR_DIM", def.Matcher.Dim),
		},
		Matcher: MatcherConfig{
			Threshold: envFloat("MATCH_THRESHOLD", def.Matcher.Threshold),
		},
		Web: WebConfig{
			Port: envInt("WEB_PORT", 8080),
			Host: envString("WEB_HOST", "0.0.0.0"),
		},
	}
}
