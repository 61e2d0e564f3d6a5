package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/herbtax/internal/cluster"
	"github.com/TobiSchelling/herbtax/internal/distance"
	"github.com/TobiSchelling/herbtax/internal/rank"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Input      Input      `yaml:"input"`
	Output     Output     `yaml:"output"`
	Ranking    Ranking    `yaml:"ranking"`
	Clustering Clustering `yaml:"clustering"`
	Storage    Storage    `yaml:"storage"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type Input struct {
	Path string `yaml:"path"`
}

type Output struct {
	Dir     string `yaml:"dir"`
	DataDir string `yaml:"data_dir"`
}

type Ranking struct {
	TopK int `yaml:"top_k"`
}

type Clustering struct {
	Metric         string  `yaml:"metric"`
	Linkage        string  `yaml:"linkage"`
	Criterion      string  `yaml:"criterion"`
	Threshold      float64 `yaml:"threshold"`
	MinClusterSize int     `yaml:"min_cluster_size"`
}

type Storage struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
	Secure       bool   `yaml:"secure"`
	Region       string `yaml:"region"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ConfigDir returns the XDG config directory for herbtax.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "herbtax")
}

// DataDir returns the XDG data directory for herbtax.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "herbtax")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/herbtax/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'herbtax init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config is invalid: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Output:  Output{Dir: "results"},
		Ranking: Ranking{TopK: rank.DefaultTopK},
		Clustering: Clustering{
			Metric:         string(distance.DefaultMetric),
			Linkage:        string(cluster.DefaultMethod),
			Criterion:      string(cluster.DefaultCriterion),
			Threshold:      cluster.DefaultDistanceThreshold,
			MinClusterSize: cluster.DefaultMinClusterSize,
		},
		Storage: Storage{
			S3: S3Config{
				AccessKeyEnv: "HERBTAX_S3_ACCESS_KEY",
				SecretKeyEnv: "HERBTAX_S3_SECRET_KEY",
				Secure:       true,
			},
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if c.Ranking.TopK <= 0 {
		problems = append(problems, fmt.Sprintf("ranking.top_k must be positive, got %d", c.Ranking.TopK))
	}
	if _, err := distance.ParseMetric(c.Clustering.Metric); err != nil {
		problems = append(problems, fmt.Sprintf("clustering.metric: unknown metric %q", c.Clustering.Metric))
	}
	if _, err := cluster.ParseMethod(c.Clustering.Linkage); err != nil {
		problems = append(problems, fmt.Sprintf("clustering.linkage: unknown method %q", c.Clustering.Linkage))
	}
	if _, err := cluster.ParseCriterion(c.Clustering.Criterion); err != nil {
		problems = append(problems, fmt.Sprintf("clustering.criterion: unknown criterion %q", c.Clustering.Criterion))
	}
	if c.Clustering.Threshold < 0 || math.IsNaN(c.Clustering.Threshold) || math.IsInf(c.Clustering.Threshold, 0) {
		problems = append(problems, fmt.Sprintf("clustering.threshold must be a finite non-negative number, got %v", c.Clustering.Threshold))
	}
	if c.Clustering.MinClusterSize <= 0 {
		problems = append(problems, fmt.Sprintf("clustering.min_cluster_size must be positive, got %d", c.Clustering.MinClusterSize))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port out of range: %d", c.Server.Port))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DatabasePath returns the path of the results archive.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.GetDataDir(), "herbtax.db")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
