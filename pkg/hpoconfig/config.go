// Package hpoconfig loads the YAML-backed configuration knobs shared by
// cmd/hpoctl: runner concurrency/retry defaults, the scheduler's mode and
// poll interval, and the k8s client settings pkg/scheduler needs to poll
// pod liveness.
package hpoconfig

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/hpoforge/hpo/pkg/hpoerrors"
)

// RunnerConfig mirrors the Runner fluent settings that
// make sense to source from a file instead of code.
type RunnerConfig struct {
	MaxSteps   int `yaml:"max_steps"`
	MaxWorkers int `yaml:"max_workers"`
	MaxRetries int `yaml:"max_retries"`
	RankSize   int `yaml:"rank_size"`
}

// SchedulerConfig mirrors scheduler.Config's file-worthy fields.
type SchedulerConfig struct {
	Mode            string        `yaml:"mode"`
	TemplatePath    string        `yaml:"template_path"`
	ProjectName     string        `yaml:"project_name"`
	WorkDir         string        `yaml:"work_dir"`
	MaxRunning      int           `yaml:"max_running"`
	MaxTasks        int           `yaml:"max_tasks"`
	Timeout         time.Duration `yaml:"timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	K8sManifestPath string        `yaml:"k8s_manifest_path"`
	K8sNamespace    string        `yaml:"k8s_namespace"`
	K8sRemotePath   string        `yaml:"k8s_remote_path"`
}

// MetricsConfig controls the optional Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Config is the complete file shape cmd/hpoctl loads.
type Config struct {
	Runner    RunnerConfig    `yaml:"runner"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// Default returns the same defaults pkg/runner.New and scheduler.New apply
// on their own, so a Config zero-filled by a partial file still behaves
// sensibly.
func Default() *Config {
	return &Config{
		Runner: RunnerConfig{
			MaxWorkers: 1,
			MaxRetries: 1,
			RankSize:   10,
		},
		Scheduler: SchedulerConfig{
			Mode:         "local",
			MaxRunning:   2,
			MaxTasks:     100000,
			PollInterval: 3 * time.Second,
		},
		Metrics: MetricsConfig{
			Listen: ":9090",
		},
	}
}

// Load reads configFile plus HPO_-prefixed environment variables into a
// Config seeded with Default(). With an empty configFile, the usual
// search path (./hpo.yaml, ~/.hpo, /etc/hpo) is tried and a missing file
// just leaves the defaults in place.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("hpo")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.hpo")
		v.AddConfigPath("/etc/hpo")
	}

	v.SetEnvPrefix("HPO")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("hpoconfig: reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }); err != nil {
		return nil, fmt.Errorf("hpoconfig: unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants Load can't express through defaulting
// alone, returning an error for the first offending field it finds.
func (c *Config) Validate() error {
	if c.Runner.MaxWorkers <= 0 {
		return hpoerrors.ConfigError("hpoconfig.Validate", "runner.max_workers must be positive")
	}
	if c.Runner.MaxRetries <= 0 {
		return hpoerrors.ConfigError("hpoconfig.Validate", "runner.max_retries must be at least 1")
	}
	switch c.Scheduler.Mode {
	case "local", "k8s":
	default:
		return hpoerrors.ConfigError("hpoconfig.Validate", "scheduler.mode must be \"local\" or \"k8s\"")
	}
	if c.Scheduler.Mode == "k8s" && c.Scheduler.K8sManifestPath == "" {
		return hpoerrors.ConfigError("hpoconfig.Validate", "scheduler.k8s_manifest_path is required in k8s mode")
	}
	return nil
}
