package main

import (
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Default values from environment variables. Flags and env stay zero when
// unset so the config file can fill them; hardcoded fallbacks apply last.
var (
	defaultBaseURL = getEnvOrDefault("MIPAL_BASEURL", "")
	defaultToken   = getEnvOrDefault("MIPAL_TOKEN", "")
	defaultTimeout = getEnvDuration("MIPAL_TIMEOUT", 0)
	defaultSaveDir = getEnvOrDefault("MIPAL_SAVEDIR", "")
)

// fallbackConfig holds the hardcoded defaults applied after the flag, env,
// and config-file layers
var fallbackConfig = Config{
	BaseURL: "http://localhost:8000",
	Timeout: 5 * time.Minute,
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// Config holds the resolved CLI configuration
type Config struct {
	BaseURL   string        `yaml:"baseurl"`
	AuthToken string        `yaml:"token"`
	Timeout   time.Duration `yaml:"timeout"`
	SaveDir   string        `yaml:"savedir"`

	Conversation string `yaml:"-"`
	Prompt       string `yaml:"-"`
	WebSearch    bool   `yaml:"-"`
	Quiet        bool   `yaml:"-"`
	Debug        bool   `yaml:"-"`
}

// parseConfig extracts configuration from command-line flags
func parseConfig(cmd *cli.Command) *Config {
	return &Config{
		BaseURL:   cmd.String("baseurl"),
		AuthToken: cmd.String("token"),
		Timeout:   cmd.Duration("timeout"),
		SaveDir:   cmd.String("save"),

		Conversation: cmd.String("conversation"),
		Prompt:       cmd.String("prompt"),
		WebSearch:    cmd.Bool("web-search"),
		Quiet:        cmd.Bool("quiet"),
		Debug:        cmd.Bool("debug"),
	}
}

// configFilePath returns the YAML config location
func configFilePath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, "mipal-stream", "config.yaml")
}

// applyFileConfig fills zero fields of cfg from the config file, if one
// exists. Flags and env always win over the file.
func applyFileConfig(cfg *Config) *Config {
	path := configFilePath()
	if path == "" {
		return cfg
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		zap.S().Debugw("config_file_invalid", "path", path, "error", err)
		return cfg
	}

	out := *cfg
	if err := mergo.Merge(&out, fileCfg); err != nil {
		zap.S().Debugw("config_merge_failed", "error", err)
		return cfg
	}
	return &out
}

// resolveConfig layers the configuration: flags and env win over the config
// file, and hardcoded fallbacks fill whatever is still zero
func resolveConfig(cfg *Config) *Config {
	cfg = applyFileConfig(cfg)

	out := *cfg
	if err := mergo.Merge(&out, fallbackConfig); err != nil {
		zap.S().Debugw("config_merge_failed", "error", err)
		return cfg
	}
	return &out
}
