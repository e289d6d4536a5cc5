// Package config loads server configuration from an optional config file
// (JSON or YAML) whose path is given explicitly, layered with TASKROUTER_*
// environment overrides, following the teacher's viper-based bootstrap
// convention. No file is looked up in the data directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the fully resolved server configuration.
type Config struct {
	DataDir         string        `mapstructure:"data_dir"`
	DBPath          string        `mapstructure:"db_path"`
	AttachmentsDir  string        `mapstructure:"attachments_dir"`
	TmpDir          string        `mapstructure:"tmp_dir"`
	HTTPAddr        string        `mapstructure:"http_addr"`
	PoolMaxConcurrent int         `mapstructure:"pool_max_concurrent"`
	AgentCommand    string        `mapstructure:"agent_command"`
	AgentArgs       []string      `mapstructure:"agent_args"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	ShutdownDrain   time.Duration `mapstructure:"shutdown_drain"`
	Observability   Observability `mapstructure:"observability"`
}

// Observability toggles optional tracing/metrics export.
type Observability struct {
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	Exporter       string `mapstructure:"exporter"` // "otlp" | "jaeger" | "zipkin"
	Endpoint       string `mapstructure:"endpoint"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")
	v.SetDefault("db_path", "./data/taskrouter.db")
	v.SetDefault("attachments_dir", "./data/attachments")
	v.SetDefault("tmp_dir", "./data/tmp")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("pool_max_concurrent", 4)
	v.SetDefault("agent_command", "agent-cli")
	v.SetDefault("agent_args", []string{"--stream-json", "--dangerously-skip-permissions"})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("shutdown_drain", 30*time.Second)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.metrics_enabled", true)
}

// Load reads configFile (if non-empty) plus TASKROUTER_* environment
// overrides into a Config. A missing configFile is not an error; defaults
// and environment variables still apply.
func Load(configFile string) (Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("TASKROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// YAML renders the fully-resolved configuration (file + env + defaults) as
// YAML, independent of whatever format configFile was written in, so an
// operator can confirm exactly what values `serve` will run with.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
