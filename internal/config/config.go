package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/anemone/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix     = "ANEMONE"
	EnvConfigPath = "ANEMONE_CONFIG"

	DefaultBind           = "tcp://127.0.0.1:5556"
	DefaultProgram        = "anemoned"
	DefaultAnalysis       = "runtime"
	DefaultQueueCapacity  = 4096
	DefaultSampleInterval = time.Second
	DefaultStatsInterval  = 10 * time.Second
	DefaultLogLevel       = string(LogLevelInfo)

	configName = "anemone"
	configDir  = "/etc"
)

type Config struct {
	Bind           string        `mapstructure:"bind"`
	Program        string        `mapstructure:"program"`
	Analysis       string        `mapstructure:"analysis"`
	QueueCapacity  int           `mapstructure:"queue_capacity"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	StatsInterval  time.Duration `mapstructure:"stats_interval"`
	MetricsAddress string        `mapstructure:"metrics_address"`
	LogLevel       string        `mapstructure:"log_level"`
	PIDFile        string        `mapstructure:"pid_file"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"bind":            "bind",
	"program":         "program",
	"analysis":        "analysis",
	"queue-capacity":  "queue_capacity",
	"sample-interval": "sample_interval",
	"stats-interval":  "stats_interval",
	"metrics-address": "metrics_address",
	"log-level":       "log_level",
	"pid-file":        "pid_file",
}

// Load reads the configuration from the command line
func Load() (*Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs resolves configuration with precedence flags > env > file > defaults.
func LoadArgs(args []string) (*Config, error) {
	errFactory := errors.New()

	fs := pflag.NewFlagSet(DefaultProgram, pflag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a TOML configuration file")
	fs.String("bind", DefaultBind, "Query endpoint address (tcp://, ipc:// or ws://)")
	fs.String("program", DefaultProgram, "Program name shown to inspectors")
	fs.String("analysis", DefaultAnalysis, "Analysis name shown to inspectors")
	fs.Int("queue-capacity", DefaultQueueCapacity, "Ingest queue capacity before points are dropped")
	fs.Duration("sample-interval", DefaultSampleInterval, "Interval between runtime samples")
	fs.Duration("stats-interval", DefaultStatsInterval, "Interval between session statistics log lines (0 disables them)")
	fs.String("metrics-address", "", "Listen address for Prometheus metrics (disabled when empty)")
	fs.String("log-level", DefaultLogLevel, "Log level: debug, info, warning, error")
	fs.String("pid-file", defaultPIDFile(), "Path of the PID file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, *configPath); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bind", DefaultBind)
	v.SetDefault("program", DefaultProgram)
	v.SetDefault("analysis", DefaultAnalysis)
	v.SetDefault("queue_capacity", DefaultQueueCapacity)
	v.SetDefault("sample_interval", DefaultSampleInterval)
	v.SetDefault("stats_interval", DefaultStatsInterval)
	v.SetDefault("metrics_address", "")
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("pid_file", defaultPIDFile())
}

func readConfigFile(v *viper.Viper, path string) error {
	errFactory := errors.New()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
		return nil
	}

	v.SetConfigName(configName)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	return nil
}

func defaultPIDFile() string {
	return filepath.Join(os.TempDir(), DefaultProgram+".pid")
}

// Validate checks the resolved configuration
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	var problems []ValidationError
	if strings.TrimSpace(c.Bind) == "" {
		problems = append(problems, ValidationError{Field: "bind", Value: c.Bind, Reason: "must not be empty"})
	}
	if c.QueueCapacity < 1 {
		problems = append(problems, ValidationError{Field: "queue_capacity", Value: c.QueueCapacity, Reason: "must be at least 1"})
	}
	if len(problems) > 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, problems)
	}

	if c.SampleInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, ValidationError{
			Field: "sample_interval", Value: c.SampleInterval, Reason: "must be positive",
		})
	}
	// zero disables session statistics
	if c.StatsInterval < 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, ValidationError{
			Field: "stats_interval", Value: c.StatsInterval, Reason: "must not be negative",
		})
	}

	return nil
}
