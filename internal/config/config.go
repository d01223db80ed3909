// Package config loads CLI settings from flags, CONCURRENCE_* environment
// variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/baxromumarov/concurrence"
)

const envPrefix = "concurrence"

// Config is the CLI configuration. Each field maps to a config key.
type Config struct {
	Concurrency  int           `mapstructure:"concurrency"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Retry        int           `mapstructure:"retry"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	FailFast     bool          `mapstructure:"fail_fast"`
	IgnoreErrors bool          `mapstructure:"ignore_errors"`
	Rate         float64       `mapstructure:"rate"`
	Burst        int           `mapstructure:"burst"`
	Shell        string        `mapstructure:"shell"`
	Logger       LoggerConfig  `mapstructure:"logger"`
}

// LoggerConfig represents the configuration for the logger
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	JSONOutput bool   `mapstructure:"json_output"`
	AddSource  bool   `mapstructure:"add_source"`
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"concurrency":   "concurrency",
	"timeout":       "timeout",
	"retry":         "retry",
	"retry-delay":   "retry_delay",
	"fail-fast":     "fail_fast",
	"ignore-errors": "ignore_errors",
	"rate":          "rate",
	"burst":         "burst",
	"shell":         "shell",
	"log-level":     "logger.level",
	"log-json":      "logger.json_output",
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Concurrency: 4,
		Burst:       1,
		Shell:       "sh",
		Logger: LoggerConfig{
			Level: "warn",
		},
	}
}

// RegisterFlags adds the run flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "path to a config file (yaml, toml or json)")
	fs.IntP("concurrency", "c", d.Concurrency, "maximum jobs in flight (0 = unbounded)")
	fs.Duration("timeout", d.Timeout, "wall-clock budget for the whole run (0 = none)")
	fs.IntP("retry", "r", d.Retry, "extra attempts per failing job")
	fs.Duration("retry-delay", d.RetryDelay, "pause between attempts of the same job")
	fs.Bool("fail-fast", d.FailFast, "stop after the first job that exhausts its attempts")
	fs.Bool("ignore-errors", d.IgnoreErrors, "never escalate job failures, even with --fail-fast")
	fs.Float64("rate", d.Rate, "maximum job attempts per second (0 = unlimited)")
	fs.Int("burst", d.Burst, "attempts allowed at once when --rate is set")
	fs.String("shell", d.Shell, "shell used to run each job's command")
	fs.String("log-level", d.Logger.Level, "log level: debug, info, warn, error")
	fs.Bool("log-json", d.Logger.JSONOutput, "log as JSON")
}

// Load merges defaults, the config file named by --config, environment
// variables and explicitly set flags, in increasing order of precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("retry", d.Retry)
	v.SetDefault("retry_delay", d.RetryDelay)
	v.SetDefault("fail_fast", d.FailFast)
	v.SetDefault("ignore_errors", d.IgnoreErrors)
	v.SetDefault("rate", d.Rate)
	v.SetDefault("burst", d.Burst)
	v.SetDefault("shell", d.Shell)
	v.SetDefault("logger.level", d.Logger.Level)
	v.SetDefault("logger.json_output", d.Logger.JSONOutput)
	v.SetDefault("logger.add_source", d.Logger.AddSource)

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must be >= 0, got %d", c.Concurrency))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must be >= 0, got %s", c.Timeout))
	}
	if c.Retry < 0 {
		errs = append(errs, fmt.Errorf("retry must be >= 0, got %d", c.Retry))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry_delay must be >= 0, got %s", c.RetryDelay))
	}
	if c.Rate < 0 {
		errs = append(errs, fmt.Errorf("rate must be >= 0, got %g", c.Rate))
	}
	if c.Rate > 0 && c.Burst <= 0 {
		errs = append(errs, fmt.Errorf("burst must be > 0 when rate is set, got %d", c.Burst))
	}
	if strings.TrimSpace(c.Shell) == "" {
		errs = append(errs, errors.New("shell must not be empty"))
	}
	return errors.Join(errs...)
}

// Options translates the configuration into runner options.
func (c *Config) Options(logger *slog.Logger) []concurrence.Option {
	opts := []concurrence.Option{
		concurrence.WithConcurrency(c.Concurrency),
		concurrence.WithTimeout(c.Timeout),
		concurrence.WithRetry(c.Retry),
		concurrence.WithRetryDelay(c.RetryDelay),
		concurrence.WithLogger(logger),
	}
	if c.FailFast {
		opts = append(opts, concurrence.WithFailFast())
	}
	if c.IgnoreErrors {
		opts = append(opts, concurrence.WithIgnoreErrors())
	}
	if c.Rate > 0 {
		opts = append(opts, concurrence.WithRateLimit(c.Rate, c.Burst))
	}
	return opts
}
