package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	RoundingHalfUp   = "half_up"
	RoundingHalfEven = "half_even"
)

// SchedulerConfig tunes the generation driver. It is reloaded at runtime when
// scheduler.yml changes.
type SchedulerConfig struct {
	RunInterval  time.Duration `mapstructure:"run_interval"`
	Cron         string        `mapstructure:"cron"`
	BatchSize    int           `mapstructure:"batch_size"`
	JobTimeout   time.Duration `mapstructure:"job_timeout"`
	LeaseTTL     time.Duration `mapstructure:"lease_ttl"`
	EmailTimeout time.Duration `mapstructure:"email_timeout"`
	Timezone     string        `mapstructure:"timezone"`
	RoundingMode string        `mapstructure:"rounding_mode"`
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		RunInterval:  time.Minute,
		BatchSize:    100,
		JobTimeout:   5 * time.Minute,
		LeaseTTL:     2 * time.Minute,
		EmailTimeout: 15 * time.Second,
		Timezone:     "Asia/Kolkata",
		RoundingMode: RoundingHalfUp,
	}
}

// Location resolves Timezone, falling back to UTC.
func (c SchedulerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

type SchedulerConfigHolder struct {
	current atomic.Value // holds SchedulerConfig
}

func NewSchedulerConfigHolder(log *zap.Logger) (*SchedulerConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.scheduler")

	v := viper.New()
	v.SetConfigName("scheduler")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/invoicely")
	v.AddConfigPath(".")

	v.SetEnvPrefix("INVOICELY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSchedulerConfig()
	v.SetDefault("scheduler.run_interval", defaults.RunInterval)
	v.SetDefault("scheduler.cron", defaults.Cron)
	v.SetDefault("scheduler.batch_size", defaults.BatchSize)
	v.SetDefault("scheduler.job_timeout", defaults.JobTimeout)
	v.SetDefault("scheduler.lease_ttl", defaults.LeaseTTL)
	v.SetDefault("scheduler.email_timeout", defaults.EmailTimeout)
	v.SetDefault("scheduler.timezone", defaults.Timezone)
	v.SetDefault("scheduler.rounding_mode", defaults.RoundingMode)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	var cfg SchedulerConfig
	if err := v.UnmarshalKey("scheduler", &cfg); err != nil {
		return nil, err
	}
	if err := ValidateSchedulerConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticSchedulerConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SchedulerConfig
		if err := v.UnmarshalKey("scheduler", &updated); err != nil {
			log.Warn("scheduler.config.reload_failed", zap.Error(err))
			return
		}
		if err := ValidateSchedulerConfig(updated); err != nil {
			log.Warn("scheduler.config.invalid_ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("scheduler.config.reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticSchedulerConfigHolder wraps a fixed configuration.
func NewStaticSchedulerConfigHolder(cfg SchedulerConfig) *SchedulerConfigHolder {
	holder := &SchedulerConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *SchedulerConfigHolder) Get() SchedulerConfig {
	if h == nil {
		return DefaultSchedulerConfig()
	}
	return h.current.Load().(SchedulerConfig)
}

func ValidateSchedulerConfig(cfg SchedulerConfig) error {
	if cfg.RunInterval <= 0 && strings.TrimSpace(cfg.Cron) == "" {
		return errors.New("scheduler.run_interval must be positive when no cron is set")
	}
	if cfg.BatchSize <= 0 {
		return errors.New("scheduler.batch_size must be positive")
	}
	if cfg.LeaseTTL <= 0 {
		return errors.New("scheduler.lease_ttl must be positive")
	}
	if cfg.EmailTimeout <= 0 {
		return errors.New("scheduler.email_timeout must be positive")
	}
	switch cfg.RoundingMode {
	case RoundingHalfUp, RoundingHalfEven:
	default:
		return fmt.Errorf("scheduler.rounding_mode %q is not supported", cfg.RoundingMode)
	}
	if _, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone)); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	return nil
}
