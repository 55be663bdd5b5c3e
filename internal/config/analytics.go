package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	DefaultRetentionLimit = 5
	DefaultMaxExcerptRows = 100
)

// AnalyticsConfig holds the tunables of the ingestion and reporting pipeline.
type AnalyticsConfig struct {
	RetentionLimit int           `mapstructure:"retentionLimit"`
	MaxExcerptRows int           `mapstructure:"maxExcerptRows"`
	Columns        ColumnsConfig `mapstructure:"columns"`
}

// ColumnsConfig maps the logical CSV fields to their header labels.
type ColumnsConfig struct {
	Name        string `mapstructure:"name"`
	Category    string `mapstructure:"category"`
	Flowrate    string `mapstructure:"flowrate"`
	Pressure    string `mapstructure:"pressure"`
	Temperature string `mapstructure:"temperature"`
}

func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		RetentionLimit: DefaultRetentionLimit,
		MaxExcerptRows: DefaultMaxExcerptRows,
		Columns: ColumnsConfig{
			Name:        "Equipment Name",
			Category:    "Type",
			Flowrate:    "Flowrate",
			Pressure:    "Pressure",
			Temperature: "Temperature",
		},
	}
}

type AnalyticsConfigHolder struct {
	current atomic.Value // holds AnalyticsConfig
}

// NewStaticAnalyticsConfigHolder returns a holder that never reloads.
func NewStaticAnalyticsConfigHolder(cfg AnalyticsConfig) (*AnalyticsConfigHolder, error) {
	if err := ValidateAnalyticsConfig(cfg); err != nil {
		return nil, err
	}
	holder := &AnalyticsConfigHolder{}
	holder.current.Store(cfg)
	return holder, nil
}

func NewAnalyticsConfigHolder() (*AnalyticsConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("analytics")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/equiplytics/config")
	v.AddConfigPath("/etc/equiplytics")
	v.AddConfigPath(".")

	v.SetEnvPrefix("EQUIPLYTICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setAnalyticsDefaults(v, DefaultAnalyticsConfig())

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	var cfg AnalyticsConfig
	if err := v.UnmarshalKey("analytics", &cfg); err != nil {
		return nil, err
	}
	if err := ValidateAnalyticsConfig(cfg); err != nil {
		return nil, err
	}

	holder := &AnalyticsConfigHolder{}
	holder.current.Store(cfg)

	if watch {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated AnalyticsConfig
			if err := v.UnmarshalKey("analytics", &updated); err != nil {
				log.Printf("[analytics-config] reload failed: %v", err)
				return
			}
			if err := ValidateAnalyticsConfig(updated); err != nil {
				log.Printf("[analytics-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[analytics-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *AnalyticsConfigHolder) Get() AnalyticsConfig {
	return h.current.Load().(AnalyticsConfig)
}

func setAnalyticsDefaults(v *viper.Viper, defaults AnalyticsConfig) {
	v.SetDefault("analytics.retentionLimit", defaults.RetentionLimit)
	v.SetDefault("analytics.maxExcerptRows", defaults.MaxExcerptRows)
	v.SetDefault("analytics.columns.name", defaults.Columns.Name)
	v.SetDefault("analytics.columns.category", defaults.Columns.Category)
	v.SetDefault("analytics.columns.flowrate", defaults.Columns.Flowrate)
	v.SetDefault("analytics.columns.pressure", defaults.Columns.Pressure)
	v.SetDefault("analytics.columns.temperature", defaults.Columns.Temperature)
}

func ValidateAnalyticsConfig(cfg AnalyticsConfig) error {
	if cfg.RetentionLimit < 1 {
		return errors.New("analytics.retentionLimit must be at least 1")
	}
	if cfg.MaxExcerptRows < 1 {
		return errors.New("analytics.maxExcerptRows must be at least 1")
	}

	labels := []string{
		cfg.Columns.Name,
		cfg.Columns.Category,
		cfg.Columns.Flowrate,
		cfg.Columns.Pressure,
		cfg.Columns.Temperature,
	}
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			return errors.New("analytics.columns labels cannot be empty")
		}
		if _, dup := seen[label]; dup {
			return fmt.Errorf("analytics.columns label %q is used twice", label)
		}
		seen[label] = struct{}{}
	}
	return nil
}
