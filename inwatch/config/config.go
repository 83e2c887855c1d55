package config

import (
	"fmt"
	"strings"

	internal "github.com/ZanzyTHEbar/inotify-watcher/inwatch"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Watch WatchConfig `mapstructure:"watch"`
}

// WatchConfig stores the watch session configuration.
type WatchConfig struct {
	// Roots are the paths watched when none are given on the command line.
	Roots []string `mapstructure:"roots"`

	// Events are symbolic event names folded into the watch mask; see
	// inotify.ParseMask. "all_events" selects everything.
	Events []string `mapstructure:"events"`

	// Recursive selects whether subtrees of the roots are watched too.
	Recursive bool `mapstructure:"recursive"`

	// AutoExtend selects whether newly created directories are watched
	// automatically.
	AutoExtend bool `mapstructure:"autoExtend"`

	// Threshold is the queued-byte count used by readiness probes.
	Threshold int `mapstructure:"threshold"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Set default values
	viper.SetDefault("watch.roots", []string{internal.DefaultWatchRoot})
	viper.SetDefault("watch.events", []string{"all_events"})
	viper.SetDefault("watch.recursive", true)
	viper.SetDefault("watch.autoExtend", true)
	viper.SetDefault("watch.threshold", internal.DefaultReadThreshold)

	viper.AutomaticEnv()                                   // Read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // e.g. watch.autoExtend becomes WATCH_AUTOEXTEND

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults will be used.
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &AppConfig, nil
}
