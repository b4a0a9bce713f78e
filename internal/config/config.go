package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	QueueNum   int    `mapstructure:"queue_num"`
	AcceptMark uint32 `mapstructure:"accept_mark"`
	RejectMark uint32 `mapstructure:"reject_mark"`

	LogLevel string `mapstructure:"log_level"`
	Verbose  bool   `mapstructure:"verbose"`
	Syslog   bool   `mapstructure:"syslog"`
	NoSyslog bool   `mapstructure:"no_syslog"`

	Pidfile    string        `mapstructure:"pidfile"`
	Watch      bool          `mapstructure:"watch"`
	WatchDelay time.Duration `mapstructure:"watch_delay"`

	Charset    string            `mapstructure:"charset"`
	Blocklists []BlocklistConfig `mapstructure:"blocklists"`

	Notify  NotifyConfig  `mapstructure:"notify"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type BlocklistConfig struct {
	Path    string `mapstructure:"path"`
	Charset string `mapstructure:"charset"`
}

type NotifyConfig struct {
	QueueSize int           `mapstructure:"queue_size"`
	Redis     RedisConfig   `mapstructure:"redis"`
	DBus      DBusConfig    `mapstructure:"dbus"`
	Journal   JournalConfig `mapstructure:"journal"`
}

type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	Channel string `mapstructure:"channel"`
}

type DBusConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type JournalConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"queue":       "queue_num",
	"accept-mark": "accept_mark",
	"reject-mark": "reject_mark",
	"log-level":   "log_level",
	"verbose":     "verbose",
	"syslog":      "syslog",
	"no-syslog":   "no_syslog",
	"pidfile":     "pidfile",
	"watch":       "watch",
	"charset":     "charset",
}

// Load reads configPath (optional), NFBLOCKD_* environment variables and the
// flags in fs (optional), in increasing order of precedence.
func Load(configPath string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("queue_num", 0)
	v.SetDefault("accept_mark", 0)
	v.SetDefault("reject_mark", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("verbose", false)
	v.SetDefault("syslog", false)
	v.SetDefault("no_syslog", false)
	v.SetDefault("pidfile", "/var/run/nfblockd.pid")
	v.SetDefault("watch", false)
	v.SetDefault("watch_delay", "1s")
	v.SetDefault("charset", "ISO-8859-1")
	v.SetDefault("notify.queue_size", 1024)
	v.SetDefault("notify.redis.addr", "")
	v.SetDefault("notify.redis.channel", "nfblockd:blocked")
	v.SetDefault("notify.dbus.enabled", false)
	v.SetDefault("notify.journal.enabled", false)
	v.SetDefault("notify.journal.path", "/var/lib/nfblockd/events.db")
	v.SetDefault("notify.journal.retention", "168h")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9436")
	v.SetDefault("metrics.path", "/metrics")

	v.SetEnvPrefix("NFBLOCKD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if fs != nil {
		if err := cfg.applyFlags(fs); err != nil {
			return nil, err
		}
	}

	for i := range cfg.Blocklists {
		if cfg.Blocklists[i].Charset == "" {
			cfg.Blocklists[i].Charset = cfg.Charset
		}
	}
	if cfg.Verbose {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// applyFlags handles flags that do not map onto a single scalar key.
func (c *Config) applyFlags(fs *pflag.FlagSet) error {
	if f := fs.Lookup("file"); f != nil && f.Changed {
		files, err := fs.GetStringSlice("file")
		if err != nil {
			return fmt.Errorf("reading --file: %w", err)
		}
		c.Blocklists = c.Blocklists[:0]
		for _, p := range files {
			c.Blocklists = append(c.Blocklists, BlocklistConfig{Path: p})
		}
	}
	if f := fs.Lookup("no-dbus"); f != nil && f.Changed {
		noDBus, err := fs.GetBool("no-dbus")
		if err != nil {
			return fmt.Errorf("reading --no-dbus: %w", err)
		}
		if noDBus {
			c.Notify.DBus.Enabled = false
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.QueueNum < 0 || c.QueueNum > 65535 {
		return fmt.Errorf("queue_num (%d) must be within 0-65535", c.QueueNum)
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	for i, b := range c.Blocklists {
		if b.Path == "" {
			return fmt.Errorf("blocklists[%d]: path is required", i)
		}
	}
	if c.WatchDelay < 0 {
		return fmt.Errorf("watch_delay must not be negative")
	}
	if c.Notify.Journal.Enabled && c.Notify.Journal.Path == "" {
		return fmt.Errorf("notify.journal.path is required when the journal is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics are enabled")
	}
	return nil
}
