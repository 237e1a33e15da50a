// Package config loads rrdb's server/cache/database configuration from a
// viper-backed YAML file, the same way the teacher project layers
// mapstructure config on top of spf13/viper.
package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/wellsgz/rrdb/internal/rrd"
)

// Config is the root configuration for both `rrdbctl serve` (query API)
// and `rrdbctl cache` (update-cache daemon).
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Global    GlobalConfig     `mapstructure:"global"`
	Cache     CacheConfig      `mapstructure:"cache"`
	Databases []DatabaseConfig `mapstructure:"databases"`
}

// ServerConfig holds query-API server settings.
type ServerConfig struct {
	Address         string `mapstructure:"address"`
	EnableWebSocket bool   `mapstructure:"enable_websocket"`
}

// GlobalConfig holds settings shared by every component.
type GlobalConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// CacheConfig holds update-cache daemon settings.
type CacheConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	SocketPath    string        `mapstructure:"socket_path"`
}

// DSConfig describes one data source, mirroring rrd.DSDef.
type DSConfig struct {
	Name      string  `mapstructure:"name"`
	Type      string  `mapstructure:"type"`
	Heartbeat int32   `mapstructure:"heartbeat"`
	Min       string  `mapstructure:"min"` // "U" or a float; matches the classic DS: string form
	Max       string  `mapstructure:"max"`
}

// RRAConfig describes one archive, mirroring rrd.ArchiveDef.
type RRAConfig struct {
	CF    string  `mapstructure:"cf"`
	XFF   float64 `mapstructure:"xff"`
	Steps int32   `mapstructure:"steps"`
	Rows  int32   `mapstructure:"rows"`
}

// DatabaseConfig names one managed database and its creation schema. Name
// is relative to Global.DataDir unless it starts with "memory:" or "/".
type DatabaseConfig struct {
	Name string      `mapstructure:"name"`
	Step int32       `mapstructure:"step"`
	DS   []DSConfig  `mapstructure:"ds"`
	RRA  []RRAConfig `mapstructure:"rra"`
}

// Load reads configuration from configPath, applying defaults and
// validating the result. onChange, if non-nil, is invoked whenever the
// file changes on disk (used by the cache daemon to reload database
// definitions without a restart).
func Load(configPath string, onChange func(*Config)) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.address", ":7317")
	v.SetDefault("server.enable_websocket", true)
	v.SetDefault("global.data_dir", "./data")
	v.SetDefault("cache.flush_interval", "1s")
	v.SetDefault("cache.socket_path", "/var/run/rrdb/rrdb.sock")

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	if onChange != nil {
		v.OnConfigChange(func(fsnotify.Event) {
			if next, err := decode(v); err == nil {
				onChange(next)
			}
		})
		v.WatchConfig()
	}

	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and valid values,
// reusing the engine's own definition-string parsers so the accepted
// vocabulary never drifts from what rrd.Create actually accepts.
func (c *Config) Validate() error {
	if len(c.Databases) == 0 {
		return fmt.Errorf("at least one database is required")
	}
	if c.Cache.FlushInterval <= 0 {
		return fmt.Errorf("cache.flush_interval must be positive")
	}

	seen := make(map[string]bool, len(c.Databases))
	for i, db := range c.Databases {
		if db.Name == "" {
			return fmt.Errorf("databases[%d]: name is required", i)
		}
		if seen[db.Name] {
			return fmt.Errorf("databases[%d]: duplicate name %q", i, db.Name)
		}
		seen[db.Name] = true
		if db.Step <= 0 {
			return fmt.Errorf("databases[%d] %q: step must be positive", i, db.Name)
		}
		if len(db.DS) == 0 {
			return fmt.Errorf("databases[%d] %q: at least one ds is required", i, db.Name)
		}
		if len(db.RRA) == 0 {
			return fmt.Errorf("databases[%d] %q: at least one rra is required", i, db.Name)
		}
		for j, ds := range db.DS {
			if _, ok := rrd.ParseDSType(ds.Type); !ok {
				return fmt.Errorf("databases[%d] %q: ds[%d] %q: unknown type %q", i, db.Name, j, ds.Name, ds.Type)
			}
			if ds.Heartbeat <= 0 {
				return fmt.Errorf("databases[%d] %q: ds[%d] %q: heartbeat must be positive", i, db.Name, j, ds.Name)
			}
		}
		for j, rra := range db.RRA {
			if _, ok := rrd.ParseCFunc(rra.CF); !ok {
				return fmt.Errorf("databases[%d] %q: rra[%d]: unknown cf %q", i, db.Name, j, rra.CF)
			}
			if rra.XFF < 0 || rra.XFF >= 1 {
				return fmt.Errorf("databases[%d] %q: rra[%d]: xff must be in [0,1)", i, db.Name, j)
			}
			if rra.Steps < 1 {
				return fmt.Errorf("databases[%d] %q: rra[%d]: steps must be >= 1", i, db.Name, j)
			}
			if rra.Rows < 1 {
				return fmt.Errorf("databases[%d] %q: rra[%d]: rows must be >= 1", i, db.Name, j)
			}
		}
	}
	return nil
}

// Definition builds an rrd.Definition for db, resolved to path (the
// caller joins Global.DataDir and db.Name).
func (db *DatabaseConfig) Definition(path string, startTime int64) (rrd.Definition, error) {
	def := rrd.Definition{Path: path, Step: db.Step, StartTime: startTime}
	for _, ds := range db.DS {
		dsDef, err := rrd.ParseDSDef(fmt.Sprintf("DS:%s:%s:%d:%s:%s", ds.Name, ds.Type, ds.Heartbeat, ds.Min, ds.Max))
		if err != nil {
			return rrd.Definition{}, err
		}
		def.DSs = append(def.DSs, dsDef)
	}
	for _, rra := range db.RRA {
		rraDef, err := rrd.ParseArchiveDef(fmt.Sprintf("RRA:%s:%v:%d:%d", rra.CF, rra.XFF, rra.Steps, rra.Rows))
		if err != nil {
			return rrd.Definition{}, err
		}
		def.Archives = append(def.Archives, rraDef)
	}
	return def, nil
}
