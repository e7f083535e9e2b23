package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvPath overrides the config path given on the command line.
const EnvPath = "CHUNKACT_CONFIG"

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Tick       TickConfig       `toml:"tick"`
	Activation ActivationConfig `toml:"activation"`
	Ticker     TickerConfig     `toml:"ticker"`
	Spawner    SpawnerConfig    `toml:"spawner"`
	Journal    JournalConfig    `toml:"journal"`
	Logging    LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Name       string `toml:"name"`
	DataDir    string `toml:"data_dir"` // placement and world tables
	ScriptsDir string `toml:"scripts_dir"`
	StartTime  int64  // set at boot, not from config
}

// DatabaseConfig configures the optional journal database. An empty DSN
// disables persistence.
type DatabaseConfig struct {
	DSN             string        `toml:"dsn"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
	LoadPlacements  bool          `toml:"load_placements"` // read placements from the db instead of yaml
}

func (c DatabaseConfig) Enabled() bool { return c.DSN != "" }

type TickConfig struct {
	Rate         time.Duration `toml:"rate"`
	ViewDistance int           `toml:"view_distance"` // in chunks
}

type ActivationConfig struct {
	DelayTicks      int64 `toml:"delay_ticks"`
	ImmediateRadius int   `toml:"immediate_radius"` // negative disables the nearby scan
}

type TickerConfig struct {
	PeriodTicks int `toml:"period_ticks"`
	Groups      int `toml:"groups"`
}

type SpawnerConfig struct {
	SpawnsPerWindow int `toml:"spawns_per_window"`
	WindowTicks     int `toml:"window_ticks"`
}

type JournalConfig struct {
	FlushIntervalTicks int `toml:"flush_interval_ticks"`
	BufferSize         int `toml:"buffer_size"`    // oldest passes are dropped beyond this
	RetentionDays      int `toml:"retention_days"` // 0 keeps everything
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

func Load(path string) (*Config, error) {
	if p := os.Getenv(EnvPath); p != "" {
		path = p
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Tick.Rate <= 0 {
		return fmt.Errorf("tick.rate must be positive, got %s", c.Tick.Rate)
	}
	if c.Tick.ViewDistance < 0 {
		return fmt.Errorf("tick.view_distance must not be negative, got %d", c.Tick.ViewDistance)
	}
	if c.Activation.DelayTicks <= 0 {
		return fmt.Errorf("activation.delay_ticks must be positive, got %d", c.Activation.DelayTicks)
	}
	if c.Ticker.Groups <= 0 || c.Ticker.PeriodTicks <= 0 {
		return fmt.Errorf("ticker.period_ticks and ticker.groups must be positive")
	}
	if c.Spawner.SpawnsPerWindow <= 0 || c.Spawner.WindowTicks <= 0 {
		return fmt.Errorf("spawner.spawns_per_window and spawner.window_ticks must be positive")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name:       "chunkactd",
			DataDir:    "data/yaml",
			ScriptsDir: "scripts",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Tick: TickConfig{
			Rate:         50 * time.Millisecond,
			ViewDistance: 4,
		},
		Activation: ActivationConfig{
			DelayTicks:      20,
			ImmediateRadius: 2,
		},
		Ticker: TickerConfig{
			PeriodTicks: 20,
			Groups:      4,
		},
		Spawner: SpawnerConfig{
			SpawnsPerWindow: 6,
			WindowTicks:     3,
		},
		Journal: JournalConfig{
			FlushIntervalTicks: 100,
			BufferSize:         4096,
			RetentionDays:      7,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
