package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// Gridwalk Server Configuration with Environment Overrides
// =============================================================================

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	World       WorldConfig       `yaml:"world"`
	Pool        PoolConfig        `yaml:"pool"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Notify      NotifyConfig      `yaml:"notify"`
	Observer    ObserverConfig    `yaml:"observer"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig controls the control socket itself.
type ServerConfig struct {
	SocketPath       string `yaml:"socket_path"`
	Backlog          int    `yaml:"backlog"`
	ClientCapacity   int    `yaml:"client_capacity"`
	ShutdownGraceSec int    `yaml:"shutdown_grace_sec"`
}

// WorldConfig seeds the default simulation before any CREATE_SIM/LOAD_WORLD.
type WorldConfig struct {
	Kind             string  `yaml:"kind"`
	Width            int     `yaml:"width"`
	Height           int     `yaml:"height"`
	ObstaclePercent  int     `yaml:"obstacle_percent"`
	ObstacleSeed     uint32  `yaml:"obstacle_seed"`
	ProbUp           float64 `yaml:"prob_up"`
	ProbDown         float64 `yaml:"prob_down"`
	ProbLeft         float64 `yaml:"prob_left"`
	ProbRight        float64 `yaml:"prob_right"`
	K                uint64  `yaml:"k"`
	TotalReps        uint32  `yaml:"total_reps"`
}

// PoolConfig sizes the worker pool backing the simulation manager.
type PoolConfig struct {
	Workers    int `yaml:"workers"`
	QueueDepth int `yaml:"queue_depth"`
}

// PersistenceConfig selects and configures the persistence.Store backend.
type PersistenceConfig struct {
	Backend    string `yaml:"backend"` // "file" or "postgres"
	FileDir    string `yaml:"file_dir"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// NotifyConfig selects the notification fan-out backend for broadcasts.
type NotifyConfig struct {
	Backend  string `yaml:"backend"` // "local" or "redis"
	RedisURL string `yaml:"redis_url"`
	Channel  string `yaml:"channel"`
}

// ObserverConfig controls the optional read-only websocket bridge.
type ObserverConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// MetricsConfig controls the optional Prometheus HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// =============================================================================
// Singleton Pattern with Environment Overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide singleton config, loading it from
// CONFIG_PATH (default "config.yaml") on first use.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		cfg.applyDefaults()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides on top of
// whatever was loaded from the YAML file (or left zero-valued).
func (c *Config) applyEnvOverrides() {
	c.Server.SocketPath = getEnv("GRIDWALK_SOCKET_PATH", c.Server.SocketPath)
	if v := getEnvInt("GRIDWALK_BACKLOG", 0); v > 0 {
		c.Server.Backlog = v
	}
	if v := getEnvInt("GRIDWALK_CLIENT_CAPACITY", 0); v > 0 {
		c.Server.ClientCapacity = v
	}
	if v := getEnvInt("GRIDWALK_SHUTDOWN_GRACE_SEC", 0); v > 0 {
		c.Server.ShutdownGraceSec = v
	}

	c.World.Kind = getEnv("GRIDWALK_WORLD_KIND", c.World.Kind)
	if v := getEnvInt("GRIDWALK_WORLD_WIDTH", 0); v > 0 {
		c.World.Width = v
	}
	if v := getEnvInt("GRIDWALK_WORLD_HEIGHT", 0); v > 0 {
		c.World.Height = v
	}
	if v := getEnvInt("GRIDWALK_OBSTACLE_PERCENT", -1); v >= 0 {
		c.World.ObstaclePercent = v
	}

	if v := getEnvInt("GRIDWALK_POOL_WORKERS", 0); v > 0 {
		c.Pool.Workers = v
	}
	if v := getEnvInt("GRIDWALK_POOL_QUEUE_DEPTH", 0); v > 0 {
		c.Pool.QueueDepth = v
	}

	c.Persistence.Backend = getEnv("GRIDWALK_PERSISTENCE_BACKEND", c.Persistence.Backend)
	c.Persistence.FileDir = getEnv("GRIDWALK_PERSISTENCE_DIR", c.Persistence.FileDir)
	c.Persistence.PostgresDSN = getEnv("GRIDWALK_POSTGRES_DSN", c.Persistence.PostgresDSN)

	c.Notify.Backend = getEnv("GRIDWALK_NOTIFY_BACKEND", c.Notify.Backend)
	c.Notify.RedisURL = getEnv("GRIDWALK_REDIS_URL", c.Notify.RedisURL)
	c.Notify.Channel = getEnv("GRIDWALK_NOTIFY_CHANNEL", c.Notify.Channel)

	c.Observer.Enabled = getEnvBool("GRIDWALK_OBSERVER_ENABLED", c.Observer.Enabled)
	c.Observer.Addr = getEnv("GRIDWALK_OBSERVER_ADDR", c.Observer.Addr)

	c.Metrics.Enabled = getEnvBool("GRIDWALK_METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Addr = getEnv("GRIDWALK_METRICS_ADDR", c.Metrics.Addr)
}

// applyDefaults fills any fields still zero-valued after file load + env
// overrides with sane defaults.
func (c *Config) applyDefaults() {
	if c.Server.SocketPath == "" {
		c.Server.SocketPath = "/tmp/rw_test.sock"
	}
	if c.Server.Backlog == 0 {
		c.Server.Backlog = 16
	}
	if c.Server.ClientCapacity == 0 {
		c.Server.ClientCapacity = 16
	}
	if c.Server.ShutdownGraceSec == 0 {
		c.Server.ShutdownGraceSec = 5
	}

	if c.World.Kind == "" {
		c.World.Kind = "WRAP"
	}
	if c.World.Width == 0 {
		c.World.Width = 32
	}
	if c.World.Height == 0 {
		c.World.Height = 32
	}
	if c.World.K == 0 {
		c.World.K = 10000
	}
	if c.World.TotalReps == 0 {
		c.World.TotalReps = 100
	}
	if c.World.ProbUp == 0 && c.World.ProbDown == 0 && c.World.ProbLeft == 0 && c.World.ProbRight == 0 {
		c.World.ProbUp, c.World.ProbDown, c.World.ProbLeft, c.World.ProbRight = 0.25, 0.25, 0.25, 0.25
	}

	if c.Pool.Workers == 0 {
		c.Pool.Workers = 8
	}
	if c.Pool.QueueDepth == 0 {
		c.Pool.QueueDepth = 256
	}

	if c.Persistence.Backend == "" {
		c.Persistence.Backend = "file"
	}
	if c.Persistence.FileDir == "" {
		c.Persistence.FileDir = "./data"
	}

	if c.Notify.Backend == "" {
		c.Notify.Backend = "local"
	}
	if c.Notify.Channel == "" {
		c.Notify.Channel = "gridwalk:notify"
	}

	if c.Observer.Addr == "" {
		c.Observer.Addr = ":9090"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9091"
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
