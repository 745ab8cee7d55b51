package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"
	"path"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/maxpert/topology/dbconfig"
	"github.com/rs/zerolog/log"
)

// KnobsConfiguration holds the fallbacks used when the configuration leaves a role count on auto
type KnobsConfiguration struct {
	DefaultAutoProxies   int `toml:"default_auto_proxies"`
	DefaultAutoResolvers int `toml:"default_auto_resolvers"`
	DefaultAutoLogs      int `toml:"default_auto_logs"`
	PolicyCacheSize      int `toml:"policy_cache_size"` // Decoded replication policies kept in memory
}

// StorageConfiguration controls the on-disk configuration store
type StorageConfiguration struct {
	CacheSizeMB               int64 `toml:"cache_size_mb"`
	MemTableSizeMB            int64 `toml:"memtable_size_mb"`
	Sync                      bool  `toml:"sync"`                        // fsync every commit
	CheckpointIntervalSeconds int   `toml:"checkpoint_interval_seconds"` // 0 disables log truncation
}

// AdminConfiguration controls the HTTP admin API
type AdminConfiguration struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
	Secret      string `toml:"secret"` // Empty disables authentication
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// Configuration is the main configuration structure
type Configuration struct {
	NodeID  uint64 `toml:"node_id"`
	DataDir string `toml:"data_dir"`

	Knobs      KnobsConfiguration      `toml:"knobs"`
	Storage    StorageConfiguration    `toml:"storage"`
	Admin      AdminConfiguration      `toml:"admin"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	DataDirFlag    = flag.String("data-dir", "", "Data directory (overrides config)")
	NodeIDFlag     = flag.Uint64("node-id", 0, "Node ID (overrides config, 0=auto)")
	AdminPortFlag  = flag.Int("admin-port", 0, "Admin HTTP port (overrides config)")
)

// Default configuration
var Config = defaultConfiguration()

func defaultConfiguration() *Configuration {
	return &Configuration{
		NodeID:  0, // Auto-generate
		DataDir: "./topology-data",

		Knobs: KnobsConfiguration{
			DefaultAutoProxies:   3,
			DefaultAutoResolvers: 1,
			DefaultAutoLogs:      3,
			PolicyCacheSize:      128,
		},

		Storage: StorageConfiguration{
			CacheSizeMB:               8,
			MemTableSizeMB:            4,
			Sync:                      true,
			CheckpointIntervalSeconds: 300,
		},

		Admin: AdminConfiguration{
			Enabled:     true,
			BindAddress: "127.0.0.1",
			Port:        8090,
		},

		Logging: LoggingConfiguration{
			Verbose: false,
			Format:  "console",
		},

		Prometheus: PrometheusConfiguration{
			Enabled: true,
		},
	}
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	// Load from file if it exists
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *DataDirFlag != "" {
		Config.DataDir = *DataDirFlag
	}
	if *NodeIDFlag != 0 {
		Config.NodeID = *NodeIDFlag
	}
	if *AdminPortFlag != 0 {
		Config.Admin.Port = *AdminPortFlag
	}

	// Auto-generate node ID if not set
	if Config.NodeID == 0 {
		var err error
		Config.NodeID, err = generateNodeID()
		if err != nil {
			return fmt.Errorf("failed to generate node ID: %w", err)
		}
		log.Info().Uint64("node_id", Config.NodeID).Msg("Auto-generated node ID")
	}

	// Ensure data directory exists
	if err := os.MkdirAll(Config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	return nil
}

// generateNodeID creates a unique node ID based on machine ID
func generateNodeID() (uint64, error) {
	id, err := machineid.ProtectedID("topology")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}

	if Config.Admin.Enabled && (Config.Admin.Port < 1 || Config.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", Config.Admin.Port)
	}

	if Config.Prometheus.Enabled && !Config.Admin.Enabled {
		return fmt.Errorf("prometheus metrics are served by the admin listener, enable [admin]")
	}

	// Validate knobs
	if Config.Knobs.DefaultAutoProxies < 1 {
		return fmt.Errorf("default auto proxies must be >= 1")
	}

	if Config.Knobs.DefaultAutoResolvers < 1 {
		return fmt.Errorf("default auto resolvers must be >= 1")
	}

	if Config.Knobs.DefaultAutoLogs < 1 {
		return fmt.Errorf("default auto logs must be >= 1")
	}

	if Config.Knobs.PolicyCacheSize < 1 {
		return fmt.Errorf("policy cache size must be >= 1")
	}

	// Validate storage configuration
	if Config.Storage.CacheSizeMB < 1 {
		return fmt.Errorf("storage cache size must be >= 1MB")
	}

	if Config.Storage.MemTableSizeMB < 1 {
		return fmt.Errorf("storage memtable size must be >= 1MB")
	}

	if Config.Storage.CheckpointIntervalSeconds < 0 {
		return fmt.Errorf("checkpoint interval must be >= 0")
	}

	switch Config.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid logging format: %s", Config.Logging.Format)
	}

	return nil
}

// GetStorePath returns the path to the configuration store
func GetStorePath() string {
	return path.Join(Config.DataDir, "config.pebble")
}

// AdminAddress returns the listen address of the admin API
func AdminAddress() string {
	return fmt.Sprintf("%s:%d", Config.Admin.BindAddress, Config.Admin.Port)
}

// CheckpointInterval returns how often the mutation log is truncated, or 0 when disabled
func CheckpointInterval() time.Duration {
	return time.Duration(Config.Storage.CheckpointIntervalSeconds) * time.Second
}

// DatabaseKnobs converts the knob section into configuration tunables
func DatabaseKnobs() dbconfig.Knobs {
	return dbconfig.Knobs{
		DefaultAutoProxies:   Config.Knobs.DefaultAutoProxies,
		DefaultAutoResolvers: Config.Knobs.DefaultAutoResolvers,
		DefaultAutoLogs:      Config.Knobs.DefaultAutoLogs,
	}
}
