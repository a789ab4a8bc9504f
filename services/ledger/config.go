package ledger

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vsc-eco/vsc-farm/contracts/farm"
	"github.com/vsc-eco/vsc-farm/internal/kv"
)

// Config holds the ledger service settings. It is read from an optional
// YAML file and then overridden from the environment.
type Config struct {
	Port    string `yaml:"port"`
	DataDir string `yaml:"data_dir"`
	// StorageByteCost is a decimal amount of the native token per byte.
	StorageByteCost string     `yaml:"storage_byte_cost"`
	LevelDB         kv.Options `yaml:"leveldb"`
	TransferWebhook string     `yaml:"transfer_webhook"`
	DispatchQueue   int        `yaml:"dispatch_queue"`
	// RequeueInterval is how often pending transfers that are not queued
	// are handed to the dispatcher again.
	RequeueInterval time.Duration `yaml:"requeue_interval"`
	Metrics         bool          `yaml:"metrics"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Port:            "8082",
		StorageByteCost: farm.DefaultStorageByteCost.String(),
		DispatchQueue:   256,
		RequeueInterval: 30 * time.Second,
		Metrics:         true,
		AllowedOrigins:  []string{"*"},
	}
}

// LoadConfig reads the YAML file at path over the defaults. An empty path
// returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv loads envFile if it exists and applies FARM_* overrides.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if v := os.Getenv("FARM_LEDGER_PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("FARM_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("FARM_TRANSFER_WEBHOOK"); v != "" {
		c.TransferWebhook = v
	}
	if v := os.Getenv("FARM_STORAGE_BYTE_COST"); v != "" {
		c.StorageByteCost = v
	}
	if v := os.Getenv("FARM_DISPATCH_QUEUE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FARM_DISPATCH_QUEUE: %w", err)
		}
		c.DispatchQueue = n
	}
	return nil
}

// ContractConfig converts the service settings into ledger settings.
func (c Config) ContractConfig() (farm.Config, error) {
	cfg := farm.DefaultConfig()
	if c.StorageByteCost != "" {
		cost, err := farm.ParseAmount(c.StorageByteCost)
		if err != nil {
			return cfg, fmt.Errorf("storage_byte_cost: %w", err)
		}
		cfg.StorageByteCost = cost
	}
	return cfg, nil
}

// OpenStore opens the configured state store. Without a data directory the
// state lives in memory.
func (c Config) OpenStore() (kv.Store, error) {
	if c.DataDir == "" {
		return kv.NewMemStore(), nil
	}
	return kv.OpenLevelDB(c.DataDir, c.LevelDB)
}
