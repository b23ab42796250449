package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// VolumeSpec is one entry of volumes[].
type VolumeSpec struct {
	ID            string `yaml:"id"`
	MountPath     string `yaml:"mount_path"`
	ShardingDepth int    `yaml:"sharding_depth"`
}

// RetrySpec is the retry: configuration block.
type RetrySpec struct {
	Max          int           `yaml:"max"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	Exponential  bool          `yaml:"exponential"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// StoreEngineSpec is the store_engine: configuration block, passed
// through to the embedded engine untranslated.
type StoreEngineSpec struct {
	JournalOn      bool          `yaml:"journal_on"`
	CheckpointNTx  int           `yaml:"checkpoint_n_tx"`
	LockTimeoutSec time.Duration `yaml:"lock_timeout_sec"`
	ConnectionMode string        `yaml:"connection_mode"`
}

// TenantSeed names a tenant to pre-seed at startup (tenants[]).
// cmd/fqstore creates the tenant record if it is missing; it does not
// apply Quota to the tenant's quota store.
type TenantSeed struct {
	ID    string `yaml:"id"`
	Quota int64  `yaml:"quota"`
}

// Config is the full set of options the core recognizes.
type Config struct {
	Volumes      []VolumeSpec `yaml:"volumes"`
	MetadataRoot string       `yaml:"metadata_root"`
	QuotaRoot    string       `yaml:"quota_root"`

	Retry RetrySpec `yaml:"retry"`

	ProcessingTimeout  time.Duration `yaml:"processing_timeout"`
	FailedRetention    time.Duration `yaml:"failed_retention"`
	CompletedRetention time.Duration `yaml:"completed_retention"`

	CleanupInterval     time.Duration `yaml:"cleanup_interval"`
	CleanupInitialDelay time.Duration `yaml:"cleanup_initial_delay"`

	CompactionEnabled  bool          `yaml:"compaction_enabled"`
	CompactionInterval time.Duration `yaml:"compaction_interval"`

	HealthCheckEnabled bool `yaml:"health_check_enabled"`
	AutoRecover        bool `yaml:"auto_recover"`
	FailFast           bool `yaml:"fail_fast"`

	DefaultTenantQuota int64        `yaml:"default_tenant_quota"`
	Tenants            []TenantSeed `yaml:"tenants"`
	AutoCreateTenants  bool         `yaml:"auto_create_tenants"`

	StoreEngine StoreEngineSpec `yaml:"store_engine"`
}

// Default returns the Config that Load starts from: a field omitted
// from the YAML file keeps the value set here.
func Default() Config {
	return Config{
		Retry: RetrySpec{
			Max:          5,
			InitialDelay: time.Second,
			Exponential:  true,
			MaxDelay:     5 * time.Minute,
		},
		ProcessingTimeout:   10 * time.Minute,
		FailedRetention:     7 * 24 * time.Hour,
		CompletedRetention:  24 * time.Hour,
		CleanupInterval:     time.Minute,
		CleanupInitialDelay: 10 * time.Second,
		CompactionEnabled:   true,
		CompactionInterval:  24 * time.Hour,
		HealthCheckEnabled:  true,
		AutoRecover:         true,
		FailFast:            false,
		AutoCreateTenants:   false,
	}
}

// Load reads and parses a YAML config file at path, starting from
// Default so an omitted field keeps its default rather than zeroing.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants the core's constructors rely on:
// at least one volume, and a sharding depth within the 0-3 range (spec
// §6, §4.1).
func (c Config) Validate() error {
	if len(c.Volumes) == 0 {
		return fmt.Errorf("config: at least one volume is required")
	}
	seen := make(map[string]bool, len(c.Volumes))
	for _, v := range c.Volumes {
		if v.ID == "" {
			return fmt.Errorf("config: volume entry missing id")
		}
		if seen[v.ID] {
			return fmt.Errorf("config: duplicate volume id %q", v.ID)
		}
		seen[v.ID] = true
		if v.ShardingDepth < 0 || v.ShardingDepth > 3 {
			return fmt.Errorf("config: volume %s: sharding_depth must be 0-3, got %d", v.ID, v.ShardingDepth)
		}
	}
	if c.MetadataRoot == "" {
		return fmt.Errorf("config: metadata_root is required")
	}
	if c.QuotaRoot == "" {
		return fmt.Errorf("config: quota_root is required")
	}
	return nil
}
