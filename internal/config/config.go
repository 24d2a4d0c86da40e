package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultFlushEvery  = 1000
	DefaultBlockSize   = 4 << 20
	DefaultGCPageSize  = 250
	DefaultGracePeriod = time.Hour
	DefaultGCInterval  = 10 * time.Minute
	DefaultMaxConns    = 10
)

// Config is the bm configuration file.
type Config struct {
	HostID     string           `toml:"host_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Database   DatabaseConfig   `toml:"database"`
	Vault      VaultConfig      `toml:"vault"`
	Encryption EncryptionConfig `toml:"encryption"`
	Blocks     BlocksConfig     `toml:"blocks"`
	GC         GCConfig         `toml:"gc"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// DatabaseConfig selects the entity store. Type decides which other fields
// are read.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite", "memory" or "postgres"
	DataDir string `toml:"data_dir,omitempty"` // sqlite

	// postgres
	DSN         string `toml:"dsn,omitempty"`
	MaxConns    int32  `toml:"max_conns,omitempty"`
	AutoMigrate bool   `toml:"auto_migrate,omitempty"`
}

// VaultConfig selects the payload backend. Type decides which other fields
// are read.
type VaultConfig struct {
	Type      string `toml:"type"` // "memory", "filesystem" or "s3"
	Encrypted bool   `toml:"encrypted"`

	// filesystem
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`

	// s3
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3PathStyle       bool   `toml:"s3_path_style,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// EncryptionConfig holds paths to the age key pair.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "plain"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// BlocksConfig tunes block recording.
type BlocksConfig struct {
	FlushEvery int   `toml:"flush_every"`
	BlockSize  int64 `toml:"block_size"`
}

// GCConfig tunes the delete-candidate sweep.
type GCConfig struct {
	GracePeriod Duration `toml:"grace_period"`
	PageSize    int      `toml:"page_size"`
	Interval    Duration `toml:"interval"`
}

// MetricsConfig controls the Prometheus endpoint of `bm gc daemon`.
type MetricsConfig struct {
	ListenAddr string `toml:"listen_addr,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("1h30m").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// NewConfig returns a Config for hostID rooted at baseDir, using SQLite and
// a filesystem vault under baseDir.
func NewConfig(hostID, baseDir string) *Config {
	cfg := &Config{
		HostID:  hostID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Vault: VaultConfig{
			Type:        "filesystem",
			FSVaultRoot: filepath.Join(baseDir, "vault"),
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "bm.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "bm.key"),
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset tunables.
func (c *Config) ApplyDefaults() {
	if c.Blocks.FlushEvery <= 0 {
		c.Blocks.FlushEvery = DefaultFlushEvery
	}
	if c.Blocks.BlockSize <= 0 {
		c.Blocks.BlockSize = DefaultBlockSize
	}
	if c.GC.GracePeriod.Duration <= 0 {
		c.GC.GracePeriod.Duration = DefaultGracePeriod
	}
	if c.GC.PageSize <= 0 {
		c.GC.PageSize = DefaultGCPageSize
	}
	if c.GC.Interval.Duration <= 0 {
		c.GC.Interval.Duration = DefaultGCInterval
	}
	if c.Database.Type == "postgres" && c.Database.MaxConns <= 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Encryption.Type == "" {
		c.Encryption.Type = "age"
	}
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("base_dir required")
	}
	switch c.Database.Type {
	case "memory":
	case "sqlite":
		if c.Database.DataDir == "" {
			return fmt.Errorf("database: data_dir required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database: dsn required for postgres")
		}
	default:
		return fmt.Errorf("database: unknown type %q", c.Database.Type)
	}

	switch c.Vault.Type {
	case "memory":
	case "filesystem":
		if c.Vault.FSVaultRoot == "" {
			return fmt.Errorf("vault: fs_vault_root required for filesystem")
		}
	case "s3":
		if c.Vault.S3Bucket == "" {
			return fmt.Errorf("vault: s3_bucket required for s3")
		}
	default:
		return fmt.Errorf("vault: unknown type %q", c.Vault.Type)
	}

	if c.Blocks.FlushEvery < 1 {
		return fmt.Errorf("blocks: flush_every must be positive")
	}
	if c.Blocks.BlockSize < 1 {
		return fmt.Errorf("blocks: block_size must be positive")
	}
	return nil
}

// Manager reads and writes configuration.
type Manager struct{}

// Read decodes a Config from r and applies defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Write encodes cfg to w.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads the Config stored at path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may hold S3 credentials.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
