package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	logpkg "github.com/rzbill/coedit/pkg/log"
)

// Backend selects the shared store implementation.
type Backend string

const (
	BackendPebble Backend = "pebble"
	BackendRedis  Backend = "redis"
)

// DocumentStore selects where room files are read from and written to.
type DocumentStore string

const (
	DocumentStoreFS       DocumentStore = "fs"
	DocumentStorePostgres DocumentStore = "postgres"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// Shards is the number of edit streams. Every process sharing a store
	// must use the same value.
	Shards int `json:"shards" yaml:"shards"`
	// HistoryMax bounds a document's in-memory history before compaction.
	HistoryMax int `json:"historyMax" yaml:"historyMax"`
	// ClientTTL expires silent presence entries.
	ClientTTL Duration `json:"clientTTL" yaml:"clientTTL"`
	// StreamBlock is how long a worker waits for new entries per read.
	StreamBlock     Duration `json:"streamBlock" yaml:"streamBlock"`
	StreamReadCount int      `json:"streamReadCount" yaml:"streamReadCount"`
	// TrimConsumed drops stream entries once the shard checkpoint passes them.
	TrimConsumed bool `json:"trimConsumed" yaml:"trimConsumed"`

	Backend   Backend `json:"backend" yaml:"backend"`
	RedisAddr string  `json:"redisAddr" yaml:"redisAddr"`
	RedisDB   int     `json:"redisDB" yaml:"redisDB"`

	DocumentStore DocumentStore `json:"documentStore" yaml:"documentStore"`
	// DocumentRoot is the directory room files live under for the fs store;
	// empty means {dataDir}/rooms.
	DocumentRoot string `json:"documentRoot" yaml:"documentRoot"`
	PostgresURL  string `json:"postgresURL" yaml:"postgresURL"`

	// EditFilter is an optional CEL expression an edit must satisfy to be
	// enqueued.
	EditFilter        string  `json:"editFilter" yaml:"editFilter"`
	MaxOperationBytes int     `json:"maxOperationBytes" yaml:"maxOperationBytes"`
	ClientRateLimit   float64 `json:"clientRateLimit" yaml:"clientRateLimit"`
	ClientRateBurst   int     `json:"clientRateBurst" yaml:"clientRateBurst"`

	Log logpkg.Config `json:"log" yaml:"log"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Shards:            1,
		HistoryMax:        5000,
		ClientTTL:         Duration(300 * time.Second),
		StreamBlock:       Duration(time.Second),
		StreamReadCount:   100,
		Backend:           BackendPebble,
		RedisAddr:         "127.0.0.1:6379",
		DocumentStore:     DocumentStoreFS,
		MaxOperationBytes: 1 << 20,
		ClientRateLimit:   50,
		ClientRateBurst:   100,
		Log:               logpkg.Config{Level: "info", Format: "text"},
	}
}

// Validate rejects settings the runtime cannot start with.
func (c Config) Validate() error {
	if c.Shards < 1 {
		return fmt.Errorf("shards must be >= 1, got %d", c.Shards)
	}
	if c.HistoryMax < 0 {
		return fmt.Errorf("historyMax must be >= 0, got %d", c.HistoryMax)
	}
	if c.StreamReadCount < 1 {
		return fmt.Errorf("streamReadCount must be >= 1, got %d", c.StreamReadCount)
	}
	switch c.Backend {
	case BackendPebble, BackendRedis:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	switch c.DocumentStore {
	case DocumentStoreFS:
	case DocumentStorePostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("documentStore postgres needs postgresURL")
		}
	default:
		return fmt.Errorf("unknown documentStore %q", c.DocumentStore)
	}
	return nil
}

// Load reads configuration from a JSON or YAML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
