package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Shards != 1 || cfg.HistoryMax != 5000 || cfg.StreamReadCount != 100 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.ClientTTL.Std() != 300*time.Second || cfg.StreamBlock.Std() != time.Second {
		t.Fatalf("unexpected durations %v %v", cfg.ClientTTL, cfg.StreamBlock)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	file := filepath.Join(t.TempDir(), "coedit.json")
	data := []byte(`{"shards":16,"historyMax":3,"clientTTL":"90s","streamBlock":2,"backend":"redis"}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Shards != 16 || cfg.HistoryMax != 3 || cfg.Backend != BackendRedis {
		t.Fatalf("unexpected cfg %+v", cfg)
	}
	if cfg.ClientTTL.Std() != 90*time.Second || cfg.StreamBlock.Std() != 2*time.Second {
		t.Fatalf("durations %v %v", cfg.ClientTTL, cfg.StreamBlock)
	}
	// untouched fields keep defaults
	if cfg.StreamReadCount != 100 {
		t.Fatalf("expected default read count")
	}
}

func TestLoadYAML(t *testing.T) {
	file := filepath.Join(t.TempDir(), "coedit.yaml")
	data := []byte("shards: 4\ndocumentStore: postgres\npostgresURL: postgres://localhost/coedit\nstreamBlock: 250ms\nlog:\n  level: debug\n  format: json\n")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Shards != 4 || cfg.DocumentStore != DocumentStorePostgres {
		t.Fatalf("unexpected cfg %+v", cfg)
	}
	if cfg.StreamBlock.Std() != 250*time.Millisecond {
		t.Fatalf("streamBlock = %v", cfg.StreamBlock)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("log = %+v", cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("COEDIT_SHARDS", "8")
	t.Setenv("COEDIT_CLIENT_TTL", "45s")
	t.Setenv("COEDIT_TRIM_CONSUMED", "true")
	t.Setenv("COEDIT_EDIT_FILTER", "size(operation) < 10")
	t.Setenv("COEDIT_HISTORY_MAX", "not-a-number")
	FromEnv(&cfg)
	if cfg.Shards != 8 {
		t.Fatalf("env override shards")
	}
	if cfg.ClientTTL.Std() != 45*time.Second {
		t.Fatalf("env override ttl: %v", cfg.ClientTTL)
	}
	if !cfg.TrimConsumed || cfg.EditFilter == "" {
		t.Fatalf("env override bool/string")
	}
	if cfg.HistoryMax != 5000 {
		t.Fatalf("bad value should be ignored")
	}
}

func TestValidate(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.Shards = 0 },
		func(c *Config) { c.Backend = "etcd" },
		func(c *Config) { c.DocumentStore = DocumentStorePostgres },
		func(c *Config) { c.StreamReadCount = 0 },
	}
	for i, mut := range bad {
		cfg := Default()
		mut(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestParseDuration(t *testing.T) {
	if d, err := ParseDuration("1.5"); err != nil || d.Std() != 1500*time.Millisecond {
		t.Fatalf("ParseDuration(1.5) = %v, %v", d, err)
	}
	if _, err := ParseDuration("soon"); err == nil {
		t.Fatalf("expected error")
	}
}
