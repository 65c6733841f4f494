package config

import (
	"os"
	"strconv"
)

// FromEnv overlays COEDIT_* environment variables onto cfg. Unparseable
// values are ignored.
func FromEnv(cfg *Config) {
	envInt("COEDIT_SHARDS", &cfg.Shards)
	envInt("COEDIT_HISTORY_MAX", &cfg.HistoryMax)
	envDuration("COEDIT_CLIENT_TTL", &cfg.ClientTTL)
	envDuration("COEDIT_STREAM_BLOCK", &cfg.StreamBlock)
	envInt("COEDIT_STREAM_READ_COUNT", &cfg.StreamReadCount)
	if v := os.Getenv("COEDIT_TRIM_CONSUMED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.TrimConsumed = b
		}
	}
	if v := os.Getenv("COEDIT_BACKEND"); v != "" {
		cfg.Backend = Backend(v)
	}
	envString("COEDIT_REDIS_ADDR", &cfg.RedisAddr)
	envInt("COEDIT_REDIS_DB", &cfg.RedisDB)
	if v := os.Getenv("COEDIT_DOCUMENT_STORE"); v != "" {
		cfg.DocumentStore = DocumentStore(v)
	}
	envString("COEDIT_DOCUMENT_ROOT", &cfg.DocumentRoot)
	envString("COEDIT_POSTGRES_URL", &cfg.PostgresURL)
	envString("COEDIT_EDIT_FILTER", &cfg.EditFilter)
	envInt("COEDIT_MAX_OPERATION_BYTES", &cfg.MaxOperationBytes)
	if v := os.Getenv("COEDIT_CLIENT_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ClientRateLimit = f
		}
	}
	envInt("COEDIT_CLIENT_RATE_BURST", &cfg.ClientRateBurst)
	envString("COEDIT_LOG_LEVEL", &cfg.Log.Level)
	envString("COEDIT_LOG_FORMAT", &cfg.Log.Format)
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(name string, dst *Duration) {
	if v := os.Getenv(name); v != "" {
		if d, err := ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
