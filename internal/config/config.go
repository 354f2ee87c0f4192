// Package config centralises environment-variable parsing; no other
// package reads os.Getenv directly.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the fully resolved process configuration.
type Config struct {
	Port int

	OpsMode       string // ECHO|STORE|FULL
	ExternalSync  bool
	JSONLimit     int64
	DedupeWindow  time.Duration
	StoreLimit    int
	QueueLimit    int

	WorkerIntervalMs   int64
	WorkerBatchSize    int
	WorkerMaxRetry     int
	WorkerBackoffBase  int64

	SheetID                   string
	EventsSheetName           string
	GoogleServiceAccountB64   string
	GoogleServiceAccountJSON  string

	GASWebAppURL    string
	ITPlayLabSecret string
	GASTimeout      time.Duration

	JSONLFallback       bool
	JSONLAlways         bool
	JSONLDir            string
	JSONLFile           string
	JSONLMaxBytes       int64
	JSONLTailMaxBytes   int64

	ReplayEnabled          bool
	ReplayIntervalMs       int64
	ReplayBatchSize        int
	ReplayMaxBytesPerTick  int64
	ReplayMode             string // FALLBACK_ONLY|ALL
	ReplayStateFile        string
	ReplayStateBackendDSN  string

	LogLevel  string
	LogFormat string

	EventsJSONSchemaFile string
}

// Load resolves Config from the process environment, applying spec.md §6's
// defaults for every unset variable.
func Load() Config {
	return Config{
		Port: intEnv("PORT", 3000),

		OpsMode:      upperEnv("OPS_MODE", "FULL"),
		ExternalSync: onOffEnv("EXTERNAL_SYNC", false),
		JSONLimit:    int64Env("JSON_LIMIT", 2*1024*1024),
		DedupeWindow: durationMsEnv("DEDUPE_WINDOW_MS", 2000),
		StoreLimit:   intEnv("STORE_LIMIT", 200),
		QueueLimit:   intEnv("QUEUE_LIMIT", 500),

		WorkerIntervalMs:  int64Env("WORKER_INTERVAL_MS", 1500),
		WorkerBatchSize:   intEnv("WORKER_BATCH_SIZE", 5),
		WorkerMaxRetry:    intEnv("WORKER_MAX_RETRY", 5),
		WorkerBackoffBase: int64Env("WORKER_BACKOFF_BASE_MS", 2000),

		SheetID:                  strEnv("SHEET_ID", ""),
		EventsSheetName:          strEnv("EVENTS_SHEET_NAME", "events"),
		GoogleServiceAccountB64:  strEnv("GOOGLE_SERVICE_ACCOUNT_JSON_B64", ""),
		GoogleServiceAccountJSON: strEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		GASWebAppURL:    strEnv("GAS_WEBAPP_URL", ""),
		ITPlayLabSecret: strEnv("ITPLAYLAB_SECRET", ""),
		GASTimeout:      durationMsEnv("GAS_TIMEOUT_MS", 2500),

		JSONLFallback:     onOffEnv("JSONL_FALLBACK", false),
		JSONLAlways:       onOffEnv("JSONL_ALWAYS", false),
		JSONLDir:          strEnv("JSONL_DIR", "/var/data"),
		JSONLFile:         strEnv("JSONL_FILE", "ingest_fallback.jsonl"),
		JSONLMaxBytes:     int64Env("JSONL_MAX_BYTES", 104857600),
		JSONLTailMaxBytes: int64Env("JSONL_TAIL_MAX_BYTES", 2097152),

		ReplayEnabled:         onOffEnv("REPLAY_ENABLED", false),
		ReplayIntervalMs:      int64Env("REPLAY_INTERVAL_MS", 3000),
		ReplayBatchSize:       intEnv("REPLAY_BATCH_SIZE", 10),
		ReplayMaxBytesPerTick: int64Env("REPLAY_MAX_BYTES_PER_TICK", 1048576),
		ReplayMode:            upperEnv("REPLAY_MODE", "FALLBACK_ONLY"),
		ReplayStateFile:       strEnv("REPLAY_STATE_FILE", "replay_state.json"),
		ReplayStateBackendDSN: strEnv("REPLAY_STATE_BACKEND_DSN", ""),

		LogLevel:  strEnv("LOG_LEVEL", "info"),
		LogFormat: strEnv("LOG_FORMAT", "console"),

		EventsJSONSchemaFile: strEnv("EVENTS_JSON_SCHEMA_FILE", ""),
	}
}

func strEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func upperEnv(key, def string) string {
	return strings.ToUpper(strEnv(key, def))
}

func onOffEnv(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	return strings.EqualFold(strings.TrimSpace(v), "ON")
}

func intEnv(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func int64Env(key string, def int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func durationMsEnv(key string, defMs int64) time.Duration {
	return time.Duration(int64Env(key, defMs)) * time.Millisecond
}
