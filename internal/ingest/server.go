package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"

	"github.com/agentworkforce/ingestgw/internal/clock"
	"github.com/agentworkforce/ingestgw/internal/dedup"
	"github.com/agentworkforce/ingestgw/internal/live"
	"github.com/agentworkforce/ingestgw/internal/mode"
	"github.com/agentworkforce/ingestgw/internal/queue"
	"github.com/agentworkforce/ingestgw/internal/replaystate"
	"github.com/agentworkforce/ingestgw/internal/spool"
	"github.com/agentworkforce/ingestgw/internal/summary"
	"github.com/agentworkforce/ingestgw/internal/validate"
	"github.com/agentworkforce/ingestgw/internal/webhook"
)

// Config holds the Server's static configuration (the resolved subset of
// internal/config.Config the ingest path needs).
type Config struct {
	MaxBodyBytes      int64
	JSONLAlways       bool
	JSONLFallback     bool
	ReplayEnabled     bool
	JSONLTailMaxBytes int64
}

// SyncRunner triggers one queue-worker tick on demand and reports its
// current depth/counters for /sync/status.
type SyncRunner interface {
	TickOnce(ctx context.Context) any
	Status() any
}

// ReplayRunner triggers one replay-worker tick on demand and reports its
// current state for /replay/status.
type ReplayRunner interface {
	TickOnce(ctx context.Context) any
	Status() any
}

// Server is the HTTP ingest controller.
type Server struct {
	plan       mode.Plan
	cfg        Config
	baseMode   string
	externalOn bool

	dedupWindow *dedup.Window
	ring        *summary.Ring
	fwdQueue    *queue.ForwardQueue
	spoolWriter *spool.Writer
	webhookCli  *webhook.Client
	replayState replaystate.Store
	validator   *validate.Validator

	syncRunner   SyncRunner
	replayRunner ReplayRunner

	log zerolog.Logger

	startedAt time.Time
}

// NewServer builds a Server from its constituent components. Any
// component the resolved Plan disables may be passed as nil; handlers
// check the Plan before touching it. log is used to record sink/spool
// failures that are never surfaced to the client (spec.md §7); the zero
// value is a working no-op logger.
func NewServer(baseMode string, plan mode.Plan, externalOn bool, cfg Config,
	dedupWindow *dedup.Window, ring *summary.Ring, fwdQueue *queue.ForwardQueue,
	spoolWriter *spool.Writer, webhookCli *webhook.Client, replayState replaystate.Store,
	validator *validate.Validator, syncRunner SyncRunner, replayRunner ReplayRunner,
	log zerolog.Logger,
) *Server {
	return &Server{
		baseMode:     baseMode,
		plan:         plan,
		externalOn:   externalOn,
		cfg:          cfg,
		dedupWindow:  dedupWindow,
		ring:         ring,
		fwdQueue:     fwdQueue,
		spoolWriter:  spoolWriter,
		webhookCli:   webhookCli,
		replayState:  replayState,
		validator:    validator,
		syncRunner:   syncRunner,
		replayRunner: replayRunner,
		log:          log,
		startedAt:    clock.Now(),
	}
}

// ServeHTTP implements http.Handler via a manual path/method switch, in
// the teacher's style: no router dependency.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/events" && r.Method == http.MethodPost:
		s.handleEvents(w, r)
	case r.URL.Path == "/ingest" && r.Method == http.MethodPost:
		s.handleIngest(w, r)
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		s.handleHealth(w, r)
	case r.URL.Path == "/health/stream" && r.Method == http.MethodGet:
		live.Handler(func() any { return s.healthSnapshot() })(w, r)
	case r.URL.Path == "/store/recent" && r.Method == http.MethodGet:
		s.handleStoreRecent(w, r)
	case r.URL.Path == "/sync/status" && r.Method == http.MethodGet:
		s.handleSyncStatus(w, r)
	case r.URL.Path == "/sync/run" && r.Method == http.MethodPost:
		s.handleSyncRun(w, r)
	case r.URL.Path == "/fallback/status" && r.Method == http.MethodGet:
		s.handleFallbackStatus(w, r)
	case r.URL.Path == "/fallback/tail" && r.Method == http.MethodGet:
		s.handleFallbackTail(w, r)
	case r.URL.Path == "/replay/status" && r.Method == http.MethodGet:
		s.handleReplayStatus(w, r)
	case r.URL.Path == "/replay/run" && r.Method == http.MethodPost:
		s.handleReplayRun(w, r)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND")
	}
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	limit := s.cfg.MaxBodyBytes
	if limit <= 0 {
		limit = 2 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST")
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": code})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
	}
	return r.RemoteAddr
}

func normalizeUntrusted(s string) string {
	return norm.NFC.String(s)
}

func parseBoundedInt(v string, def, min, max int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
