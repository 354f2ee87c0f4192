package ingest

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/agentworkforce/ingestgw/internal/spool"
)

func decodeJSON(body []byte, v any) error {
	return json.Unmarshal(body, v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.healthSnapshot())
}

func (s *Server) healthSnapshot() map[string]any {
	resp := map[string]any{
		"ok":         true,
		"mode":       s.baseMode,
		"external":   s.externalOn,
		"uptime_ms":  time.Since(s.startedAt).Milliseconds(),
		"started_at": s.startedAt.Format(time.RFC3339Nano),
	}
	if s.plan.DedupAndSummary && s.dedupWindow != nil {
		resp["dedup_window_len"] = s.dedupWindow.Len()
	}
	if s.plan.DedupAndSummary && s.ring != nil {
		resp["stored"] = s.ring.Len()
		resp["store_capacity"] = s.ring.Capacity()
	}
	if s.plan.ForwardQueue && s.fwdQueue != nil {
		resp["queue_length"] = s.fwdQueue.Len()
		resp["queue_dropped"] = s.fwdQueue.Dropped()
		resp["queue_failed"] = s.fwdQueue.Failed()
	}
	if s.plan.SpoolWrites && s.spoolWriter != nil {
		size, modTime, exists := s.spoolWriter.Stat()
		resp["jsonl_exists"] = exists
		resp["jsonl_bytes"] = size
		if exists {
			resp["jsonl_modified_at"] = modTime.UTC().Format(time.RFC3339Nano)
		}
	}
	if s.plan.Replay && s.replayState != nil {
		if st, err := s.replayState.Load(); err == nil {
			resp["replay_offset"] = st.Offset
			resp["replay_sent"] = st.Sent
			resp["replay_failed"] = st.Failed
		}
	}
	return resp
}

func (s *Server) handleStoreRecent(w http.ResponseWriter, r *http.Request) {
	if !s.plan.DedupAndSummary || s.ring == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND")
		return
	}
	n := parseBoundedInt(r.URL.Query().Get("n"), 20, 1, 200)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"mode":   s.baseMode,
		"stored": s.ring.Len(),
		"recent": s.ring.Tail(n),
	})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if s.baseMode != "FULL" {
		writeError(w, http.StatusNotFound, "NOT_FOUND")
		return
	}
	if s.syncRunner == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "armed": s.plan.ForwardQueue, "detail": "Worker disabled"})
		return
	}
	writeJSON(w, http.StatusOK, s.syncRunner.Status())
}

func (s *Server) handleSyncRun(w http.ResponseWriter, r *http.Request) {
	if s.baseMode != "FULL" {
		writeError(w, http.StatusNotFound, "NOT_FOUND")
		return
	}
	if s.syncRunner == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "detail": "Worker disabled"})
		return
	}
	writeJSON(w, http.StatusOK, s.syncRunner.TickOnce(r.Context()))
}

func (s *Server) handleFallbackStatus(w http.ResponseWriter, r *http.Request) {
	if !s.plan.SpoolWrites || s.spoolWriter == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND")
		return
	}
	size, modTime, exists := s.spoolWriter.Stat()
	resp := map[string]any{
		"ok":     true,
		"path":   s.spoolWriter.Path(),
		"exists": exists,
		"bytes":  size,
	}
	if exists {
		resp["updated_at"] = modTime.UTC().Format(time.RFC3339Nano)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFallbackTail(w http.ResponseWriter, r *http.Request) {
	if !s.plan.SpoolWrites || s.spoolWriter == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND")
		return
	}
	n := parseBoundedInt(r.URL.Query().Get("n"), 50, 1, 500)

	path := s.spoolWriter.Path()
	info, err := os.Stat(path)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "lines": []json.RawMessage{}})
		return
	}

	maxBytes := s.cfg.JSONLTailMaxBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	offset := info.Size() - maxBytes
	if offset < 0 {
		offset = 0
	}

	lines, _, _, err := spool.ReadFrom(path, offset, maxBytes)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL")
		return
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	raw := make([]json.RawMessage, len(lines))
	for i, ln := range lines {
		raw[i] = ln.Raw
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "lines": raw})
}

func (s *Server) handleReplayStatus(w http.ResponseWriter, r *http.Request) {
	if !s.plan.Replay || s.replayRunner == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, s.replayRunner.Status())
}

func (s *Server) handleReplayRun(w http.ResponseWriter, r *http.Request) {
	if !s.plan.Replay || s.replayRunner == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, s.replayRunner.TickOnce(r.Context()))
}
