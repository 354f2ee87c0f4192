package ingest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentworkforce/ingestgw/internal/dedup"
	"github.com/agentworkforce/ingestgw/internal/mode"
	"github.com/agentworkforce/ingestgw/internal/spool"
	"github.com/agentworkforce/ingestgw/internal/summary"
	"github.com/agentworkforce/ingestgw/internal/webhook"
)

func storeServer() *Server {
	plan := mode.Plan{Mode: mode.Store, DedupAndSummary: true}
	return NewServer(mode.Store, plan, false, Config{MaxBodyBytes: 1 << 20},
		dedup.NewWindow(500*time.Millisecond), summary.NewRing(50), nil, nil, nil, nil, nil, nil, nil, zerolog.Nop())
}

func postJSON(s *Server, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHandleEventsStandardShape(t *testing.T) {
	s := storeServer()
	rec := postJSON(s, "/events", `{"events":[{"event_id":"e1","event_type":"click","source":"web","user_id":"u1","payload":{"x":1}}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["appended"].(float64) != 1 {
		t.Fatalf("expected appended=1, got %+v", resp)
	}
	if resp["dropped_duplicates"].(float64) != 0 {
		t.Fatalf("expected dropped_duplicates=0, got %+v", resp)
	}
}

func TestHandleEventsDuplicateDropped(t *testing.T) {
	s := storeServer()
	body := `{"events":[{"event_id":"e1","event_type":"click","source":"web","user_id":"u1","payload":{"x":1}}]}`

	first := postJSON(s, "/events", body)
	if first.Code != http.StatusOK {
		t.Fatalf("first request failed: %d", first.Code)
	}

	second := postJSON(s, "/events", body)
	var resp map[string]any
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["appended"].(float64) != 0 {
		t.Fatalf("expected second identical request to append nothing, got %+v", resp)
	}
	if resp["dropped_duplicates"].(float64) != 1 {
		t.Fatalf("expected dropped_duplicates=1, got %+v", resp)
	}
}

func TestHandleEventsLegacyTSV(t *testing.T) {
	s := storeServer()
	body := `{"action":"append_events_tsv","source":"legacy","user_id":"u9","lines":["id1\t{\"n\":1}","id2\t{\"n\":2}"]}`
	rec := postJSON(s, "/events", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["received"].(float64) != 2 || resp["appended"].(float64) != 2 {
		t.Fatalf("expected 2 received/appended, got %+v", resp)
	}
}

func TestHandleEventsUnrecognisedShape(t *testing.T) {
	s := storeServer()
	rec := postJSON(s, "/events", `{"foo":"bar"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStoreRecentNotFoundWhenDisabled(t *testing.T) {
	plan := mode.Plan{Mode: mode.Echo}
	s := NewServer(mode.Echo, plan, false, Config{MaxBodyBytes: 1 << 20}, nil, nil, nil, nil, nil, nil, nil, nil, nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/store/recent", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for /store/recent in ECHO mode, got %d", rec.Code)
	}
}

func TestHandleIngestWebhookSuccess(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	}))
	defer upstream.Close()

	cli := webhook.New(webhook.Options{URL: upstream.URL, Secret: "s", Timeout: time.Second})
	plan := mode.Plan{Mode: mode.Full, DedupAndSummary: true, SpoolWrites: true}
	s := NewServer(mode.Full, plan, false, Config{MaxBodyBytes: 1 << 20, JSONLFallback: true}, nil, nil, nil, nil, cli, nil, nil, nil, nil, zerolog.Nop())

	rec := postJSON(s, "/ingest", `{"source":"web","event_type":"click","payload":{"x":1}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["ok"] != true || resp["job_id"] == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandleIngestWebhookFailureWritesFallback(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"ok":false}}`))
	}))
	defer upstream.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "spool.jsonl")
	writer := spool.NewWriter(path, 1<<20, nil)

	cli := webhook.New(webhook.Options{URL: upstream.URL, Secret: "s", Timeout: time.Second})
	plan := mode.Plan{Mode: mode.Full, DedupAndSummary: true, SpoolWrites: true}
	s := NewServer(mode.Full, plan, false, Config{MaxBodyBytes: 1 << 20, JSONLFallback: true}, nil, nil, nil, writer, cli, nil, nil, nil, nil, zerolog.Nop())

	rec := postJSON(s, "/ingest", `{"source":"web","event_type":"click","payload":{"x":1}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 even on webhook failure, got %d: %s", rec.Code, rec.Body.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected fallback spool file to exist: %v", err)
	}
	if !strings.Contains(string(data), `"stage":"jsonl.fallback"`) {
		t.Fatalf("expected fallback stage record, got %s", data)
	}
}

// TestHandleIngestMissingWebhookConfigWritesFallback exercises the
// default-config path spec.md §8 scenario 3 documents: no GAS_WEBAPP_URL,
// so the constructed webhook.Client always short-circuits with
// "missing_GAS_WEBAPP_URL_or_ITPLAYLAB_SECRET" and the fallback record
// must still be written.
func TestHandleIngestMissingWebhookConfigWritesFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spool.jsonl")
	writer := spool.NewWriter(path, 1<<20, nil)

	cli := webhook.New(webhook.Options{})
	plan := mode.Plan{Mode: mode.Full, DedupAndSummary: true, SpoolWrites: true}
	s := NewServer(mode.Full, plan, false, Config{MaxBodyBytes: 1 << 20, JSONLFallback: true}, nil, nil, nil, writer, cli, nil, nil, nil, nil, zerolog.Nop())

	rec := postJSON(s, "/ingest", `{"source":"web","event_type":"click","payload":{"x":1}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 even with webhook unconfigured, got %d: %s", rec.Code, rec.Body.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected fallback spool file to exist: %v", err)
	}
	if !strings.Contains(string(data), `"reason":"missing_GAS_WEBAPP_URL_or_ITPLAYLAB_SECRET"`) {
		t.Fatalf("expected missing-config fallback reason, got %s", data)
	}
}

func TestHandleIngestMissingFields(t *testing.T) {
	plan := mode.Plan{Mode: mode.Full}
	s := NewServer(mode.Full, plan, false, Config{MaxBodyBytes: 1 << 20}, nil, nil, nil, nil, nil, nil, nil, nil, nil, zerolog.Nop())
	rec := postJSON(s, "/ingest", `{"source":"web"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	s := storeServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
