package workers

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentworkforce/ingestgw/internal/replaystate"
	"github.com/agentworkforce/ingestgw/internal/spool"
)

// WebhookPoster is the subset of the webhook client the replay worker
// needs.
type WebhookPoster interface {
	Post(ctx context.Context, event any) PostResult
}

// PostResult mirrors webhook.Result without binding this package to the
// webhook package directly.
type PostResult struct {
	OK    bool
	Error string
}

// ReplayTickResult is returned from one ReplayWorker tick.
type ReplayTickResult struct {
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
}

// ReplayWorker advances a persisted byte offset through the JSONL spool,
// re-submitting records to the webhook sink with strict
// stop-on-first-failure semantics: the offset only advances past records
// that were all delivered successfully in the same tick.
type ReplayWorker struct {
	spoolPath    string
	state        replaystate.Store
	poster       WebhookPoster
	enabled      bool
	mode         string // FALLBACK_ONLY|ALL
	batchSize    int
	maxBytesTick int64
	busy         atomic.Bool
	log          zerolog.Logger
}

// NewReplayWorker builds a ReplayWorker. log is used to record webhook
// post failures during replay (spec.md §7's sink-failure logging); the
// zero value is a working no-op logger.
func NewReplayWorker(spoolPath string, state replaystate.Store, poster WebhookPoster, enabled bool, mode string, batchSize int, maxBytesTick int64, log zerolog.Logger) *ReplayWorker {
	return &ReplayWorker{
		spoolPath:    spoolPath,
		state:        state,
		poster:       poster,
		enabled:      enabled,
		mode:         mode,
		batchSize:    batchSize,
		maxBytesTick: maxBytesTick,
		log:          log,
	}
}

// TickOnce runs a single replay tick.
func (w *ReplayWorker) TickOnce(ctx context.Context) ReplayTickResult {
	if !w.enabled {
		return ReplayTickResult{Skipped: true, Reason: "replay_disabled"}
	}
	if !w.busy.CompareAndSwap(false, true) {
		return ReplayTickResult{Skipped: true, Reason: "replay_busy"}
	}
	defer w.busy.Store(false)

	if _, err := os.Stat(w.spoolPath); err != nil {
		return ReplayTickResult{Skipped: true, Reason: "no_jsonl_file"}
	}

	st, _ := w.state.Load()

	lines, newOffset, _, err := spool.ReadFrom(w.spoolPath, st.Offset, w.maxBytesTick)
	if err != nil {
		return ReplayTickResult{Skipped: true, Reason: "no_jsonl_file"}
	}

	type candidate struct {
		rec       spool.Record
		endOffset int64
	}
	filtered := make([]candidate, 0, len(lines))
	for _, ln := range lines {
		var rec spool.Record
		if err := json.Unmarshal(ln.Raw, &rec); err != nil {
			continue
		}
		if w.mode == "FALLBACK_ONLY" && rec.Stage != spool.StageFallback {
			continue
		}
		filtered = append(filtered, candidate{rec: rec, endOffset: ln.EndOffset})
	}

	if len(filtered) == 0 {
		// The filtered-out records (wrong stage, malformed) are still
		// consumed: advance past the whole read window.
		st.Offset = newOffset
		st.LastError = ""
		st.UpdatedAt = nowISO()
		if err := w.state.Save(st); err != nil {
			w.log.Error().Err(err).Msg("replay state save failed")
		}
		return ReplayTickResult{}
	}

	batch := filtered
	if w.batchSize > 0 && len(batch) > w.batchSize {
		batch = batch[:w.batchSize]
	}

	sent := 0
	lastSuccessOffset := st.Offset
	for _, c := range batch {
		c.rec.ReplayedAt = nowISO()
		res := w.poster.Post(ctx, c.rec)
		if !res.OK {
			w.log.Warn().Str("job_id", c.rec.JobID).Str("reason", res.Error).Msg("replay webhook post failed")
			st.Offset = lastSuccessOffset
			st.Failed++
			st.LastError = res.Error
			st.UpdatedAt = nowISO()
			if err := w.state.Save(st); err != nil {
				w.log.Error().Err(err).Msg("replay state save failed")
			}
			return ReplayTickResult{Sent: sent, Failed: 1}
		}
		sent++
		lastSuccessOffset = c.endOffset
	}

	// Every candidate in the batch succeeded. If the batch was smaller
	// than the full filtered set (BatchSize cap), stop at the last sent
	// record rather than the whole read window's offset so the next tick
	// picks up where this one left off.
	st.Offset = lastSuccessOffset
	if len(batch) == len(filtered) {
		st.Offset = newOffset
	}
	st.Sent += int64(sent)
	st.LastError = ""
	st.UpdatedAt = nowISO()
	if err := w.state.Save(st); err != nil {
		w.log.Error().Err(err).Msg("replay state save failed")
	}
	return ReplayTickResult{Sent: sent}
}

// Status reports the replay worker's persisted state without ticking it,
// shaped to match GET /replay/status's documented
// {replay_enabled, stats, state, jsonl:{path}} response.
func (w *ReplayWorker) Status() ReplayStatus {
	st, _ := w.state.Load()
	return ReplayStatus{
		OK:            true,
		ReplayEnabled: w.enabled,
		Stats:         ReplayStats{Busy: w.busy.Load(), Mode: w.mode},
		State:         st,
		JSONL:         ReplayJSONL{Path: w.spoolPath},
	}
}

// ReplayStatus is the snapshot returned by Status.
type ReplayStatus struct {
	OK            bool              `json:"ok"`
	ReplayEnabled bool              `json:"replay_enabled"`
	Stats         ReplayStats       `json:"stats"`
	State         replaystate.State `json:"state"`
	JSONL         ReplayJSONL       `json:"jsonl"`
}

// ReplayStats carries the worker's live in-process busy flag and replay
// mode, separate from the persisted State.
type ReplayStats struct {
	Busy bool   `json:"busy"`
	Mode string `json:"mode"`
}

// ReplayJSONL reports the spool file the replay worker reads from.
type ReplayJSONL struct {
	Path string `json:"path"`
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Run ticks TickOnce on the given interval until ctx is cancelled.
func (w *ReplayWorker) Run(ctx context.Context, interval time.Duration, wake <-chan struct{}) {
	if !w.enabled || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.TickOnce(ctx)
		case <-wake:
			w.TickOnce(ctx)
		}
	}
}
