// Package workers implements the two periodic, single-flight background
// workers: the Queue Worker (C10, forward queue → batch sink) and the
// Replay Worker (C11, spool → webhook), both grounded on the teacher's
// envelopeWorker/writebackWorker ticker-plus-busy-flag shape.
package workers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentworkforce/ingestgw/internal/queue"
)

// SinkAppender is the subset of the batch sink client the queue worker
// needs.
type SinkAppender interface {
	AppendBatch(ctx context.Context, items []SinkItem) error
	Ready() (bool, string)
}

// SinkItem mirrors sheets.Item without binding this package to the sheets
// package directly.
type SinkItem struct {
	ID         string
	PayloadStr string
	ReceivedAt string
}

// QueueTickResult is returned from one QueueWorker tick.
type QueueTickResult struct {
	Synced int    `json:"synced"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// QueueWorker drains the forward queue into the batch sink on a fixed
// interval, with at most one tick in flight at a time.
type QueueWorker struct {
	q        *queue.ForwardQueue
	sink     SinkAppender
	interval time.Duration
	busy     atomic.Bool
	armed    bool
	log      zerolog.Logger
}

// NewQueueWorker builds a QueueWorker. armed should be
// OPS_MODE==FULL && EXTERNAL_SYNC==ON per spec.md §4.9; the worker is
// never started when !armed. log records sink failures (spec.md §7);
// the zero value is a working no-op logger.
func NewQueueWorker(q *queue.ForwardQueue, sink SinkAppender, interval time.Duration, armed bool, log zerolog.Logger) *QueueWorker {
	return &QueueWorker{q: q, sink: sink, interval: interval, armed: armed, log: log}
}

// TickOnce runs a single tick, returning immediately with
// reason:"worker_busy" if another tick is already in flight.
func (w *QueueWorker) TickOnce(ctx context.Context) QueueTickResult {
	if !w.armed {
		return QueueTickResult{Detail: "Worker disabled"}
	}
	if !w.busy.CompareAndSwap(false, true) {
		return QueueTickResult{Reason: "worker_busy"}
	}
	defer w.busy.Store(false)

	ready, reason := w.sink.Ready()
	if !ready {
		return QueueTickResult{Reason: reason}
	}

	now := time.Now()
	candidates := w.q.Candidates(now)
	if len(candidates) == 0 {
		return QueueTickResult{}
	}

	items := make([]SinkItem, 0, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		items = append(items, SinkItem{ID: c.ID, PayloadStr: c.PayloadStr, ReceivedAt: c.ReceivedAt.Format(time.RFC3339Nano)})
		ids = append(ids, c.ID)
	}

	if err := w.sink.AppendBatch(ctx, items); err != nil {
		w.log.Error().Err(err).Int("items", len(items)).Msg("sink append batch failed")
		w.q.DeferDue(now, err.Error())
		return QueueTickResult{Error: "sync_failed", Detail: err.Error()}
	}

	removed := w.q.RemoveAll(ids)
	return QueueTickResult{Synced: removed}
}

// Status reports the queue worker's current depth and counters without
// ticking it.
func (w *QueueWorker) Status() QueueStatus {
	ready, reason := w.sink.Ready()
	return QueueStatus{
		Armed:       w.armed,
		Busy:        w.busy.Load(),
		SinkReady:   ready,
		SinkReason:  reason,
		QueueLength: w.q.Len(),
		Dropped:     w.q.Dropped(),
		Failed:      w.q.Failed(),
	}
}

// QueueStatus is the snapshot returned by Status.
type QueueStatus struct {
	Armed       bool   `json:"armed"`
	Busy        bool   `json:"busy"`
	SinkReady   bool   `json:"sink_ready"`
	SinkReason  string `json:"sink_reason,omitempty"`
	QueueLength int    `json:"queue_length"`
	Dropped     uint64 `json:"dropped"`
	Failed      uint64 `json:"failed"`
}

// Run ticks TickOnce on the configured interval until ctx is cancelled.
func (w *QueueWorker) Run(ctx context.Context) {
	if !w.armed || w.interval <= 0 {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.TickOnce(ctx)
		}
	}
}
