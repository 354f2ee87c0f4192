// Command ingestgw runs the event ingest gateway HTTP server: the /events
// and /ingest handlers, their background queue and replay workers, wired
// up per the OPS_MODE/EXTERNAL_SYNC/JSONL_*/REPLAY_ENABLED configuration.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/agentworkforce/ingestgw/internal/config"
	"github.com/agentworkforce/ingestgw/internal/dedup"
	"github.com/agentworkforce/ingestgw/internal/ingest"
	"github.com/agentworkforce/ingestgw/internal/logging"
	"github.com/agentworkforce/ingestgw/internal/mode"
	"github.com/agentworkforce/ingestgw/internal/queue"
	"github.com/agentworkforce/ingestgw/internal/replaystate"
	"github.com/agentworkforce/ingestgw/internal/sheets"
	"github.com/agentworkforce/ingestgw/internal/spool"
	"github.com/agentworkforce/ingestgw/internal/summary"
	"github.com/agentworkforce/ingestgw/internal/validate"
	"github.com/agentworkforce/ingestgw/internal/watch"
	"github.com/agentworkforce/ingestgw/internal/webhook"
	"github.com/agentworkforce/ingestgw/internal/workers"
)

func main() {
	cfg := config.Load()
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	plan := mode.Resolve(cfg.OpsMode, mode.Toggles{
		ExternalSync:  cfg.ExternalSync,
		JSONLAlways:   cfg.JSONLAlways,
		JSONLFallback: cfg.JSONLFallback,
		ReplayEnabled: cfg.ReplayEnabled,
	})
	log.Info().Str("mode", plan.Mode).Bool("external_sync", cfg.ExternalSync).Msg("resolved activation plan")

	var dedupWindow *dedup.Window
	var ring *summary.Ring
	if plan.DedupAndSummary {
		dedupWindow = dedup.NewWindow(cfg.DedupeWindow)
		ring = summary.NewRing(cfg.StoreLimit)
	}

	var fwdQueue *queue.ForwardQueue
	if plan.ForwardQueue {
		fwdQueue = queue.New(queue.Options{
			Limit:         cfg.QueueLimit,
			MaxRetry:      cfg.WorkerMaxRetry,
			BackoffBaseMs: cfg.WorkerBackoffBase,
			BatchSize:     cfg.WorkerBatchSize,
		})
	}

	spoolPath := filepath.Join(cfg.JSONLDir, cfg.JSONLFile)
	var spoolWriter *spool.Writer
	if plan.SpoolWrites {
		spoolWriter = spool.NewWriter(spoolPath, cfg.JSONLMaxBytes, nil)
	}

	// Always constructed: webhook.Client.Post short-circuits on its own
	// with the documented missing-config result when GAS_WEBAPP_URL or
	// ITPLAYLAB_SECRET is unset, which is what drives the JSONL_FALLBACK
	// spool write in that case (spec.md §8 scenario 3).
	webhookCli := webhook.New(webhook.Options{
		URL:     cfg.GASWebAppURL,
		Secret:  cfg.ITPlayLabSecret,
		Timeout: cfg.GASTimeout,
	})

	var replayState replaystate.Store
	if plan.Replay {
		var err error
		replayState, err = replaystate.BuildFromDSN(cfg.ReplayStateBackendDSN, cfg.ReplayStateFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize replay state backend")
		}
	}

	validator, err := validate.New(cfg.EventsJSONSchemaFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to compile event schemas")
	}

	sheetsClient := sheets.New(sheets.Config{
		SheetID:           cfg.SheetID,
		SheetName:         cfg.EventsSheetName,
		ServiceAccountB64: cfg.GoogleServiceAccountB64,
		ServiceAccountRaw: cfg.GoogleServiceAccountJSON,
	})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	var syncRunner ingest.SyncRunner
	var replayRunner ingest.ReplayRunner

	if plan.ForwardQueue {
		queueLog := log.With().Str("component", "queue_worker").Logger()
		qw := workers.NewQueueWorker(fwdQueue, sinkAdapter{sheetsClient}, time.Duration(cfg.WorkerIntervalMs)*time.Millisecond, true, queueLog)
		syncRunner = queueRunnerAdapter{qw}
		wg.Add(1)
		go func() {
			defer wg.Done()
			qw.Run(ctx)
		}()
	}

	var spoolWatcher *watch.SpoolWatcher
	if plan.Replay {
		replayLog := log.With().Str("component", "replay_worker").Logger()
		rw := workers.NewReplayWorker(spoolPath, replayState, posterAdapter{webhookCli}, cfg.ReplayEnabled, cfg.ReplayMode, cfg.ReplayBatchSize, cfg.ReplayMaxBytesPerTick, replayLog)
		replayRunner = replayRunnerAdapter{rw}

		var wake <-chan struct{}
		if w, err := watch.New(cfg.JSONLDir); err == nil {
			spoolWatcher = w
			wake = w.Events
		} else {
			log.Warn().Err(err).Msg("spool watcher unavailable, falling back to ticker only")
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			rw.Run(ctx, time.Duration(cfg.ReplayIntervalMs)*time.Millisecond, wake)
		}()
	}

	ingestLog := log.With().Str("component", "ingest").Logger()
	server := ingest.NewServer(plan.Mode, plan, cfg.ExternalSync, ingest.Config{
		MaxBodyBytes:      cfg.JSONLimit,
		JSONLAlways:       cfg.JSONLAlways,
		JSONLFallback:     cfg.JSONLFallback,
		ReplayEnabled:     cfg.ReplayEnabled,
		JSONLTailMaxBytes: cfg.JSONLTailMaxBytes,
	}, dedupWindow, ring, fwdQueue, spoolWriter, webhookCli, replayState, validator, syncRunner, replayRunner, ingestLog)

	addr := ":" + strconv.Itoa(cfg.Port)
	httpServer := &http.Server{Addr: addr, Handler: server}

	go func() {
		log.Info().Str("addr", addr).Msg("ingest gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutdown signal received, draining")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = httpServer.Shutdown(shutdownCtx)
	shutdownCancel()

	cancel()
	if spoolWatcher != nil {
		_ = spoolWatcher.Close()
	}
	wg.Wait()
	log.Info().Msg("shutdown complete")
}

// sinkAdapter satisfies workers.SinkAppender over *sheets.Client.
type sinkAdapter struct{ c *sheets.Client }

func (a sinkAdapter) AppendBatch(ctx context.Context, items []workers.SinkItem) error {
	converted := make([]sheets.Item, len(items))
	for i, it := range items {
		converted[i] = sheets.Item{ID: it.ID, PayloadStr: it.PayloadStr, ReceivedAt: it.ReceivedAt}
	}
	return a.c.AppendBatch(ctx, converted)
}

func (a sinkAdapter) Ready() (bool, string) {
	return a.c.Ready()
}

// posterAdapter satisfies workers.WebhookPoster over *webhook.Client.
type posterAdapter struct{ c *webhook.Client }

func (a posterAdapter) Post(ctx context.Context, event any) workers.PostResult {
	if a.c == nil {
		return workers.PostResult{OK: false, Error: "missing_GAS_WEBAPP_URL_or_ITPLAYLAB_SECRET"}
	}
	res := a.c.Post(ctx, event)
	return workers.PostResult{OK: res.OK, Error: res.Error}
}

// queueRunnerAdapter satisfies ingest.SyncRunner over *workers.QueueWorker.
type queueRunnerAdapter struct{ w *workers.QueueWorker }

func (a queueRunnerAdapter) TickOnce(ctx context.Context) any { return a.w.TickOnce(ctx) }
func (a queueRunnerAdapter) Status() any                      { return a.w.Status() }

// replayRunnerAdapter satisfies ingest.ReplayRunner over *workers.ReplayWorker.
type replayRunnerAdapter struct{ w *workers.ReplayWorker }

func (a replayRunnerAdapter) TickOnce(ctx context.Context) any { return a.w.TickOnce(ctx) }
func (a replayRunnerAdapter) Status() any                      { return a.w.Status() }
