package ingest

import (
	"net/http"
	"time"

	"github.com/agentworkforce/ingestgw/internal/clock"
	"github.com/agentworkforce/ingestgw/internal/spool"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	start := clock.Now()
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}

	if s.validator != nil {
		if err := s.validator.ValidateIngest(body); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST")
			return
		}
	}

	var req IngestRequest
	if err := decodeJSON(body, &req); err != nil || !req.Valid() {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}

	jobID := clock.NewJobID()
	traceID := r.Header.Get("X-Request-Id")
	if traceID == "" {
		traceID = clock.NewTraceID()
	}
	receivedAt := clock.NowISO()

	if s.plan.SpoolWrites && s.cfg.JSONLAlways && s.spoolWriter != nil {
		if err := s.spoolWriter.Append(spool.Record{
			TS:              receivedAt,
			Kind:            "ingest",
			Stage:           spool.StageAlways,
			JobID:           jobID,
			TraceID:         traceID,
			Source:          req.Source,
			EventType:       req.EventType,
			Payload:         req.Payload,
			ReceivedAt:      receivedAt,
			IngestLatencyMs: time.Since(start).Milliseconds(),
		}); err != nil {
			s.log.Error().Err(err).Str("job_id", jobID).Str("stage", spool.StageAlways).Msg("spool append failed")
		}
	}

	webhookFailed := false
	webhookErr := ""
	if s.webhookCli != nil {
		res := s.webhookCli.Post(r.Context(), map[string]any{
			"job_id":      jobID,
			"trace_id":    traceID,
			"source":      req.Source,
			"event_type":  req.EventType,
			"payload":     req.Payload,
			"received_at": receivedAt,
		})
		if !res.OK {
			webhookFailed = true
			webhookErr = res.Error
			if webhookErr == "" {
				webhookErr = "webhook_rejected"
			}
			s.log.Warn().Str("job_id", jobID).Str("reason", webhookErr).Msg("webhook post failed")
		}
	}

	if webhookFailed && s.plan.SpoolWrites && s.cfg.JSONLFallback && s.spoolWriter != nil {
		if err := s.spoolWriter.Append(spool.Record{
			TS:              clock.NowISO(),
			Kind:            "ingest",
			Stage:           spool.StageFallback,
			Reason:          webhookErr,
			JobID:           jobID,
			TraceID:         traceID,
			Source:          req.Source,
			EventType:       req.EventType,
			Payload:         req.Payload,
			ReceivedAt:      receivedAt,
			IngestLatencyMs: time.Since(start).Milliseconds(),
		}); err != nil {
			s.log.Error().Err(err).Str("job_id", jobID).Str("stage", spool.StageFallback).Msg("spool append failed")
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"job_id":      jobID,
		"trace_id":    traceID,
		"received_at": receivedAt,
		"latency_ms":  time.Since(start).Milliseconds(),
		"mode":        s.baseMode,
	})
}
