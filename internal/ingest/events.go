package ingest

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/agentworkforce/ingestgw/internal/clock"
	"github.com/agentworkforce/ingestgw/internal/queue"
	"github.com/agentworkforce/ingestgw/internal/summary"
)

func queueItemFromBody(body []byte, now time.Time) queue.Item {
	return queue.Item{
		ID:            clock.NewJobID(),
		Bytes:         len(body),
		ReceivedAt:    now,
		PayloadStr:    string(body),
		NextAttemptAt: now.UnixMilli(),
	}
}

type packedEvent struct {
	eventID     string
	eventType   string
	source      string
	userID      string
	occurredAt  string
	data        json.RawMessage
	raw         string
	fingerprint string
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	start := clock.Now()
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}

	if s.validator != nil {
		if err := s.validator.ValidateEvents(body); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST")
			return
		}
	}

	var req EventsRequest
	if err := json.Unmarshal(body, &req); err != nil || !req.IsRecognised() {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}

	events := expandEvents(req)
	received := len(events)
	appended := 0
	droppedDuplicates := 0

	for _, ev := range events {
		duplicate := false
		if s.plan.DedupAndSummary && s.dedupWindow != nil {
			duplicate = s.dedupWindow.CheckAndRecord(ev.fingerprint, start)
		}
		if duplicate {
			droppedDuplicates++
			continue
		}
		appended++

		packed := PackedPayload{
			V:          1,
			EventType:  ev.eventType,
			OccurredAt: ev.occurredAt,
			Meta: PackedMeta{
				Source: ev.source,
				UserID: ev.userID,
				IP:     normalizeUntrusted(clientIP(r)),
				UA:     normalizeUntrusted(r.Header.Get("User-Agent")),
			},
			Data: ev.data,
			Raw:  ev.raw,
		}
		packedBytes, _ := json.Marshal(packed)

		if s.plan.DedupAndSummary && s.ring != nil {
			s.ring.Push(summary.Record{
				TSMillis:    start.UnixMilli(),
				Fingerprint: ev.fingerprint,
				Bytes:       len(packedBytes),
				Duplicate:   false,
			})
		}
	}

	queueLength := -1
	if s.plan.ForwardQueue && s.fwdQueue != nil && appended > 0 {
		// Open question resolved per DESIGN.md: one queue item per
		// request, carrying the whole canonical request body.
		s.fwdQueue.Enqueue(queueItemFromBody(body, start))
		queueLength = s.fwdQueue.Len()
	}

	stored := 0
	if s.ring != nil {
		stored = s.ring.Len()
	}

	resp := map[string]any{
		"ok":                  true,
		"received":            received,
		"appended":            appended,
		"dropped_duplicates":  droppedDuplicates,
		"latency_ms":          time.Since(start).Milliseconds(),
		"mode":                s.baseMode,
		"bytes":               len(body),
		"stored":              stored,
		"duplicate":           droppedDuplicates > 0,
		"external":            s.externalOn,
	}
	if queueLength >= 0 {
		resp["queue_length"] = queueLength
	}
	writeJSON(w, http.StatusOK, resp)
}

func expandEvents(req EventsRequest) []packedEvent {
	if req.IsLegacyTSV() {
		return expandLegacyTSV(req)
	}
	return expandStandard(req)
}

func expandStandard(req EventsRequest) []packedEvent {
	out := make([]packedEvent, 0, len(req.Events))
	for _, e := range req.Events {
		source := firstNonEmpty(e.Source, req.Source, "unknown")
		userID := firstNonEmpty(e.UserID, req.UserID, "anonymous")
		eventType := firstNonEmpty(e.EventType, "unknown")
		eventID := e.EventID
		if eventID == "" {
			eventID = clock.NewEventID(source, userID)
		}

		canon := e
		canon.EventID = eventID
		canonBytes, _ := json.Marshal(canon)

		out = append(out, packedEvent{
			eventID:     eventID,
			eventType:   eventType,
			source:      source,
			userID:      userID,
			occurredAt:  e.OccurredAt,
			data:        e.Payload,
			raw:         string(canonBytes),
			fingerprint: fingerprintJSON(canonBytes),
		})
	}
	return out
}

func expandLegacyTSV(req EventsRequest) []packedEvent {
	source := firstNonEmpty(req.Source, "legacy")
	userID := firstNonEmpty(req.UserID, "anonymous")

	out := make([]packedEvent, 0, len(req.Lines))
	for _, line := range req.Lines {
		idx := strings.IndexByte(line, '\t')
		var id, payloadRaw string
		if idx < 0 {
			id, payloadRaw = line, ""
		} else {
			id, payloadRaw = line[:idx], line[idx+1:]
		}

		var data json.RawMessage
		if err := json.Unmarshal([]byte(payloadRaw), &data); err != nil || len(data) == 0 {
			fallback, _ := json.Marshal(map[string]string{"raw_line": line})
			data = fallback
		}

		out = append(out, packedEvent{
			eventID:     id,
			eventType:   "legacy.tsv",
			source:      source,
			userID:      userID,
			data:        data,
			raw:         line,
			fingerprint: id,
		})
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
