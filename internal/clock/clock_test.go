package clock

import (
	"strings"
	"testing"
)

func TestNewEventIDShape(t *testing.T) {
	id := NewEventID("web app", "")
	if !strings.HasPrefix(id, "evt_web_app_") {
		t.Fatalf("unexpected event id %q", id)
	}
	if !strings.Contains(id, "_unknown_") {
		t.Fatalf("expected empty user to sanitize to unknown, got %q", id)
	}
	parts := strings.Split(id, "_")
	if len(parts) < 4 {
		t.Fatalf("expected at least 4 parts, got %d: %q", len(parts), id)
	}
}

func TestNewJobIDPrefix(t *testing.T) {
	id := NewJobID()
	if !strings.HasPrefix(id, "job_") {
		t.Fatalf("expected job_ prefix, got %q", id)
	}
}

func TestNewTraceIDShape(t *testing.T) {
	id := NewTraceID()
	if len(id) != 36 {
		t.Fatalf("expected 36-char uuid shape, got %d: %q", len(id), id)
	}
	if strings.Count(id, "-") != 4 {
		t.Fatalf("expected 4 dashes, got %q", id)
	}
}

func TestSanitizeIDPartEmpty(t *testing.T) {
	id := NewEventID("", "")
	if !strings.HasPrefix(id, "evt_unknown_unknown_") {
		t.Fatalf("expected unknown defaults, got %q", id)
	}
}
