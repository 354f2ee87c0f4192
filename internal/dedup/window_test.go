package dedup

import (
	"testing"
	"time"
)

func TestCheckAndRecordWithinWindow(t *testing.T) {
	w := NewWindow(2 * time.Second)
	base := time.Unix(1_700_000_000, 0)

	if w.CheckAndRecord("fp1", base) {
		t.Fatalf("first call should not be duplicate")
	}
	if !w.CheckAndRecord("fp1", base.Add(500*time.Millisecond)) {
		t.Fatalf("second call within window should be duplicate")
	}
}

func TestCheckAndRecordAfterWindow(t *testing.T) {
	w := NewWindow(2 * time.Second)
	base := time.Unix(1_700_000_000, 0)

	w.CheckAndRecord("fp1", base)
	if w.CheckAndRecord("fp1", base.Add(3*time.Second)) {
		t.Fatalf("call after window expiry should not be duplicate")
	}
}

func TestCheckAndRecordEmptyFingerprint(t *testing.T) {
	w := NewWindow(2 * time.Second)
	now := time.Now()
	if w.CheckAndRecord("", now) {
		t.Fatalf("empty fingerprint must never be duplicate")
	}
	if w.CheckAndRecord("", now) {
		t.Fatalf("empty fingerprint still must never be duplicate")
	}
	if w.Len() != 0 {
		t.Fatalf("empty fingerprint should not be recorded")
	}
}

func TestPruneEvictsExpiredEntries(t *testing.T) {
	w := NewWindow(time.Second)
	base := time.Unix(1_700_000_000, 0)

	w.CheckAndRecord("a", base)
	w.CheckAndRecord("b", base)
	if w.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", w.Len())
	}

	w.CheckAndRecord("c", base.Add(5*time.Second))
	if w.Len() != 1 {
		t.Fatalf("expected stale entries pruned, got %d entries", w.Len())
	}
}
