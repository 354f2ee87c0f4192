package sheets

import (
	"context"
	"testing"
)

func TestReadyReportsMissingConfig(t *testing.T) {
	c := New(Config{})
	ok, reason := c.Ready()
	if ok || reason != "missing_SHEET_ID" {
		t.Fatalf("expected missing_SHEET_ID, got ok=%v reason=%q", ok, reason)
	}

	c = New(Config{SheetID: "abc"})
	ok, reason = c.Ready()
	if ok || reason != "missing_GOOGLE_SERVICE_ACCOUNT_JSON" {
		t.Fatalf("expected missing credential, got ok=%v reason=%q", ok, reason)
	}
}

func TestReadyOKWithCredential(t *testing.T) {
	c := New(Config{SheetID: "abc", ServiceAccountRaw: "{}"})
	ok, _ := c.Ready()
	if !ok {
		t.Fatalf("expected ready when both fields present")
	}
}

func TestAppendBatchEmptyIsNoop(t *testing.T) {
	c := New(Config{})
	if err := c.AppendBatch(context.Background(), nil); err != nil {
		t.Fatalf("expected nil error for empty batch, got %v", err)
	}
}

func TestAppendBatchMissingSheetID(t *testing.T) {
	c := New(Config{ServiceAccountRaw: "{}"})
	err := c.AppendBatch(context.Background(), []Item{{ID: "a"}})
	if err == nil {
		t.Fatalf("expected error for missing sheet id")
	}
}
