package ledger

import (
	"context"
	"path/filepath"
	"testing"
)

// openTestLedger creates a ledger in a temp database file
func openTestLedger(t *testing.T) *Ledger {
	t.Helper()

	l, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

// TestLedgerLifecycle tests open, migrate and reopen against the same
// database file
func TestLedgerLifecycle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	l, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.RecordOutcome(ctx, "run-1", "init", "record-network", "persistent"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening runs migrations again as a no-op and sees the data.
	l, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l.Close()

	entries, err := l.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries after reopen, want 1", len(entries))
	}
}

// TestLedgerRecordAndList tests transition and outcome rows, ordering
// and filtering
func TestLedgerRecordAndList(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	if err := l.RecordTransition(ctx, "run-1", "download-image", "download", "decompress"); err != nil {
		t.Fatalf("record transition: %v", err)
	}
	if err := l.RecordOutcome(ctx, "run-1", "download-image", "decompress", "finished"); err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	if err := l.RecordOutcome(ctx, "run-2", "deploy-node/node1", "configure", "failed"); err != nil {
		t.Fatalf("record outcome: %v", err)
	}

	entries, err := l.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	// Newest first.
	if entries[0].Procedure != "deploy-node/node1" || entries[0].Outcome != "failed" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[2].Kind != "transition" || entries[2].FromState != "download" || entries[2].ToState != "decompress" {
		t.Errorf("entries[2] = %+v", entries[2])
	}
	if entries[2].Timestamp.IsZero() {
		t.Error("timestamp not recorded")
	}

	// Procedure filter.
	entries, err = l.List(ctx, "download-image", 0)
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("filtered list has %d entries, want 2", len(entries))
	}

	// Limit.
	entries, err = l.List(ctx, "", 1)
	if err != nil {
		t.Fatalf("limited list: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("limited list has %d entries, want 1", len(entries))
	}
}
