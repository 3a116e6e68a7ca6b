package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func sampleRecords() []Record {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []Record{
		{Timestamp: base, Kind: KindCommand, BoothID: "b1", SlotID: "s1", Command: "forceUnlock", Outcome: OutcomeAccepted},
		{Timestamp: base.Add(time.Minute), Kind: KindSession, BoothID: "b1", SlotID: "s2", SessionID: "sess-1", UserID: "u1", Outcome: OutcomeAccepted},
		{Timestamp: base.Add(2 * time.Minute), Kind: KindAdmin, BoothID: "b2", SlotID: "s1", Command: "deleteSlot", Outcome: OutcomeRejected, Detail: "slot busy"},
	}
}

func testStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	for _, rec := range sampleRecords() {
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	all, err := store.Query(ctx, Query{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d records", len(all))
	}

	byKind, err := store.Query(ctx, Query{Kind: KindAdmin})
	if err != nil {
		t.Fatalf("query kind: %v", err)
	}
	if len(byKind) != 1 || byKind[0].Command != "deleteSlot" {
		t.Fatalf("kind filter %#v", byKind)
	}

	byBooth, err := store.Query(ctx, Query{BoothID: "b1"})
	if err != nil {
		t.Fatalf("query booth: %v", err)
	}
	if len(byBooth) != 2 {
		t.Fatalf("booth filter %d", len(byBooth))
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	windowed, err := store.Query(ctx, Query{Start: base.Add(30 * time.Second), End: base.Add(90 * time.Second)})
	if err != nil {
		t.Fatalf("query window: %v", err)
	}
	if len(windowed) != 1 || windowed[0].SessionID != "sess-1" {
		t.Fatalf("window filter %#v", windowed)
	}
}

func TestJSONLStore(t *testing.T) {
	store, err := NewJSONLStore(filepath.Join(t.TempDir(), "audit.log"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = store.Close() }()
	testStore(t, store)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = store.Close() }()
	testStore(t, store)
}

func TestJSONLStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	store, err := NewJSONLStore(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if err := store.Append(ctx, sampleRecords()[0]); err != nil {
		t.Fatalf("append: %v", err)
	}
	// a second store on the same file sees the same data
	store2, err := NewJSONLStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	recs, err := store2.Query(ctx, Query{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records", len(recs))
	}
}
