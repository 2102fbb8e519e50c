package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"voxelmap.ai/internal/minimap/router"
	"voxelmap.ai/internal/persistence/snapshot"
)

func TestSQLiteIndex_RecordsInvalidations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path, WithSession("s1"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	idx.RecordInvalidation(router.Invalidation{
		Kind:      router.Explosion,
		Positions: 12,
		Chunks:    []router.ChunkPos{{X: 0, Z: 0}, {X: -1, Z: 0}},
		At:        at,
	})
	idx.RecordInvalidation(router.Invalidation{
		Kind:      router.BlockChange,
		Positions: 1,
		Chunks:    []router.ChunkPos{{X: -1, Z: 0}},
		At:        at.Add(time.Second),
	})
	idx.RecordWorldChange("nether")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hist, err := idx.ChunkHistory(ctx, -1, 0, 10)
	if err != nil {
		t.Fatalf("ChunkHistory: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("history rows=%d", len(hist))
	}
	if hist[0].Kind != "BLOCK_CHANGE" || hist[1].Kind != "EXPLOSION" {
		t.Fatalf("unexpected order: %s, %s", hist[0].Kind, hist[1].Kind)
	}
	if hist[1].Positions != 12 || len(hist[1].Chunks) != 2 || !hist[1].At.Equal(at) || hist[1].SessionID != "s1" {
		t.Fatalf("row mismatch: %+v", hist[1])
	}

	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var world, session string
	row := db.QueryRow(`SELECT world_id, session_id FROM world_changes ORDER BY seq DESC LIMIT 1`)
	if err := row.Scan(&world, &session); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if world != "nether" || session != "s1" {
		t.Fatalf("world change mismatch: world=%q session=%q", world, session)
	}
}

func TestSQLiteIndex_RecordSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	idx.RecordSnapshot("/abs/world.snap.zst", snapshot.SnapshotV1{
		Header: snapshot.Header{WorldID: "overworld", SavedAt: "2026-10-19T00:00:00Z"},
		Seed:   42,
		Chunks: make([]snapshot.ChunkV1, 3),
	})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Recording after close is a no-op.
	idx.RecordSnapshot("/abs/late.snap.zst", snapshot.SnapshotV1{})

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		worldID string
		seed    int64
		chunks  int
		n       int
	)
	if err := db.QueryRow(`SELECT world_id, seed, chunks FROM snapshots WHERE path='/abs/world.snap.zst'`).Scan(&worldID, &seed, &chunks); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if worldID != "overworld" || seed != 42 || chunks != 3 {
		t.Fatalf("row mismatch: world=%q seed=%d chunks=%d", worldID, seed, chunks)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("snapshot rows=%d err=%v", n, err)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqWorldChange, worldID: "a"}

	s.RecordInvalidation(router.Invalidation{Kind: router.BlockChange})
	s.RecordWorldChange("b")
	s.RecordSnapshot("/tmp/x.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropInvalidationTotal != 1 || st.DropWorldChangeTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("drop stats mismatch: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}
