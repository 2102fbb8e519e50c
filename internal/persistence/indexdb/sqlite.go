// Package indexdb keeps a queryable sqlite index of what a minimap session
// invalidated. The event log stays the source of truth; the index may drop
// rows under load.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelmap.ai/internal/metrics"
	"voxelmap.ai/internal/minimap/router"
	"voxelmap.ai/internal/persistence/snapshot"
)

type SQLiteIndex struct {
	db        *sql.DB
	sessionID string
	metrics   *metrics.Metrics

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropInvalidation atomic.Uint64
	dropWorldChange  atomic.Uint64
	dropSnapshot     atomic.Uint64
}

type reqKind int

const (
	reqInvalidation reqKind = iota + 1
	reqWorldChange
	reqSnapshot
	reqFlush
)

type req struct {
	kind reqKind

	inv      router.Invalidation
	worldID  string
	at       time.Time
	snapshot snapshotRow
	done     chan struct{}
}

type snapshotRow struct {
	Path    string
	WorldID string
	Seed    int64
	Chunks  int
	SavedAt string
}

type Stats struct {
	DropInvalidationTotal uint64
	DropWorldChangeTotal  uint64
	DropSnapshotTotal     uint64
	QueueDepth            int
	QueueCapacity         int
}

// InvalidationRow is one routed notification as read back from the index.
type InvalidationRow struct {
	Seq       int64
	SessionID string
	At        time.Time
	Kind      string
	Positions int
	Chunks    []router.ChunkPos
}

type Option func(*SQLiteIndex)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SQLiteIndex) { s.metrics = m }
}

// WithSession tags every row with the given session id.
func WithSession(id string) Option {
	return func(s *SQLiteIndex) { s.sessionID = id }
}

func OpenSQLite(path string, opts ...Option) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Explosions and chunk streams arrive in bursts; the loop must never wait on disk.
		ch: make(chan req, 65536),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS invalidations (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			at TEXT NOT NULL,
			kind TEXT NOT NULL,
			positions INTEGER NOT NULL,
			chunks_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS invalidation_chunks (
			seq INTEGER NOT NULL,
			cx INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			PRIMARY KEY (seq, cx, cz)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_invalidation_chunks_pos ON invalidation_chunks(cx, cz, seq);`,
		`CREATE TABLE IF NOT EXISTS world_changes (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			at TEXT NOT NULL,
			world_id TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			path TEXT PRIMARY KEY,
			world_id TEXT NOT NULL,
			seed INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			saved_at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
		s.metrics.ObserveIndexDrop()
	}
}

// RecordInvalidation implements router.Recorder.
func (s *SQLiteIndex) RecordInvalidation(inv router.Invalidation) {
	if s == nil || s.closed.Load() {
		return
	}
	s.enqueue(req{kind: reqInvalidation, inv: inv}, &s.dropInvalidation)
}

// RecordWorldChange implements router.Recorder.
func (s *SQLiteIndex) RecordWorldChange(worldID string) {
	if s == nil || s.closed.Load() {
		return
	}
	s.enqueue(req{kind: reqWorldChange, worldID: worldID, at: time.Now()}, &s.dropWorldChange)
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Path:    path,
		WorldID: snap.Header.WorldID,
		Seed:    snap.Seed,
		Chunks:  len(snap.Chunks),
		SavedAt: snap.Header.SavedAt,
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropInvalidationTotal: s.dropInvalidation.Load(),
		DropWorldChangeTotal:  s.dropWorldChange.Load(),
		DropSnapshotTotal:     s.dropSnapshot.Load(),
		QueueDepth:            len(s.ch),
		QueueCapacity:         cap(s.ch),
	}
}

// Flush waits until everything queued so far is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ChunkHistory returns the most recent invalidations that touched chunk
// (cx, cz), newest first.
func (s *SQLiteIndex) ChunkHistory(ctx context.Context, cx, cz, limit int) ([]InvalidationRow, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.seq, i.session_id, i.at, i.kind, i.positions, i.chunks_json
		FROM invalidation_chunks c JOIN invalidations i ON i.seq = c.seq
		WHERE c.cx = ? AND c.cz = ?
		ORDER BY i.seq DESC
		LIMIT ?`, cx, cz, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InvalidationRow
	for rows.Next() {
		var (
			r      InvalidationRow
			at     string
			chunks string
		)
		if err := rows.Scan(&r.Seq, &r.SessionID, &at, &r.Kind, &r.Positions, &chunks); err != nil {
			return nil, err
		}
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		if err := json.Unmarshal([]byte(chunks), &r.Chunks); err != nil {
			return nil, fmt.Errorf("invalidation %d: %w", r.Seq, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertInvalidation, _ := s.db.Prepare(`INSERT INTO invalidations(session_id,at,kind,positions,chunks_json) VALUES(?,?,?,?,?)`)
	insertChunk, _ := s.db.Prepare(`INSERT OR IGNORE INTO invalidation_chunks(seq,cx,cz) VALUES(?,?,?)`)
	insertWorldChange, _ := s.db.Prepare(`INSERT INTO world_changes(session_id,at,world_id) VALUES(?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(path,world_id,seed,chunks,saved_at) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertInvalidation, insertChunk, insertWorldChange, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var r req
		select {
		case <-ticker.C:
			flushIfNeeded()
			continue
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		}

		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}

		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqInvalidation:
			inv := r.inv
			chunks, _ := json.Marshal(inv.Chunks)
			if insertInvalidation == nil || insertChunk == nil {
				continue
			}
			res, err := tx.Stmt(insertInvalidation).Exec(
				s.sessionID,
				inv.At.UTC().Format(time.RFC3339Nano),
				inv.Kind.String(),
				inv.Positions,
				string(chunks),
			)
			if err != nil {
				rollback()
				continue
			}
			opCount++
			seq, err := res.LastInsertId()
			if err != nil {
				rollback()
				continue
			}
			for _, c := range inv.Chunks {
				if _, err := tx.Stmt(insertChunk).Exec(seq, c.X, c.Z); err != nil {
					rollback()
					break
				}
				opCount++
			}

		case reqWorldChange:
			if insertWorldChange == nil {
				continue
			}
			if _, err := tx.Stmt(insertWorldChange).Exec(s.sessionID, r.at.UTC().Format(time.RFC3339Nano), r.worldID); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot == nil {
				continue
			}
			if _, err := tx.Stmt(insertSnapshot).Exec(sn.Path, sn.WorldID, sn.Seed, sn.Chunks, sn.SavedAt); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}
}
