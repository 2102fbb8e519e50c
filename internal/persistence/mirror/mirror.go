// Package mirror copies finished data files (rotated event logs, snapshots)
// into an object store in the background.
package mirror

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voxelmap.ai/internal/logger"
	"voxelmap.ai/internal/metrics"
)

// Uploader stores one local file under an object key.
type Uploader interface {
	Put(ctx context.Context, key, localPath string) error
}

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	Enqueued      uint64 `json:"enqueued"`
	Dropped       uint64 `json:"dropped"`
	Uploaded      uint64 `json:"uploaded"`
	Failed        uint64 `json:"failed"`
	LastSuccess   int64  `json:"last_success_unix"`
	LastError     int64  `json:"last_error_unix"`
}

type Option func(*Mirror)

func WithLogger(l logger.Logger) Option { return func(m *Mirror) { m.log = l } }

func WithMetrics(mt *metrics.Metrics) Option { return func(m *Mirror) { m.metrics = mt } }

func WithWorkers(n int) Option { return func(m *Mirror) { m.workers = n } }

func WithQueue(n int) Option { return func(m *Mirror) { m.queue = n } }

// WithEnqueueWait bounds how long Enqueue blocks on a full queue before
// dropping the file.
func WithEnqueueWait(d time.Duration) Option { return func(m *Mirror) { m.wait = d } }

// WithRetry sets the attempt count and base backoff. Attempt n sleeps n*n*base.
func WithRetry(attempts int, base time.Duration) Option {
	return func(m *Mirror) {
		m.attempts = attempts
		m.backoff = base
	}
}

// Mirror uploads files found under a data directory. The object key is the
// file's path relative to that directory, below an optional prefix.
type Mirror struct {
	up      Uploader
	dataDir string
	prefix  string

	log      logger.Logger
	metrics  *metrics.Metrics
	workers  int
	queue    int
	wait     time.Duration
	attempts int
	backoff  time.Duration

	mu     sync.RWMutex
	jobs   chan string
	wg     sync.WaitGroup
	closed bool

	enqueued    atomic.Uint64
	dropped     atomic.Uint64
	uploaded    atomic.Uint64
	failed      atomic.Uint64
	lastSuccess atomic.Int64
	lastError   atomic.Int64
}

func New(up Uploader, dataDir, prefix string, opts ...Option) *Mirror {
	m := &Mirror{
		up:       up,
		dataDir:  dataDir,
		prefix:   strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
		workers:  1,
		queue:    256,
		wait:     25 * time.Millisecond,
		attempts: 4,
		backoff:  200 * time.Millisecond,
	}
	for _, o := range opts {
		o(m)
	}
	m.log = logger.OrNop(m.log)
	if m.workers <= 0 {
		m.workers = 1
	}
	if m.queue <= 0 {
		m.queue = 256
	}
	if m.attempts <= 0 {
		m.attempts = 1
	}
	m.jobs = make(chan string, m.queue)
	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

// Enqueue schedules localPath for upload. It never blocks longer than the
// configured wait; a file that does not fit is dropped and counted.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	m.enqueued.Add(1)
	select {
	case m.jobs <- localPath:
		return
	default:
	}
	t := time.NewTimer(m.wait)
	defer t.Stop()
	select {
	case m.jobs <- localPath:
	case <-t.C:
		m.dropped.Add(1)
		m.metrics.ObserveMirror("drop")
		m.log.Warn("mirror queue full", "path", localPath)
	}
}

// Close stops accepting files and waits for queued uploads to finish.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.jobs)
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(m.jobs),
		QueueCapacity: cap(m.jobs),
		Enqueued:      m.enqueued.Load(),
		Dropped:       m.dropped.Load(),
		Uploaded:      m.uploaded.Load(),
		Failed:        m.failed.Load(),
		LastSuccess:   m.lastSuccess.Load(),
		LastError:     m.lastError.Load(),
	}
}

func (m *Mirror) worker() {
	defer m.wg.Done()
	for p := range m.jobs {
		m.upload(p)
	}
}

func (m *Mirror) upload(localPath string) {
	key, err := m.Key(localPath)
	if err != nil {
		m.log.Warn("mirror skip", "path", localPath, "error", err)
		return
	}
	var lastErr error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		lastErr = m.up.Put(ctx, key, localPath)
		cancel()
		if lastErr == nil {
			break
		}
		if attempt < m.attempts {
			time.Sleep(time.Duration(attempt*attempt) * m.backoff)
		}
	}
	if lastErr != nil {
		m.failed.Add(1)
		m.lastError.Store(time.Now().Unix())
		m.metrics.ObserveMirror("fail")
		m.log.Error("mirror upload failed", "key", key, "error", lastErr)
		return
	}
	m.uploaded.Add(1)
	m.lastSuccess.Store(time.Now().Unix())
	m.metrics.ObserveMirror("ok")
	m.log.Debug("mirror uploaded", "key", key)
}

// Key maps a file under the data directory to its object key.
func (m *Mirror) Key(localPath string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	base, err := filepath.Abs(m.dataDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", abs, base)
	}
	if m.prefix != "" {
		rel = path.Join(m.prefix, rel)
	}
	return rel, nil
}
