package router

import (
	"errors"
	"sync"
	"testing"
)

type queue struct {
	mu    sync.Mutex
	tasks []func()
}

func (q *queue) Schedule(fn func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()
}

// drain runs tasks until the queue is empty, including tasks scheduled by
// earlier tasks.
func (q *queue) drain() int {
	n := 0
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return n
		}
		fn := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()
		fn()
		n++
	}
}

type event struct {
	what string
	x, z int
}

type journal struct {
	events []event
	fail   error
}

func (j *journal) ApplyMutation(m Mutation) error {
	if j.fail != nil {
		return j.fail
	}
	j.events = append(j.events, event{what: "apply:" + m.Kind.String()})
	return nil
}

func (j *journal) ResetWorld() { j.events = append(j.events, event{what: "reset"}) }

func (j *journal) RefreshChunk(x, z int) {
	j.events = append(j.events, event{what: "refresh", x: x, z: z})
}

func (j *journal) Clear() { j.events = append(j.events, event{what: "clear"}) }

type recorder struct {
	invs   []Invalidation
	worlds []string
}

func (r *recorder) RecordInvalidation(inv Invalidation) { r.invs = append(r.invs, inv) }
func (r *recorder) RecordWorldChange(id string)         { r.worlds = append(r.worlds, id) }

func TestChunksDedupPreservesFirstSeenOrder(t *testing.T) {
	got := Chunks([]BlockPos{
		{X: 20, Y: 64, Z: 3},
		{X: -1, Y: 64, Z: 0},
		{X: 31, Y: 10, Z: 15},
		{X: -16, Y: 0, Z: -1},
		{X: 16, Y: 0, Z: 0},
	})
	want := []ChunkPos{{X: 1, Z: 0}, {X: -1, Z: 0}, {X: -1, Z: -1}}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
	if Chunks(nil) != nil {
		t.Fatalf("expected nil for no positions")
	}
}

func TestMultiBlockChangeInOneChunkRefreshesOnce(t *testing.T) {
	q := &queue{}
	j := &journal{}
	r := New(q, j, j)

	pos := make([]BlockPos, 10)
	for i := range pos {
		pos[i] = BlockPos{X: 32 + i, Y: 70, Z: 48 + i%3}
	}
	r.Receive(Mutation{Kind: MultiBlockChange, Positions: pos})
	if len(j.events) != 0 {
		t.Fatalf("Receive must not touch the world: %v", j.events)
	}
	q.drain()

	want := []event{{what: "apply:MULTI_BLOCK_CHANGE"}, {what: "refresh", x: 2, z: 3}}
	if len(j.events) != len(want) {
		t.Fatalf("events %v want %v", j.events, want)
	}
	for i := range want {
		if j.events[i] != want[i] {
			t.Fatalf("events %v want %v", j.events, want)
		}
	}
}

func TestRefreshRunsAfterLaterQueuedMutationsApply(t *testing.T) {
	q := &queue{}
	j := &journal{}
	r := New(q, j, j)

	r.Receive(Mutation{Kind: BlockChange, Positions: []BlockPos{{X: 0, Y: 1, Z: 0}}})
	r.Receive(Mutation{Kind: Explosion, Positions: []BlockPos{{X: 17, Y: 1, Z: 0}, {X: 15, Y: 1, Z: 0}}})
	q.drain()

	want := []event{
		{what: "apply:BLOCK_CHANGE"},
		{what: "apply:EXPLOSION"},
		{what: "refresh", x: 0, z: 0},
		{what: "refresh", x: 1, z: 0},
		{what: "refresh", x: 0, z: 0},
	}
	if len(j.events) != len(want) {
		t.Fatalf("events %v want %v", j.events, want)
	}
	for i := range want {
		if j.events[i] != want[i] {
			t.Fatalf("events %v want %v", j.events, want)
		}
	}
}

func TestRejectedMutationSchedulesNoRefresh(t *testing.T) {
	q := &queue{}
	j := &journal{fail: errors.New("chunk not loaded")}
	rec := &recorder{}
	r := New(q, j, j, WithRecorder(rec))

	r.Receive(Mutation{Kind: BlockChange, Positions: []BlockPos{{X: 1, Y: 2, Z: 3}}})
	if n := q.drain(); n != 1 {
		t.Fatalf("ran %d tasks, want 1", n)
	}
	if len(j.events) != 0 || len(rec.invs) != 0 {
		t.Fatalf("unexpected events=%v invs=%v", j.events, rec.invs)
	}
}

func TestRecorderSeesDedupedChunks(t *testing.T) {
	q := &queue{}
	j := &journal{}
	rec := &recorder{}
	r := New(q, j, j, WithRecorder(rec))

	r.Receive(Mutation{Kind: Explosion, Positions: []BlockPos{{X: 1}, {X: 2}, {X: 40}}})
	q.drain()

	if len(rec.invs) != 1 {
		t.Fatalf("invalidations=%d", len(rec.invs))
	}
	inv := rec.invs[0]
	if inv.Kind != Explosion || inv.Positions != 3 || len(inv.Chunks) != 2 {
		t.Fatalf("unexpected invalidation %+v", inv)
	}
}

func TestWorldChangedResetsThenClears(t *testing.T) {
	q := &queue{}
	j := &journal{}
	rec := &recorder{}
	r := New(q, j, j, WithRecorder(rec))

	r.WorldChanged("nether")
	if len(j.events) != 0 {
		t.Fatalf("WorldChanged must defer to the loop")
	}
	q.drain()
	if len(j.events) != 2 || j.events[0].what != "reset" || j.events[1].what != "clear" {
		t.Fatalf("events %v", j.events)
	}
	if len(rec.worlds) != 1 || rec.worlds[0] != "nether" {
		t.Fatalf("worlds %v", rec.worlds)
	}
}

func TestNilTargetIsTolerated(t *testing.T) {
	q := &queue{}
	j := &journal{}
	r := New(q, j, nil)
	r.Receive(Mutation{Kind: BlockChange, Positions: []BlockPos{{X: 1}}})
	r.WorldChanged("overworld")
	q.drain()

	r.SetTarget(j)
	r.Receive(Mutation{Kind: BlockChange, Positions: []BlockPos{{X: 1}}})
	q.drain()
	last := j.events[len(j.events)-1]
	if last.what != "refresh" {
		t.Fatalf("last event %v", last)
	}
}
