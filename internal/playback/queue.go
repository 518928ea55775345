package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pitabwire/frame/workerpool"

	"github.com/readaloud/readaloud/pkg/chunker"
)

// UnitStatus is the fetch state of one prefetched chunk.
type UnitStatus int

const (
	UnitPending UnitStatus = iota
	UnitReady
	UnitError
)

func (s UnitStatus) String() string {
	switch s {
	case UnitReady:
		return "ready"
	case UnitError:
		return "error"
	default:
		return "pending"
	}
}

// Unit is a snapshot of one chunk's fetch.
type Unit struct {
	ChunkIndex int
	Status     UnitStatus
	Handle     *Handle
	Err        error
}

// FetchFunc synthesizes one chunk.
type FetchFunc func(ctx context.Context, chunk chunker.Chunk) (*Handle, error)

type slot struct {
	status UnitStatus
	handle *Handle
	err    error
	taken  bool
	done   chan struct{}
}

// Queue fetches upcoming chunks of one session ahead of playback. A chunk is
// fetched at most once; handles nobody took are released on Close.
type Queue struct {
	chunks []chunker.Chunk
	fetch  FetchFunc
	pool   workerpool.WorkerPool

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	slots  map[int]*slot
	closed bool
}

// NewQueue creates a queue for chunks. Fetch jobs run on pool when it is
// non-nil and on their own goroutines otherwise.
func NewQueue(ctx context.Context, chunks []chunker.Chunk, fetch FetchFunc, pool workerpool.WorkerPool) *Queue {
	ctx, cancel := context.WithCancel(ctx)
	return &Queue{
		chunks: chunks,
		fetch:  fetch,
		pool:   pool,
		ctx:    ctx,
		cancel: cancel,
		slots:  make(map[int]*slot),
	}
}

// EnsureFetching starts fetches for chunks [start, start+lookahead) that
// have not been requested yet.
func (q *Queue) EnsureFetching(start, lookahead int) {
	type job struct {
		index int
		slot  *slot
	}
	var jobs []job

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	for i := max(start, 0); i < start+lookahead && i < len(q.chunks); i++ {
		if _, ok := q.slots[i]; ok {
			continue
		}
		s := &slot{done: make(chan struct{})}
		q.slots[i] = s
		jobs = append(jobs, job{i, s})
	}
	q.mu.Unlock()

	for _, j := range jobs {
		q.submit(j.index, j.slot)
	}
}

func (q *Queue) submit(index int, s *slot) {
	run := func() { q.run(index, s) }
	if q.pool != nil {
		if err := q.pool.Submit(q.ctx, run); err == nil {
			return
		}
		slog.WarnContext(q.ctx, "prefetch pool rejected job, running inline goroutine",
			slog.Int("chunk", index))
	}
	go run()
}

func (q *Queue) run(index int, s *slot) {
	h, err := q.fetch(q.ctx, q.chunks[index])

	q.mu.Lock()
	defer q.mu.Unlock()
	defer close(s.done)

	if q.closed || q.slots[index] != s {
		if h != nil {
			h.Release()
		}
		s.status, s.err = UnitError, ErrClosed
		return
	}
	if err != nil {
		s.status, s.err = UnitError, err
		return
	}
	s.status, s.handle = UnitReady, h
}

// Get returns the current state of chunk index without blocking.
func (q *Queue) Get(index int) (Unit, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, ok := q.slots[index]
	if !ok {
		return Unit{}, false
	}
	u := Unit{ChunkIndex: index, Status: s.status, Err: s.err}
	if !s.taken {
		u.Handle = s.handle
	}
	return u, true
}

// Await waits until chunk index resolves, timeout passes or ctx ends. The
// bool is false unless the unit resolved.
func (q *Queue) Await(ctx context.Context, index int, timeout time.Duration) (Unit, bool) {
	q.mu.Lock()
	s, ok := q.slots[index]
	q.mu.Unlock()
	if !ok {
		return Unit{}, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return q.Get(index)
	case <-timer.C:
		return Unit{ChunkIndex: index, Status: UnitPending}, false
	case <-ctx.Done():
		return Unit{ChunkIndex: index, Status: UnitPending}, false
	}
}

// Take hands the Ready handle for index to the caller, who must release it.
func (q *Queue) Take(index int) (*Handle, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, ok := q.slots[index]
	if !ok || q.closed || s.status != UnitReady || s.taken {
		return nil, false
	}
	s.taken = true
	h := s.handle
	s.handle = nil
	return h, true
}

// Discard forgets chunk index. A fetch still in flight for it becomes inert
// and its result is released.
func (q *Queue) Discard(index int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, ok := q.slots[index]
	if !ok {
		return
	}
	delete(q.slots, index)
	if s.handle != nil && !s.taken {
		s.handle.Release()
		s.handle = nil
	}
}

// Close cancels in-flight fetches and releases every handle not taken.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.cancel()
	for _, s := range q.slots {
		if s.handle != nil && !s.taken {
			s.handle.Release()
			s.handle = nil
		}
	}
}
