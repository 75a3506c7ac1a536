// Package autosave coalesces bursts of edits into one write per key. Only the
// latest snapshot scheduled for a key is written, after the key has been
// quiet for the configured delay.
package autosave

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"taskgate/internal/metrics"
)

var ErrClosed = errors.New("autosave queue closed")

// WriteFunc performs one whole-document write.
type WriteFunc func(ctx context.Context) error

type entry struct {
	write WriteFunc
	timer *time.Timer
	gen   uint64
}

type Queue struct {
	delay   time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending map[string]*entry
	locks   map[string]*sync.Mutex
	// cancelled holds, per key, the generation at the last Cancel. Writes at
	// or below it are dropped even if their timer already fired.
	cancelled map[string]uint64
	gen       uint64
	closed    bool
	running   sync.WaitGroup
}

func New(delay time.Duration, log *zap.Logger, m *metrics.Metrics) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		delay:     delay,
		log:       log,
		metrics:   m,
		pending:   map[string]*entry{},
		locks:     map[string]*sync.Mutex{},
		cancelled: map[string]uint64{},
	}
}

func (q *Queue) Delay() time.Duration { return q.delay }

// Schedule replaces any pending write for key and restarts its quiet period.
func (q *Queue) Schedule(key string, write WriteFunc) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if prev, ok := q.pending[key]; ok {
		prev.timer.Stop()
	}
	q.gen++
	gen := q.gen
	e := &entry{write: write, gen: gen}
	e.timer = time.AfterFunc(q.delay, func() { q.fire(key, gen) })
	q.pending[key] = e
	return nil
}

// Pending reports whether key has an unflushed write.
func (q *Queue) Pending(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[key]
	return ok
}

// Flush writes the pending snapshot for key now and returns the write error.
// It is a no-op when nothing is pending.
func (q *Queue) Flush(ctx context.Context, key string) error {
	e := q.take(key, 0)
	if e == nil {
		return nil
	}
	return q.run(ctx, key, e)
}

// Cancel drops the pending write for key and waits for a write already in
// flight. A write that fired but has not started is skipped. After Cancel
// returns, no write scheduled before it will reach the store.
func (q *Queue) Cancel(key string) {
	q.mu.Lock()
	if e, ok := q.pending[key]; ok {
		e.timer.Stop()
		delete(q.pending, key)
	}
	q.gen++
	q.cancelled[key] = q.gen
	q.mu.Unlock()

	l := q.keyLock(key)
	l.Lock()
	l.Unlock()
}

func (q *Queue) superseded(key string, gen uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return gen <= q.cancelled[key]
}

// Close flushes every pending write and rejects further scheduling.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	keys := make([]string, 0, len(q.pending))
	for k := range q.pending {
		keys = append(keys, k)
	}
	q.mu.Unlock()

	var errs []error
	for _, k := range keys {
		if err := q.Flush(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	q.running.Wait()
	return errors.Join(errs...)
}

// take removes the entry for key. A non-zero gen only matches that generation.
func (q *Queue) take(key string, gen uint64) *entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.pending[key]
	if !ok || (gen != 0 && e.gen != gen) {
		return nil
	}
	e.timer.Stop()
	delete(q.pending, key)
	q.running.Add(1)
	return e
}

func (q *Queue) keyLock(key string) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.locks[key]
	if !ok {
		l = &sync.Mutex{}
		q.locks[key] = l
	}
	return l
}

func (q *Queue) fire(key string, gen uint64) {
	e := q.take(key, gen)
	if e == nil {
		return
	}
	if err := q.run(context.Background(), key, e); err != nil {
		q.log.Error("autosave flush failed", zap.String("key", key), zap.Error(err))
	}
}

func (q *Queue) run(ctx context.Context, key string, e *entry) error {
	defer q.running.Done()
	l := q.keyLock(key)
	l.Lock()
	defer l.Unlock()
	if q.superseded(key, e.gen) {
		q.log.Debug("autosave dropped after cancel", zap.String("key", key))
		return nil
	}
	err := e.write(ctx)
	q.metrics.AutosaveFlush(err)
	if err == nil {
		q.log.Debug("autosave flushed", zap.String("key", key))
	}
	return err
}
