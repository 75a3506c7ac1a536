package autosave

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	writes []string
}

func (r *recorder) write(v string) WriteFunc {
	return func(context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.writes = append(r.writes, v)
		return nil
	}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.writes...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestScheduleCoalescesBurst(t *testing.T) {
	q := New(30*time.Millisecond, nil, nil)
	rec := &recorder{}
	for _, v := range []string{"a", "ab", "abc"} {
		if err := q.Schedule("anki", rec.write(v)); err != nil {
			t.Fatalf("schedule: %v", err)
		}
	}
	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
	time.Sleep(60 * time.Millisecond)
	got := rec.snapshot()
	if len(got) != 1 || got[0] != "abc" {
		t.Fatalf("expected only the latest snapshot, got %v", got)
	}
	if q.Pending("anki") {
		t.Fatalf("nothing should be pending")
	}
}

func TestFlushWritesImmediately(t *testing.T) {
	q := New(time.Hour, nil, nil)
	wantErr := errors.New("store down")
	if err := q.Schedule("loa", func(context.Context) error { return wantErr }); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := q.Flush(context.Background(), "loa"); !errors.Is(err, wantErr) {
		t.Fatalf("flush should return the write error, got %v", err)
	}
	if err := q.Flush(context.Background(), "loa"); err != nil {
		t.Fatalf("second flush is a no-op, got %v", err)
	}
}

func TestCancelDropsWrite(t *testing.T) {
	q := New(20*time.Millisecond, nil, nil)
	var n atomic.Int32
	_ = q.Schedule("k", func(context.Context) error { n.Add(1); return nil })
	q.Cancel("k")
	time.Sleep(50 * time.Millisecond)
	if n.Load() != 0 {
		t.Fatalf("cancelled write ran")
	}
}

func TestCloseFlushesAndRejects(t *testing.T) {
	q := New(time.Hour, nil, nil)
	rec := &recorder{}
	_ = q.Schedule("a", rec.write("a"))
	_ = q.Schedule("b", rec.write("b"))
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(rec.snapshot()) != 2 {
		t.Fatalf("close should flush all, got %v", rec.snapshot())
	}
	if err := q.Schedule("c", rec.write("c")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCancelWaitsForInflightWrite(t *testing.T) {
	q := New(time.Millisecond, nil, nil)
	var (
		mu     sync.Mutex
		stored string
	)
	started := make(chan struct{})
	release := make(chan struct{})
	_ = q.Schedule("anki", func(context.Context) error {
		close(started)
		<-release
		mu.Lock()
		stored = "older autosave"
		mu.Unlock()
		return nil
	})
	<-started

	saved := make(chan struct{})
	go func() {
		q.Cancel("anki")
		mu.Lock()
		stored = "explicit save"
		mu.Unlock()
		close(saved)
	}()
	select {
	case <-saved:
		t.Fatalf("cancel returned while a write was in flight")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)
	<-saved

	mu.Lock()
	defer mu.Unlock()
	if stored != "explicit save" {
		t.Fatalf("explicit save was overwritten: %q", stored)
	}
}

func TestCancelSkipsFiredWriteNotYetStarted(t *testing.T) {
	q := New(time.Hour, nil, nil)
	rec := &recorder{}
	_ = q.Schedule("anki", rec.write("older autosave"))
	// Simulate a timer that fired and took its entry before Cancel ran.
	q.mu.Lock()
	gen := q.pending["anki"].gen
	q.mu.Unlock()
	e := q.take("anki", gen)
	if e == nil {
		t.Fatalf("expected the pending entry")
	}
	q.Cancel("anki")
	if err := q.run(context.Background(), "anki", e); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("cancelled write reached the store: %v", got)
	}

	_ = q.Schedule("anki", rec.write("newer"))
	if err := q.Flush(context.Background(), "anki"); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got := rec.snapshot(); len(got) != 1 || got[0] != "newer" {
		t.Fatalf("writes scheduled after cancel must still run, got %v", got)
	}
}
