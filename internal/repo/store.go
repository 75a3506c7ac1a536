package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskgate/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an expected version does not match the stored one.
	ErrConflict = errors.New("version conflict")
)

// Version expectations for Put and Delete.
const (
	AnyVersion int64 = -1 // last writer wins
	NoVersion  int64 = 0  // create only
)

// StoreError wraps a driver failure. The caller's state is unchanged and the
// operation is safe to retry.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// Document is one whole JSON body in a collection.
type Document struct {
	Collection string
	ID         string
	Body       []byte
	Version    int64
	UpdatedAt  string
}

type EventFilter struct {
	EntityKind string
	EntityID   string
	Limit      int
}

// Store is a keyed document database. Every write replaces a whole document.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	// Put writes doc and returns it with the new version. expected is
	// AnyVersion, NoVersion or the version last read.
	Put(ctx context.Context, doc Document, expected int64) (Document, error)
	// Delete removes a document. Deleting a missing document with
	// AnyVersion is not an error.
	Delete(ctx context.Context, collection, id string, expected int64) error
	List(ctx context.Context, collection string) ([]Document, error)
	AppendEvent(ctx context.Context, evt domain.Event) error
	ListEvents(ctx context.Context, f EventFilter) ([]domain.Event, error)
	Close() error
}

// Hook observes every store call.
type Hook func(op string, d time.Duration, err error)

type instrumented struct {
	Store
	hook Hook
}

// Instrument wraps s so each call is reported to hook.
func Instrument(s Store, hook Hook) Store {
	if hook == nil {
		return s
	}
	return instrumented{Store: s, hook: hook}
}

func (s instrumented) observe(op string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	s.hook(op, time.Since(start), err)
}

func (s instrumented) Get(ctx context.Context, collection, id string) (Document, error) {
	start := time.Now()
	d, err := s.Store.Get(ctx, collection, id)
	s.observe("get", start, err)
	return d, err
}

func (s instrumented) Put(ctx context.Context, doc Document, expected int64) (Document, error) {
	start := time.Now()
	d, err := s.Store.Put(ctx, doc, expected)
	s.observe("put", start, err)
	return d, err
}

func (s instrumented) Delete(ctx context.Context, collection, id string, expected int64) error {
	start := time.Now()
	err := s.Store.Delete(ctx, collection, id, expected)
	s.observe("delete", start, err)
	return err
}

func (s instrumented) List(ctx context.Context, collection string) ([]Document, error) {
	start := time.Now()
	ds, err := s.Store.List(ctx, collection)
	s.observe("list", start, err)
	return ds, err
}

func (s instrumented) AppendEvent(ctx context.Context, evt domain.Event) error {
	start := time.Now()
	err := s.Store.AppendEvent(ctx, evt)
	s.observe("append_event", start, err)
	return err
}

func (s instrumented) ListEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	start := time.Now()
	es, err := s.Store.ListEvents(ctx, f)
	s.observe("list_events", start, err)
	return es, err
}
