package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"taskgate/internal/domain"
)

// Repo exposes the typed collections on top of a Store. Decoded bundles are
// always normalized, so callers only see canonical tasks.
type Repo struct {
	Store Store
}

func decode[T any](d Document) (T, error) {
	var v T
	if err := json.Unmarshal(d.Body, &v); err != nil {
		return v, fmt.Errorf("decode %s/%s: %w", d.Collection, d.ID, err)
	}
	return v, nil
}

func (r Repo) put(ctx context.Context, collection, id string, v any, expected int64) (Document, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Document{}, fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	return r.Store.Put(ctx, Document{Collection: collection, ID: id, Body: body}, expected)
}

// Drafts

func (r Repo) GetDraft(ctx context.Context, providerID string) (domain.ConfigBundle, int64, error) {
	d, err := r.Store.Get(ctx, domain.CollectionDrafts, providerID)
	if err != nil {
		return domain.ConfigBundle{}, 0, err
	}
	b, err := decode[domain.ConfigBundle](d)
	if err != nil {
		return domain.ConfigBundle{}, 0, err
	}
	b.Normalize()
	return b, d.Version, nil
}

func (r Repo) PutDraft(ctx context.Context, b domain.ConfigBundle, expected int64) (int64, error) {
	d, err := r.put(ctx, domain.CollectionDrafts, b.Provider.ID, b, expected)
	return d.Version, err
}

func (r Repo) DeleteDraft(ctx context.Context, providerID string) error {
	return r.Store.Delete(ctx, domain.CollectionDrafts, providerID, AnyVersion)
}

func (r Repo) ListDrafts(ctx context.Context) ([]domain.ConfigBundle, error) {
	docs, err := r.Store.List(ctx, domain.CollectionDrafts)
	if err != nil {
		return nil, err
	}
	res := make([]domain.ConfigBundle, 0, len(docs))
	for _, d := range docs {
		b, err := decode[domain.ConfigBundle](d)
		if err != nil {
			return nil, err
		}
		b.Normalize()
		res = append(res, b)
	}
	return res, nil
}

// Approval queue

func decodeEntry(d Document) (domain.ReviewEntry, error) {
	e, err := decode[domain.ReviewEntry](d)
	if err != nil {
		return e, err
	}
	e.Normalize()
	e.Version = d.Version
	return e, nil
}

func (r Repo) GetEntry(ctx context.Context, providerID string) (domain.ReviewEntry, error) {
	d, err := r.Store.Get(ctx, domain.CollectionApprovalQueue, providerID)
	if err != nil {
		return domain.ReviewEntry{}, err
	}
	return decodeEntry(d)
}

// PutEntry writes e guarded by expected and returns it with its new version.
func (r Repo) PutEntry(ctx context.Context, e domain.ReviewEntry, expected int64) (domain.ReviewEntry, error) {
	e.Version = 0
	d, err := r.put(ctx, domain.CollectionApprovalQueue, e.Provider.ID, e, expected)
	if err != nil {
		return domain.ReviewEntry{}, err
	}
	e.Version = d.Version
	return e, nil
}

func (r Repo) DeleteEntry(ctx context.Context, providerID string, expected int64) error {
	return r.Store.Delete(ctx, domain.CollectionApprovalQueue, providerID, expected)
}

func (r Repo) ListEntries(ctx context.Context) ([]domain.ReviewEntry, error) {
	docs, err := r.Store.List(ctx, domain.CollectionApprovalQueue)
	if err != nil {
		return nil, err
	}
	res := make([]domain.ReviewEntry, 0, len(docs))
	for _, d := range docs {
		e, err := decodeEntry(d)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

// Partition splits entries into the three status views, newest submission first.
func Partition(entries []domain.ReviewEntry) domain.ReviewQueue {
	q := domain.ReviewQueue{
		Pending:  []domain.ReviewEntry{},
		Approved: []domain.ReviewEntry{},
		Declined: []domain.ReviewEntry{},
	}
	for _, e := range entries {
		switch e.Status {
		case domain.StatusApproved:
			q.Approved = append(q.Approved, e)
		case domain.StatusDeclined:
			q.Declined = append(q.Declined, e)
		default:
			q.Pending = append(q.Pending, e)
		}
	}
	for _, list := range [][]domain.ReviewEntry{q.Pending, q.Approved, q.Declined} {
		sort.SliceStable(list, func(i, j int) bool { return list[i].SubmittedAt > list[j].SubmittedAt })
	}
	return q
}

// Default config

type defaultTasksDoc struct {
	Items     []domain.Task `json:"items"`
	UpdatedAt string        `json:"updated_at"`
}

type defaultProviderDoc struct {
	domain.Provider
	UpdatedAt string `json:"updated_at,omitempty"`
}

// GetDefault loads both halves of the default config. Either half may be
// missing; ErrNotFound is returned only when both are.
func (r Repo) GetDefault(ctx context.Context) (domain.ConfigBundle, error) {
	var (
		b     domain.ConfigBundle
		found bool
	)
	pd, err := r.Store.Get(ctx, domain.CollectionDefaultConfig, domain.DefaultProviderDoc)
	switch {
	case err == nil:
		p, err := decode[defaultProviderDoc](pd)
		if err != nil {
			return b, err
		}
		b.Provider = p.Provider
		b.UpdatedAt = p.UpdatedAt
		found = true
	case !errors.Is(err, ErrNotFound):
		return b, err
	}
	td, err := r.Store.Get(ctx, domain.CollectionDefaultConfig, domain.DefaultTasksDoc)
	switch {
	case err == nil:
		t, err := decode[defaultTasksDoc](td)
		if err != nil {
			return b, err
		}
		b.Tasks = t.Items
		if t.UpdatedAt > b.UpdatedAt {
			b.UpdatedAt = t.UpdatedAt
		}
		found = true
	case !errors.Is(err, ErrNotFound):
		return b, err
	}
	if !found {
		return b, ErrNotFound
	}
	b.Normalize()
	return b, nil
}

// PutDefault writes the provider half then the tasks half, each last writer wins.
func (r Repo) PutDefault(ctx context.Context, b domain.ConfigBundle) error {
	if _, err := r.put(ctx, domain.CollectionDefaultConfig, domain.DefaultProviderDoc,
		defaultProviderDoc{Provider: b.Provider, UpdatedAt: b.UpdatedAt}, AnyVersion); err != nil {
		return err
	}
	items := b.Tasks
	if items == nil {
		items = []domain.Task{}
	}
	_, err := r.put(ctx, domain.CollectionDefaultConfig, domain.DefaultTasksDoc,
		defaultTasksDoc{Items: items, UpdatedAt: b.UpdatedAt}, AnyVersion)
	return err
}

// Events

func (r Repo) ListEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	return r.Store.ListEvents(ctx, f)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
