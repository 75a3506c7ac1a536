package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"taskgate/internal/domain"
	"taskgate/internal/engine/auth"
	"taskgate/internal/events"
	"taskgate/internal/export"
	"taskgate/internal/repo"
	"taskgate/internal/validate"
)

// Workflow actions.
const (
	ActionSubmit  = "submit"
	ActionApprove = "approve"
	ActionDecline = "decline"
	ActionReopen  = "reopen"
	ActionCancel  = "cancel"
)

func ensureReviewTransition(from domain.ReviewStatus, action string) error {
	switch action {
	case ActionApprove:
		if from == domain.StatusPending || from == domain.StatusDeclined {
			return nil
		}
	case ActionDecline:
		if from == domain.StatusPending {
			return nil
		}
	case ActionReopen:
		if from == domain.StatusDeclined {
			return nil
		}
	case ActionCancel:
		if from == domain.StatusPending || from == domain.StatusDeclined {
			return nil
		}
	case ActionSubmit:
		return nil
	}
	return &TransitionError{From: from, Action: action}
}

// Submit creates or replaces the review entry for the bundle's provider with
// a fresh pending entry. Replacing an approved entry starts a new review.
func (e Engine) Submit(ctx context.Context, p auth.Principal, b domain.ConfigBundle) (entry domain.ReviewEntry, err error) {
	defer func() { e.Metrics.Transition(ActionSubmit, err) }()
	id := b.Provider.ID
	if id != "" {
		if err := e.Policy.RequireProviderOrAdmin(ctx, p, id); err != nil {
			return domain.ReviewEntry{}, err
		}
	}
	b = prepareBundle(id, b)
	res := validate.Bundle(b)
	if id != "" && id == e.defaultProviderID() {
		if res.Errors == nil {
			res.Errors = map[string]string{}
		}
		res.Errors["provider.id"] = "provider id is reserved for the default configuration"
	}
	if err := res.Err(); err != nil {
		return domain.ReviewEntry{}, err
	}

	expected := repo.NoVersion
	var previous domain.ReviewStatus
	cur, err := e.Repo.GetEntry(ctx, id)
	switch {
	case err == nil:
		expected = cur.Version
		previous = cur.Status
	case !errors.Is(err, repo.ErrNotFound):
		return domain.ReviewEntry{}, err
	}

	b.UpdatedAt = e.timestamp()
	entry = domain.ReviewEntry{
		ConfigBundle: b,
		Status:       domain.StatusPending,
		SubmittedAt:  b.UpdatedAt,
		SubmittedBy:  p.Email,
	}
	entry, err = e.Repo.PutEntry(ctx, entry, expected)
	if err != nil {
		return domain.ReviewEntry{}, err
	}
	e.appendEvent(ctx, events.ReviewSubmitted, "review", id, p, events.EventPayload{
		"previous_status": previous,
		"tasks":           len(b.Tasks),
	})
	e.log().Info("review submitted", zap.String("provider_id", id), zap.String("actor", p.Email))
	return entry, nil
}

// SubmitDraft submits the stored draft of providerID.
func (e Engine) SubmitDraft(ctx context.Context, p auth.Principal, providerID string) (domain.ReviewEntry, error) {
	if err := e.Policy.RequireProviderOrAdmin(ctx, p, providerID); err != nil {
		return domain.ReviewEntry{}, err
	}
	draft, _, err := e.Repo.GetDraft(ctx, providerID)
	if err != nil {
		return domain.ReviewEntry{}, err
	}
	draft.Provider.ID = providerID
	return e.Submit(ctx, p, draft)
}

// GetEntry returns the review entry for providerID to its partner or an admin.
func (e Engine) GetEntry(ctx context.Context, p auth.Principal, providerID string) (domain.ReviewEntry, error) {
	if err := e.Policy.RequireProviderOrAdmin(ctx, p, providerID); err != nil {
		return domain.ReviewEntry{}, err
	}
	return e.Repo.GetEntry(ctx, providerID)
}

func (e Engine) Approve(ctx context.Context, p auth.Principal, providerID string) (domain.ReviewEntry, error) {
	return e.adminTransition(ctx, p, providerID, ActionApprove, events.ReviewApproved, func(entry *domain.ReviewEntry, at string) {
		entry.Status = domain.StatusApproved
		entry.ApprovedAt = &at
		entry.ApprovedBy = &p.Email
		entry.DeclinedAt = nil
		entry.DeclinedBy = nil
	})
}

func (e Engine) Decline(ctx context.Context, p auth.Principal, providerID string) (domain.ReviewEntry, error) {
	return e.adminTransition(ctx, p, providerID, ActionDecline, events.ReviewDeclined, func(entry *domain.ReviewEntry, at string) {
		entry.Status = domain.StatusDeclined
		entry.DeclinedAt = &at
		entry.DeclinedBy = &p.Email
		entry.ApprovedAt = nil
		entry.ApprovedBy = nil
	})
}

// ReturnToPending reopens a declined entry. SubmittedAt is left as is.
func (e Engine) ReturnToPending(ctx context.Context, p auth.Principal, providerID string) (domain.ReviewEntry, error) {
	return e.adminTransition(ctx, p, providerID, ActionReopen, events.ReviewReopened, func(entry *domain.ReviewEntry, _ string) {
		entry.Status = domain.StatusPending
		entry.DeclinedAt = nil
		entry.DeclinedBy = nil
	})
}

func (e Engine) adminTransition(ctx context.Context, p auth.Principal, providerID, action, evtType string, apply func(*domain.ReviewEntry, string)) (entry domain.ReviewEntry, err error) {
	defer func() { e.Metrics.Transition(action, err) }()
	if err := e.Policy.RequireAdmin(p); err != nil {
		return domain.ReviewEntry{}, err
	}
	cur, err := e.Repo.GetEntry(ctx, providerID)
	if err != nil {
		return domain.ReviewEntry{}, err
	}
	if err := ensureReviewTransition(cur.Status, action); err != nil {
		return domain.ReviewEntry{}, err
	}
	from := cur.Status
	entry = cur
	apply(&entry, e.timestamp())
	entry, err = e.Repo.PutEntry(ctx, entry, cur.Version)
	if err != nil {
		return domain.ReviewEntry{}, err
	}
	e.appendEvent(ctx, evtType, "review", providerID, p, events.EventPayload{"from": from, "to": entry.Status})
	e.log().Info("review transition",
		zap.String("provider_id", providerID),
		zap.String("action", action),
		zap.String("from", string(from)),
		zap.String("to", string(entry.Status)),
		zap.String("actor", p.Email))
	return entry, nil
}

// Cancel deletes a pending or declined entry. Approved entries are live in
// the export and cannot be cancelled.
func (e Engine) Cancel(ctx context.Context, p auth.Principal, providerID string) (err error) {
	defer func() { e.Metrics.Transition(ActionCancel, err) }()
	if err := e.Policy.RequireProviderOrAdmin(ctx, p, providerID); err != nil {
		return err
	}
	cur, err := e.Repo.GetEntry(ctx, providerID)
	if err != nil {
		return err
	}
	if err := ensureReviewTransition(cur.Status, ActionCancel); err != nil {
		return err
	}
	if err := e.Repo.DeleteEntry(ctx, providerID, cur.Version); err != nil {
		return err
	}
	e.appendEvent(ctx, events.ReviewCancelled, "review", providerID, p, events.EventPayload{"from": cur.Status})
	e.log().Info("review cancelled", zap.String("provider_id", providerID), zap.String("actor", p.Email))
	return nil
}

// Queue returns the approval queue partitioned by status.
func (e Engine) Queue(ctx context.Context, p auth.Principal) (domain.ReviewQueue, error) {
	if err := e.Policy.RequireAdmin(p); err != nil {
		return domain.ReviewQueue{}, err
	}
	entries, err := e.Repo.ListEntries(ctx)
	if err != nil {
		return domain.ReviewQueue{}, err
	}
	return repo.Partition(entries), nil
}

// ReviewConfig returns the submitted bundle without review metadata.
func (e Engine) ReviewConfig(ctx context.Context, p auth.Principal, providerID string) (domain.ConfigBundle, error) {
	if err := e.Policy.RequireAdmin(p); err != nil {
		return domain.ConfigBundle{}, err
	}
	entry, err := e.Repo.GetEntry(ctx, providerID)
	if err != nil {
		return domain.ConfigBundle{}, err
	}
	return export.Clean(entry), nil
}
