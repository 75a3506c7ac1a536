package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"taskgate/internal/domain"
)

// Event types written by the workflow.
const (
	ReviewSubmitted = "review.submitted"
	ReviewApproved  = "review.approved"
	ReviewDeclined  = "review.declined"
	ReviewReopened  = "review.reopened"
	ReviewCancelled = "review.cancelled"
	DraftDeleted    = "draft.deleted"
	DefaultSaved    = "default.saved"
	PartnerLinked   = "partner.linked"
	PartnerUnlinked = "partner.unlinked"
	APIKeyCreated   = "api_key.created"
	APIKeyRevoked   = "api_key.revoked"
)

// Sink persists audit events.
type Sink interface {
	AppendEvent(ctx context.Context, evt domain.Event) error
}

type Writer struct {
	Sink Sink
	Now  func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	return w.Sink.AppendEvent(ctx, domain.Event{
		TS:         w.Now().UTC().Format(time.RFC3339),
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    string(data),
	})
}
