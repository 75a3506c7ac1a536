package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"taskgate/internal/blob"
	"taskgate/internal/config"
	"taskgate/internal/domain"
	"taskgate/internal/engine/auth"
	"taskgate/internal/events"
	"taskgate/internal/metrics"
	"taskgate/internal/repo"
)

// Engine runs the partner configuration workflow. Every operation takes the
// acting principal explicitly and checks authorization before any write.
type Engine struct {
	Repo    repo.Repo
	Events  events.Writer
	Policy  auth.Policy
	Config  *config.Config
	Blobs   blob.Store
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func New(store repo.Store, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{Store: store}
	return Engine{
		Repo:   r,
		Events: events.Writer{Sink: store},
		Policy: auth.NewPolicy(cfg.AdminEmails(), cfg.PartnerMap(), r),
		Config: cfg,
		Log:    zap.NewNop(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

func (e Engine) defaultProviderID() string {
	if e.Config == nil || e.Config.DefaultProvider.ID == "" {
		return "taskgate"
	}
	return e.Config.DefaultProvider.ID
}

// appendEvent records an audit event. The document write it describes has
// already happened, so a failure is logged rather than returned.
func (e Engine) appendEvent(ctx context.Context, evtType, kind, id string, p auth.Principal, payload events.EventPayload) {
	if e.Events.Sink == nil {
		return
	}
	if e.Events.Now == nil {
		e.Events.Now = e.Now
	}
	if err := e.Events.Append(ctx, evtType, kind, id, p.Email, payload); err != nil {
		e.log().Error("audit event not recorded",
			zap.String("type", evtType), zap.String("entity_id", id), zap.Error(err))
	}
}

// TransitionError is returned when an action is not allowed from the
// entry's current status.
type TransitionError struct {
	From   domain.ReviewStatus
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a review that is %s", e.Action, e.From)
}

// Whoami describes what a principal may do.
type Whoami struct {
	Email      string `json:"email"`
	IsAdmin    bool   `json:"is_admin"`
	ProviderID string `json:"provider_id,omitempty"`
}

func (e Engine) Whoami(ctx context.Context, p auth.Principal) (Whoami, error) {
	id, err := e.Policy.ProviderFor(ctx, p)
	if err != nil {
		return Whoami{}, err
	}
	return Whoami{Email: p.Email, IsAdmin: e.Policy.IsAdmin(p), ProviderID: id}, nil
}
