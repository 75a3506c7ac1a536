package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskgate/internal/domain"
	"taskgate/internal/engine/auth"
	"taskgate/internal/events"
	"taskgate/internal/export"
	"taskgate/internal/repo"
	"taskgate/internal/validate"
)

// Export compiles the artifact from a fresh read of the default config and
// every approved entry. A missing default config contributes nothing.
func (e Engine) Export(ctx context.Context, p auth.Principal) (domain.ExportArtifact, error) {
	if err := e.Policy.RequireAdmin(p); err != nil {
		return domain.ExportArtifact{}, err
	}
	def, err := e.Repo.GetDefault(ctx)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.ExportArtifact{}, err
	}
	entries, err := e.Repo.ListEntries(ctx)
	if err != nil {
		return domain.ExportArtifact{}, err
	}
	art := export.Compile(def, export.Approved(entries), e.now())
	e.Metrics.Export(art.TotalProviders, art.TotalTasks)
	e.log().Info("export compiled",
		zap.Int("providers", art.TotalProviders),
		zap.Int("tasks", art.TotalTasks),
		zap.String("actor", p.Email))
	return art, nil
}

// LinkPartner maps email to the provider it may edit.
func (e Engine) LinkPartner(ctx context.Context, p auth.Principal, email, providerID string) (domain.PartnerAccount, error) {
	if err := e.Policy.RequireAdmin(p); err != nil {
		return domain.PartnerAccount{}, err
	}
	errs := map[string]string{}
	switch email = strings.TrimSpace(email); {
	case email == "":
		errs["email"] = "email is required"
	case !strings.Contains(email, "@"):
		errs["email"] = "email must be a valid address"
	}
	if msg := validate.ProviderID(providerID); msg != "" {
		errs["provider_id"] = msg
	} else if providerID == e.defaultProviderID() {
		errs["provider_id"] = fmt.Sprintf("provider %s is reserved for the default configuration", providerID)
	}
	res := validate.Result{Errors: errs}
	if err := res.Err(); err != nil {
		return domain.PartnerAccount{}, err
	}
	acct := domain.PartnerAccount{
		Email:      strings.ToLower(strings.TrimSpace(email)),
		ProviderID: providerID,
		CreatedAt:  e.timestamp(),
	}
	if err := e.Repo.PutPartnerAccount(ctx, acct); err != nil {
		return domain.PartnerAccount{}, err
	}
	e.appendEvent(ctx, events.PartnerLinked, "partner_account", acct.Email, p, events.EventPayload{"provider_id": providerID})
	return acct, nil
}

func (e Engine) ListPartners(ctx context.Context, p auth.Principal) ([]domain.PartnerAccount, error) {
	if err := e.Policy.RequireAdmin(p); err != nil {
		return nil, err
	}
	return e.Repo.ListPartnerAccounts(ctx)
}

// UnlinkPartner removes the stored link for email. Links from taskgate.yml
// are not affected.
func (e Engine) UnlinkPartner(ctx context.Context, p auth.Principal, email string) error {
	if err := e.Policy.RequireAdmin(p); err != nil {
		return err
	}
	acct, err := e.Repo.GetPartnerAccount(ctx, email)
	if err != nil {
		return err
	}
	if err := e.Repo.DeletePartnerAccount(ctx, acct.Email); err != nil {
		return err
	}
	e.appendEvent(ctx, events.PartnerUnlinked, "partner_account", acct.Email, p, events.EventPayload{"provider_id": acct.ProviderID})
	return nil
}

// CreateAPIKey mints a key for email. The plain key is returned once; only
// its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, p auth.Principal, email, name string) (string, domain.APIKey, error) {
	if err := e.Policy.RequireAdmin(p); err != nil {
		return "", domain.APIKey{}, err
	}
	if strings.TrimSpace(email) == "" {
		email = p.Email
	}
	plain := "tg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
		return "", domain.APIKey{}, err
	}
	key.Email = strings.ToLower(strings.TrimSpace(key.Email))
	e.appendEvent(ctx, events.APIKeyCreated, "api_key", key.ID, p, events.EventPayload{"email": key.Email})
	return plain, key, nil
}

// AuditLog returns the audit log newest first.
func (e Engine) AuditLog(ctx context.Context, p auth.Principal, f repo.EventFilter) ([]domain.Event, error) {
	if err := e.Policy.RequireAdmin(p); err != nil {
		return nil, err
	}
	return e.Repo.ListEvents(ctx, f)
}

// ListAPIKeys returns key metadata, newest first. Hashes are not exposed.
func (e Engine) ListAPIKeys(ctx context.Context, p auth.Principal, email string) ([]domain.APIKey, error) {
	if err := e.Policy.RequireAdmin(p); err != nil {
		return nil, err
	}
	keys, err := e.Repo.ListAPIKeys(ctx, email)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].KeyHash = ""
	}
	return keys, nil
}

func (e Engine) RevokeAPIKey(ctx context.Context, p auth.Principal, id string) error {
	if err := e.Policy.RequireAdmin(p); err != nil {
		return err
	}
	if err := e.Repo.DeleteAPIKey(ctx, id); err != nil {
		return err
	}
	e.appendEvent(ctx, events.APIKeyRevoked, "api_key", id, p, nil)
	return nil
}
