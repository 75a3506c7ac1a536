package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskgate/internal/blob"
	"taskgate/internal/domain"
	"taskgate/internal/engine/auth"
	"taskgate/internal/events"
	"taskgate/internal/repo"
	"taskgate/internal/validate"
)

var (
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9]`)
	underRe    = regexp.MustCompile(`_+`)
)

func sanitizeName(name string) string {
	s := nonAlnumRe.ReplaceAllString(strings.ToLower(name), "_")
	s = strings.Trim(underRe.ReplaceAllString(s, "_"), "_")
	if len(s) > 30 {
		s = s[:30]
	}
	if s == "" {
		return "untitled"
	}
	return s
}

// NewTaskID builds {provider}_task_{n}_{suffix} for the n-th task.
func NewTaskID(providerID string, n int) string {
	if providerID == "" {
		providerID = "provider"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s_task_%d_%s", sanitizeName(providerID), n, suffix)
}

// prepareBundle normalizes b, pins every task to providerID and fills in
// missing task ids.
func prepareBundle(providerID string, b domain.ConfigBundle) domain.ConfigBundle {
	b.Provider.ID = providerID
	b.Tasks = append([]domain.Task{}, b.Tasks...)
	b.Normalize()
	for i := range b.Tasks {
		b.Tasks[i].ProviderID = providerID
		if strings.TrimSpace(b.Tasks[i].ID) == "" {
			b.Tasks[i].ID = NewTaskID(providerID, i+1)
		}
	}
	return b
}

// Draft is a stored draft with the version to send back on the next save.
type Draft struct {
	Bundle  domain.ConfigBundle `json:"bundle"`
	Version int64               `json:"version"`
}

func starterDraft(providerID string) domain.ConfigBundle {
	b := domain.ConfigBundle{Provider: domain.Provider{ID: providerID}}
	b.Normalize()
	return b
}

// GetDraft returns the partner's draft. A provider without a stored draft
// gets an empty starter bundle at version 0.
func (e Engine) GetDraft(ctx context.Context, p auth.Principal, providerID string) (Draft, error) {
	if err := e.Policy.RequireProviderOrAdmin(ctx, p, providerID); err != nil {
		return Draft{}, err
	}
	b, version, err := e.Repo.GetDraft(ctx, providerID)
	if errors.Is(err, repo.ErrNotFound) {
		return Draft{Bundle: starterDraft(providerID), Version: 0}, nil
	}
	if err != nil {
		return Draft{}, err
	}
	return Draft{Bundle: b, Version: version}, nil
}

// SaveDraft replaces the draft. expected is repo.AnyVersion for last writer
// wins, or the version last read to detect concurrent edits.
func (e Engine) SaveDraft(ctx context.Context, p auth.Principal, providerID string, b domain.ConfigBundle, expected int64) (Draft, error) {
	if err := e.Policy.RequireProviderOrAdmin(ctx, p, providerID); err != nil {
		return Draft{}, err
	}
	if providerID == e.defaultProviderID() {
		return Draft{}, &validate.Error{Fields: map[string]string{"provider.id": "provider id is reserved for the default configuration"}}
	}
	b = prepareBundle(providerID, b)
	b.UpdatedAt = e.timestamp()
	version, err := e.Repo.PutDraft(ctx, b, expected)
	if err != nil {
		return Draft{}, err
	}
	e.log().Debug("draft saved", zap.String("provider_id", providerID), zap.Int64("version", version))
	return Draft{Bundle: b, Version: version}, nil
}

func (e Engine) DeleteDraft(ctx context.Context, p auth.Principal, providerID string) error {
	if err := e.Policy.RequireProviderOrAdmin(ctx, p, providerID); err != nil {
		return err
	}
	if err := e.Repo.DeleteDraft(ctx, providerID); err != nil {
		return err
	}
	e.appendEvent(ctx, events.DraftDeleted, "draft", providerID, p, nil)
	return nil
}

// ValidateDraft runs the validator over the stored draft.
func (e Engine) ValidateDraft(ctx context.Context, p auth.Principal, providerID string) (validate.Result, error) {
	d, err := e.GetDraft(ctx, p, providerID)
	if err != nil {
		return validate.Result{}, err
	}
	return validate.Bundle(d.Bundle), nil
}

// ExportDraft returns the draft as a clean bundle, refusing invalid drafts.
func (e Engine) ExportDraft(ctx context.Context, p auth.Principal, providerID string) (domain.ConfigBundle, error) {
	d, err := e.GetDraft(ctx, p, providerID)
	if err != nil {
		return domain.ConfigBundle{}, err
	}
	if err := validate.Bundle(d.Bundle).Err(); err != nil {
		return domain.ConfigBundle{}, err
	}
	d.Bundle.UpdatedAt = ""
	return d.Bundle, nil
}

// Default config

// GetDefault returns the default bundle. A store without one yields an
// empty bundle for the configured default provider id.
func (e Engine) GetDefault(ctx context.Context, p auth.Principal) (domain.ConfigBundle, error) {
	if err := e.Policy.RequireAdmin(p); err != nil {
		return domain.ConfigBundle{}, err
	}
	b, err := e.Repo.GetDefault(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return starterDraft(e.defaultProviderID()), nil
	}
	return b, err
}

// SaveDefault replaces both halves of the default config.
func (e Engine) SaveDefault(ctx context.Context, p auth.Principal, b domain.ConfigBundle) (domain.ConfigBundle, error) {
	if err := e.Policy.RequireAdmin(p); err != nil {
		return domain.ConfigBundle{}, err
	}
	b = prepareBundle(e.defaultProviderID(), b)
	b.UpdatedAt = e.timestamp()
	if err := e.Repo.PutDefault(ctx, b); err != nil {
		return domain.ConfigBundle{}, err
	}
	e.appendEvent(ctx, events.DefaultSaved, "default_config", b.Provider.ID, p, events.EventPayload{"tasks": len(b.Tasks)})
	return b, nil
}

// Icons

func setIcon(prov *domain.Provider, slot blob.Slot, url string) {
	switch slot {
	case blob.SlotLight:
		prov.IconPathLight = url
	case blob.SlotDark:
		prov.IconPathDark = url
	case blob.SlotBgLight:
		prov.IconBackgroundImgLight = url
	case blob.SlotBgDark:
		prov.IconBackgroundImgDark = url
	}
}

// UploadIcon stores an icon and points the draft's matching field at it.
func (e Engine) UploadIcon(ctx context.Context, p auth.Principal, providerID string, slot blob.Slot, ext string, r io.Reader) (Draft, error) {
	if err := e.Policy.RequireProviderOrAdmin(ctx, p, providerID); err != nil {
		return Draft{}, err
	}
	if e.Blobs == nil {
		return Draft{}, errors.New("icon storage not configured")
	}
	url, err := e.Blobs.Put(ctx, providerID, slot, ext, r)
	if err != nil {
		return Draft{}, err
	}
	d, err := e.GetDraft(ctx, p, providerID)
	if err != nil {
		return Draft{}, err
	}
	setIcon(&d.Bundle.Provider, slot, url)
	return e.SaveDraft(ctx, p, providerID, d.Bundle, repo.AnyVersion)
}

// RemoveIcon deletes an icon and clears the draft's matching field.
func (e Engine) RemoveIcon(ctx context.Context, p auth.Principal, providerID string, slot blob.Slot) (Draft, error) {
	if err := e.Policy.RequireProviderOrAdmin(ctx, p, providerID); err != nil {
		return Draft{}, err
	}
	if !slot.Valid() {
		return Draft{}, fmt.Errorf("%w: slot %q", blob.ErrUnsupported, slot)
	}
	if e.Blobs != nil {
		if err := e.Blobs.Delete(ctx, providerID, slot); err != nil {
			return Draft{}, err
		}
	}
	d, err := e.GetDraft(ctx, p, providerID)
	if err != nil {
		return Draft{}, err
	}
	setIcon(&d.Bundle.Provider, slot, "")
	return e.SaveDraft(ctx, p, providerID, d.Bundle, repo.AnyVersion)
}
