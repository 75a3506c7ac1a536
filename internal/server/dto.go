package server

import (
	"taskgate/internal/domain"
	"taskgate/internal/engine"
)

// Request payloads. Every field is optional at the schema level so partial
// drafts reach the validator, which reports per-field errors.

type ProviderRequest struct {
	ID                       string `json:"id,omitempty"`
	Name                     string `json:"name,omitempty"`
	Domain                   string `json:"domain,omitempty"`
	PackageNameAndroid       string `json:"package_name_android,omitempty"`
	PackageNameIOS           string `json:"package_name_ios,omitempty"`
	AppStoreID               string `json:"app_store_id,omitempty"`
	URLScheme                string `json:"url_scheme,omitempty"`
	IconPathLight            string `json:"icon_path_light,omitempty"`
	IconPathDark             string `json:"icon_path_dark,omitempty"`
	IconBackgroundColorLight string `json:"icon_background_color_light,omitempty"`
	IconBackgroundColorDark  string `json:"icon_background_color_dark,omitempty"`
	IconBackgroundImgLight   string `json:"icon_background_img_light,omitempty"`
	IconBackgroundImgDark    string `json:"icon_background_img_dark,omitempty"`
}

type TaskRequest struct {
	ID          string   `json:"id,omitempty"`
	ProviderID  string   `json:"provider_id,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type,omitempty"`
	Difficulty  string   `json:"difficulty,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Platforms   []string `json:"platforms,omitempty"`
	// Platform is the legacy single-value form of Platforms.
	Platform string `json:"platform,omitempty" doc:"Deprecated: use platforms"`
}

type BundleRequest struct {
	Provider  ProviderRequest `json:"provider,omitempty"`
	Tasks     []TaskRequest   `json:"tasks,omitempty"`
	UpdatedAt string          `json:"updated_at,omitempty"`
}

type DevLoginRequest struct {
	Email string `json:"email" minLength:"3"`
}

type LinkPartnerRequest struct {
	Email      string `json:"email" minLength:"3"`
	ProviderID string `json:"provider_id" minLength:"1"`
}

type CreateAPIKeyRequest struct {
	Email string `json:"email,omitempty" doc:"Defaults to the caller"`
	Name  string `json:"name,omitempty"`
}

// Responses

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type AutosaveResponse struct {
	Queued  bool  `json:"queued"`
	DelayMS int64 `json:"delay_ms"`
}

type ValidationResponse struct {
	Valid  bool              `json:"valid"`
	Errors map[string]string `json:"errors"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key" doc:"Shown once"`
	CreatedAt string `json:"created_at"`
}

type WhoAmIResponse = engine.Whoami

func (r BundleRequest) bundle() domain.ConfigBundle {
	p := r.Provider
	b := domain.ConfigBundle{
		Provider: domain.Provider{
			ID:                       p.ID,
			Name:                     p.Name,
			Domain:                   p.Domain,
			PackageNameAndroid:       p.PackageNameAndroid,
			PackageNameIOS:           p.PackageNameIOS,
			AppStoreID:               p.AppStoreID,
			URLScheme:                p.URLScheme,
			IconPathLight:            p.IconPathLight,
			IconPathDark:             p.IconPathDark,
			IconBackgroundColorLight: p.IconBackgroundColorLight,
			IconBackgroundColorDark:  p.IconBackgroundColorDark,
			IconBackgroundImgLight:   p.IconBackgroundImgLight,
			IconBackgroundImgDark:    p.IconBackgroundImgDark,
		},
		Tasks:     make([]domain.Task, 0, len(r.Tasks)),
		UpdatedAt: r.UpdatedAt,
	}
	for _, t := range r.Tasks {
		b.Tasks = append(b.Tasks, t.task())
	}
	return b
}

func (t TaskRequest) task() domain.Task {
	out := domain.Task{
		ID:          t.ID,
		ProviderID:  t.ProviderID,
		DisplayName: t.DisplayName,
		Description: t.Description,
		Type:        domain.TaskType(t.Type),
		Difficulty:  domain.Difficulty(t.Difficulty),
		Tags:        t.Tags,
	}
	for _, p := range t.Platforms {
		out.Platforms = append(out.Platforms, domain.Platform(p))
	}
	if len(out.Platforms) == 0 && t.Platform != "" {
		out.Platforms = domain.LegacyPlatforms(t.Platform)
	}
	return out
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
