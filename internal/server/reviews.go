package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskgate/internal/domain"
	"taskgate/internal/engine/auth"
	"taskgate/internal/export"
	"taskgate/internal/repo"
)

const defaultConfigKey = "default-config"

type entryOutput struct {
	Body domain.ReviewEntry `json:"body"`
}

func registerReviews(api huma.API, h handlers) {
	errs := []int{
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusServiceUnavailable,
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-reviews",
		Method:      http.MethodGet,
		Path:        "/reviews",
		Summary:     "Approval queue partitioned by status",
		Errors:      errs,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.ReviewQueue `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		q, err := h.e.Queue(ctx, p)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.ReviewQueue `json:"body"`
		}{Body: q}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-review",
		Method:      http.MethodGet,
		Path:        "/reviews/{provider_id}",
		Summary:     "Review entry",
		Errors:      errs,
	}, func(ctx context.Context, input *ProviderPath) (*entryOutput, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.Policy.RequireAdmin(p); err != nil {
			return nil, handleError(ctx, err)
		}
		entry, err := h.e.GetEntry(ctx, p, input.ProviderID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &entryOutput{Body: entry}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "cancel-review",
		Method:        http.MethodDelete,
		Path:          "/reviews/{provider_id}",
		Summary:       "Delete a pending or declined entry",
		DefaultStatus: http.StatusNoContent,
		Errors:        errs,
	}, func(ctx context.Context, input *ProviderPath) (*struct{}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.Policy.RequireAdmin(p); err != nil {
			return nil, handleError(ctx, err)
		}
		if err := h.e.Cancel(ctx, p, input.ProviderID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	transitions := []struct {
		id, path, summary string
		run               func(context.Context, auth.Principal, string) (domain.ReviewEntry, error)
	}{
		{"approve-review", "/reviews/{provider_id}/approve", "Approve a pending or declined entry", h.e.Approve},
		{"decline-review", "/reviews/{provider_id}/decline", "Decline a pending entry", h.e.Decline},
		{"reopen-review", "/reviews/{provider_id}/reopen", "Return a declined entry to pending", h.e.ReturnToPending},
	}
	for _, tr := range transitions {
		run := tr.run
		huma.Register(api, huma.Operation{
			OperationID: tr.id,
			Method:      http.MethodPost,
			Path:        tr.path,
			Summary:     tr.summary,
			Errors:      errs,
		}, func(ctx context.Context, input *ProviderPath) (*entryOutput, error) {
			p, authErr := principalFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			entry, err := run(ctx, p, input.ProviderID)
			if err != nil {
				return nil, handleError(ctx, err)
			}
			return &entryOutput{Body: entry}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-review-config",
		Method:      http.MethodGet,
		Path:        "/reviews/{provider_id}/config",
		Summary:     "Submitted bundle without review metadata",
		Errors:      errs,
	}, func(ctx context.Context, input *ProviderPath) (*struct {
		Body domain.ConfigBundle `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := h.e.ReviewConfig(ctx, p, input.ProviderID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.ConfigBundle `json:"body"`
		}{Body: b}, nil
	})
}

func registerDefaultConfig(api huma.API, h handlers) {
	errs := []int{
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusServiceUnavailable,
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-default-config",
		Method:      http.MethodGet,
		Path:        "/default-config",
		Summary:     "First-party default provider and tasks",
		Errors:      errs,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.ConfigBundle `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.Policy.RequireAdmin(p); err != nil {
			return nil, handleError(ctx, err)
		}
		if err := h.flush(ctx, defaultConfigKey); err != nil {
			return nil, handleError(ctx, err)
		}
		b, err := h.e.GetDefault(ctx, p)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.ConfigBundle `json:"body"`
		}{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-default-config",
		Method:      http.MethodPut,
		Path:        "/default-config",
		Summary:     "Replace the default configuration",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		Autosave bool          `query:"autosave"`
		Body     BundleRequest `json:"body"`
	}) (*draftOutput, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.Policy.RequireAdmin(p); err != nil {
			return nil, handleError(ctx, err)
		}
		b := input.Body.bundle()
		if input.Autosave && h.queue != nil {
			err := h.queue.Schedule(defaultConfigKey, func(wctx context.Context) error {
				_, err := h.e.SaveDefault(wctx, p, b)
				return err
			})
			if err != nil {
				return nil, handleError(ctx, err)
			}
			return &draftOutput{
				Status: http.StatusAccepted,
				Body:   AutosaveResponse{Queued: true, DelayMS: h.queue.Delay().Milliseconds()},
			}, nil
		}
		if h.queue != nil {
			h.queue.Cancel(defaultConfigKey)
		}
		saved, err := h.e.SaveDefault(ctx, p, b)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &draftOutput{Status: http.StatusOK, Body: saved}, nil
	})
}

func registerExport(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "export",
		Method:      http.MethodGet,
		Path:        "/export",
		Summary:     "Compile the production configuration",
		Description: "The artifact merges the default configuration with every approved entry. download=true adds a Content-Disposition attachment header.",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Download bool `query:"download"`
	}) (*struct {
		ContentDisposition string                `header:"Content-Disposition"`
		Body               domain.ExportArtifact `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.Policy.RequireAdmin(p); err != nil {
			return nil, handleError(ctx, err)
		}
		if err := h.flush(ctx, defaultConfigKey); err != nil {
			return nil, handleError(ctx, err)
		}
		art, err := h.e.Export(ctx, p)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		out := &struct {
			ContentDisposition string                `header:"Content-Disposition"`
			Body               domain.ExportArtifact `json:"body"`
		}{Body: art}
		if input.Download {
			out.ContentDisposition = fmt.Sprintf(`attachment; filename="%s"`, export.FileName(h.e.Now()))
		}
		return out, nil
	})
}

func registerAdmin(api huma.API, h handlers) {
	errs := []int{
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusServiceUnavailable,
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit log, newest first",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		EntityKind string `query:"entity_kind" enum:"review,draft,default_config,partner_account,api_key"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		evts, err := h.e.AuditLog(ctx, p, repo.EventFilter{
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if evts == nil {
			evts = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: evts}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-partner-accounts",
		Method:      http.MethodGet,
		Path:        "/partner-accounts",
		Summary:     "Partner accounts linked in the store",
		Errors:      errs,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.PartnerAccount `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		accts, err := h.e.ListPartners(ctx, p)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if accts == nil {
			accts = []domain.PartnerAccount{}
		}
		return &struct {
			Body []domain.PartnerAccount `json:"body"`
		}{Body: accts}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "link-partner-account",
		Method:      http.MethodPost,
		Path:        "/partner-accounts",
		Summary:     "Link an email to the provider it may edit",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		Body LinkPartnerRequest `json:"body"`
	}) (*struct {
		Body domain.PartnerAccount `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		acct, err := h.e.LinkPartner(ctx, p, input.Body.Email, input.Body.ProviderID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.PartnerAccount `json:"body"`
		}{Body: acct}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "unlink-partner-account",
		Method:        http.MethodDelete,
		Path:          "/partner-accounts/{email}",
		Summary:       "Remove a stored partner link",
		DefaultStatus: http.StatusNoContent,
		Errors:        append(errs, http.StatusNotFound),
	}, func(ctx context.Context, input *struct {
		Email string `path:"email"`
	}) (*struct{}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.UnlinkPartner(ctx, p, input.Email); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "API key metadata, newest first",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		Email string `query:"email"`
	}) (*struct {
		Body []domain.APIKey `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := h.e.ListAPIKeys(ctx, p, input.Email)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if keys == nil {
			keys = []domain.APIKey{}
		}
		return &struct {
			Body []domain.APIKey `json:"body"`
		}{Body: keys}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{id}",
		Summary:       "Revoke an API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        append(errs, http.StatusNotFound),
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.RevokeAPIKey(ctx, p, input.ID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-api-key",
		Method:      http.MethodPost,
		Path:        "/api-keys",
		Summary:     "Mint an API key",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		plain, key, err := h.e.CreateAPIKey(ctx, p, input.Body.Email, input.Body.Name)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{
			ID:        key.ID,
			Email:     key.Email,
			Name:      key.Name,
			Key:       plain,
			CreatedAt: key.CreatedAt,
		}}, nil
	})
}
