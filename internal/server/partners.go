package server

import (
	"bytes"
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskgate/internal/blob"
	"taskgate/internal/domain"
	"taskgate/internal/engine"
	"taskgate/internal/engine/auth"
	"taskgate/internal/repo"
)

type ProviderPath struct {
	ProviderID string `path:"provider_id" pattern:"^[a-z0-9][a-z0-9_-]*$"`
}

type draftOutput struct {
	Status int
	ETag   string `header:"ETag"`
	Body   any
}

type IconPath struct {
	ProviderPath
	Slot string `path:"slot" enum:"light,dark,bg_light,bg_dark"`
}

func draftKey(providerID string) string { return "draft:" + providerID }

// flush writes any queued autosave for key so the caller reads its own writes.
func (h handlers) flush(ctx context.Context, key string) error {
	if h.queue == nil {
		return nil
	}
	return h.queue.Flush(ctx, key)
}

func registerDrafts(api huma.API, h handlers) {
	errs := []int{
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusConflict,
		http.StatusUnprocessableEntity,
		http.StatusServiceUnavailable,
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-draft",
		Method:      http.MethodGet,
		Path:        "/partners/{provider_id}/draft",
		Summary:     "Get the partner's working draft",
		Errors:      errs,
	}, func(ctx context.Context, input *ProviderPath) (*struct {
		ETag string       `header:"ETag"`
		Body engine.Draft `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.flushAuthorized(ctx, p, input.ProviderID); err != nil {
			return nil, handleError(ctx, err)
		}
		d, err := h.e.GetDraft(ctx, p, input.ProviderID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			ETag string       `header:"ETag"`
			Body engine.Draft `json:"body"`
		}{ETag: etag(d.Version), Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-draft",
		Method:      http.MethodPut,
		Path:        "/partners/{provider_id}/draft",
		Summary:     "Replace the partner's draft",
		Description: "With autosave=true the write is debounced and 202 is returned; the last body queued within the delay wins.",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		ProviderPath
		Autosave bool          `query:"autosave"`
		IfMatch  string        `header:"If-Match"`
		Body     BundleRequest `json:"body"`
	}) (*draftOutput, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.Policy.RequireProviderOrAdmin(ctx, p, input.ProviderID); err != nil {
			return nil, handleError(ctx, err)
		}
		b := input.Body.bundle()
		key := draftKey(input.ProviderID)
		if input.Autosave && h.queue != nil {
			err := h.queue.Schedule(key, func(wctx context.Context) error {
				_, err := h.e.SaveDraft(wctx, p, input.ProviderID, b, repo.AnyVersion)
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
		expected, err := parseIfMatch(input.IfMatch)
		if err != nil {
			return nil, err
		}
		if h.queue != nil {
			h.queue.Cancel(key)
		}
		d, err := h.e.SaveDraft(ctx, p, input.ProviderID, b, expected)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &draftOutput{Status: http.StatusOK, ETag: etag(d.Version), Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-draft",
		Method:        http.MethodDelete,
		Path:          "/partners/{provider_id}/draft",
		Summary:       "Delete the partner's draft",
		DefaultStatus: http.StatusNoContent,
		Errors:        errs,
	}, func(ctx context.Context, input *ProviderPath) (*struct{}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.Policy.RequireProviderOrAdmin(ctx, p, input.ProviderID); err != nil {
			return nil, handleError(ctx, err)
		}
		if h.queue != nil {
			h.queue.Cancel(draftKey(input.ProviderID))
		}
		if err := h.e.DeleteDraft(ctx, p, input.ProviderID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-draft",
		Method:      http.MethodPost,
		Path:        "/partners/{provider_id}/draft/validate",
		Summary:     "Validate the stored draft",
		Errors:      errs,
	}, func(ctx context.Context, input *ProviderPath) (*struct {
		Body ValidationResponse `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.flushAuthorized(ctx, p, input.ProviderID); err != nil {
			return nil, handleError(ctx, err)
		}
		res, err := h.e.ValidateDraft(ctx, p, input.ProviderID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body ValidationResponse `json:"body"`
		}{Body: ValidationResponse{Valid: res.Valid(), Errors: nonNilMap(res.Errors)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-draft",
		Method:      http.MethodGet,
		Path:        "/partners/{provider_id}/draft/export",
		Summary:     "Export the draft as a clean bundle",
		Errors:      errs,
	}, func(ctx context.Context, input *ProviderPath) (*struct {
		Body domain.ConfigBundle `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.flushAuthorized(ctx, p, input.ProviderID); err != nil {
			return nil, handleError(ctx, err)
		}
		b, err := h.e.ExportDraft(ctx, p, input.ProviderID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.ConfigBundle `json:"body"`
		}{Body: b}, nil
	})
}

// flushAuthorized flushes the provider's queued draft after an access check,
// so one caller cannot force another partner's pending write.
func (h handlers) flushAuthorized(ctx context.Context, p auth.Principal, providerID string) error {
	if err := h.e.Policy.RequireProviderOrAdmin(ctx, p, providerID); err != nil {
		return err
	}
	return h.flush(ctx, draftKey(providerID))
}

func registerIcons(api huma.API, h handlers) {
	errs := []int{
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusServiceUnavailable,
	}

	huma.Register(api, huma.Operation{
		OperationID:  "upload-icon",
		Method:       http.MethodPut,
		Path:         "/partners/{provider_id}/icons/{slot}",
		Summary:      "Upload an icon image",
		Description:  "The body is the raw image. Content-Type selects the stored extension.",
		MaxBodyBytes: blob.MaxSize,
		Errors:       errs,
	}, func(ctx context.Context, input *struct {
		IconPath
		ContentType string `header:"Content-Type"`
		RawBody     []byte
	}) (*struct {
		Body engine.Draft `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ext, err := blob.ExtForContentType(input.ContentType)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if len(input.RawBody) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "image body required", nil)
		}
		if err := h.flushAuthorized(ctx, p, input.ProviderID); err != nil {
			return nil, handleError(ctx, err)
		}
		d, err := h.e.UploadIcon(ctx, p, input.ProviderID, blob.Slot(input.Slot), ext, bytes.NewReader(input.RawBody))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body engine.Draft `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-icon",
		Method:      http.MethodDelete,
		Path:        "/partners/{provider_id}/icons/{slot}",
		Summary:     "Remove an icon image",
		Errors:      errs,
	}, func(ctx context.Context, input *IconPath) (*struct {
		Body engine.Draft `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.flushAuthorized(ctx, p, input.ProviderID); err != nil {
			return nil, handleError(ctx, err)
		}
		d, err := h.e.RemoveIcon(ctx, p, input.ProviderID, blob.Slot(input.Slot))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body engine.Draft `json:"body"`
		}{Body: d}, nil
	})
}

func registerSubmissions(api huma.API, h handlers) {
	errs := []int{
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusUnprocessableEntity,
		http.StatusServiceUnavailable,
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-submission",
		Method:      http.MethodGet,
		Path:        "/partners/{provider_id}/submission",
		Summary:     "Review status of the partner's submission",
		Errors:      errs,
	}, func(ctx context.Context, input *ProviderPath) (*struct {
		Body domain.ReviewEntry `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := h.e.GetEntry(ctx, p, input.ProviderID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.ReviewEntry `json:"body"`
		}{Body: entry}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit",
		Method:      http.MethodPost,
		Path:        "/partners/{provider_id}/submission",
		Summary:     "Submit a bundle for review",
		Description: "Without a body the stored draft is submitted. Any existing entry for the provider is replaced by a fresh pending one.",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		ProviderPath
		Body *BundleRequest `json:"body,omitempty"`
	}) (*struct {
		Body domain.ReviewEntry `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var (
			entry domain.ReviewEntry
			err   error
		)
		if input.Body == nil {
			if err := h.flushAuthorized(ctx, p, input.ProviderID); err != nil {
				return nil, handleError(ctx, err)
			}
			entry, err = h.e.SubmitDraft(ctx, p, input.ProviderID)
		} else {
			b := input.Body.bundle()
			if b.Provider.ID != "" && b.Provider.ID != input.ProviderID {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "provider.id does not match the path",
					map[string]any{"provider_id": b.Provider.ID})
			}
			b.Provider.ID = input.ProviderID
			entry, err = h.e.Submit(ctx, p, b)
		}
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.ReviewEntry `json:"body"`
		}{Body: entry}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "cancel-submission",
		Method:        http.MethodDelete,
		Path:          "/partners/{provider_id}/submission",
		Summary:       "Withdraw a pending or declined submission",
		DefaultStatus: http.StatusNoContent,
		Errors:        errs,
	}, func(ctx context.Context, input *ProviderPath) (*struct{}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.Cancel(ctx, p, input.ProviderID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}
