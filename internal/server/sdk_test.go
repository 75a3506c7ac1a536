package server

import (
	"context"
	"errors"
	"net/http"
	"testing"

	taskgatesdk "taskgate/sdk/go"
)

func TestSDKDeclineReopenApprove(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()

	partner := taskgatesdk.New(srv.URL)
	if _, err := partner.DevLogin(ctx, partnerEmail); err != nil {
		t.Fatalf("partner login: %v", err)
	}
	admin := taskgatesdk.New(srv.URL)
	if _, err := admin.DevLogin(ctx, adminEmail); err != nil {
		t.Fatalf("admin login: %v", err)
	}

	bundle := taskgatesdk.Bundle{
		Provider: taskgatesdk.Provider{Name: "Anki", Domain: "anki.example", PackageNameIOS: "com.anki.ios", IconPathLight: "https://cdn.example/a.png"},
		Tasks: []taskgatesdk.Task{{
			DisplayName: "Review 5 cards",
			Description: "Review five spaced-repetition flashcards",
			Platforms:   []string{"ios"},
		}},
	}
	d, err := partner.SaveDraft(ctx, "anki", bundle, 0)
	if err != nil {
		t.Fatalf("save draft: %v", err)
	}
	if d.Bundle.Tasks[0].ID == "" || d.Bundle.Provider.ID != "anki" {
		t.Fatalf("draft not prepared: %+v", d.Bundle)
	}
	if _, err := partner.Submit(ctx, "anki", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}

	declined, err := admin.Decline(ctx, "anki")
	if err != nil || declined.Status != "declined" || declined.DeclinedBy == nil {
		t.Fatalf("decline: %v %+v", err, declined)
	}
	if _, err := partner.Approve(ctx, "anki"); !isStatus(err, http.StatusForbidden) {
		t.Fatalf("partner approve should be forbidden, got %v", err)
	}
	reopened, err := admin.Reopen(ctx, "anki")
	if err != nil || reopened.Status != "pending" || reopened.DeclinedAt != nil {
		t.Fatalf("reopen: %v %+v", err, reopened)
	}
	approved, err := admin.Approve(ctx, "anki")
	if err != nil || approved.Status != "approved" || approved.DeclinedAt != nil {
		t.Fatalf("approve: %v %+v", err, approved)
	}

	status, err := partner.Submission(ctx, "anki")
	if err != nil || status.Status != "approved" {
		t.Fatalf("submission status: %v %+v", err, status)
	}
	q, err := admin.Reviews(ctx)
	if err != nil || len(q.Approved) != 1 || len(q.Pending) != 0 {
		t.Fatalf("queue: %v %+v", err, q)
	}
	evts, err := admin.Events(ctx, "review", "anki", 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	want := []string{"review.approved", "review.reopened", "review.declined", "review.submitted"}
	if len(evts) != len(want) {
		t.Fatalf("unexpected events %+v", evts)
	}
	for i, typ := range want {
		if evts[i].Type != typ {
			t.Fatalf("event %d: got %s want %s", i, evts[i].Type, typ)
		}
	}
}

func isStatus(err error, status int) bool {
	var apiErr *taskgatesdk.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
