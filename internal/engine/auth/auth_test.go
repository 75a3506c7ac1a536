package auth

import (
	"context"
	"errors"
	"testing"

	"taskgate/internal/domain"
	"taskgate/internal/repo"
)

type fakeDirectory map[string]string

func (f fakeDirectory) GetPartnerAccount(_ context.Context, email string) (domain.PartnerAccount, error) {
	if email == "broken@example.com" {
		return domain.PartnerAccount{}, &repo.StoreError{Op: "get", Err: errors.New("offline")}
	}
	id, ok := f[email]
	if !ok {
		return domain.PartnerAccount{}, repo.ErrNotFound
	}
	return domain.PartnerAccount{Email: email, ProviderID: id}, nil
}

func TestParseEmailList(t *testing.T) {
	got := ParseEmailList(" a@x.com, ,B@y.com,")
	if len(got) != 2 || got[0] != "a@x.com" || got[1] != "B@y.com" {
		t.Fatalf("unexpected list %v", got)
	}
}

func TestPolicyAdmin(t *testing.T) {
	p := NewPolicy([]string{"Admin@TaskGate.app"}, nil, nil)
	if !p.IsAdmin(Principal{Email: " admin@taskgate.APP"}) {
		t.Fatalf("admin match should ignore case and space")
	}
	if p.IsAdmin(Principal{}) {
		t.Fatalf("anonymous is never admin")
	}
	err := p.RequireAdmin(Principal{Email: "dev@anki.example"})
	var forbidden ForbiddenError
	if !errors.As(err, &forbidden) || forbidden.Permission != PermissionAdmin {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestPolicyProviderMapping(t *testing.T) {
	ctx := context.Background()
	p := NewPolicy(
		[]string{"admin@taskgate.app"},
		map[string]string{"Static@Loa.example": "loa"},
		fakeDirectory{"dev@anki.example": "anki"},
	)
	cases := []struct {
		email    string
		provider string
		want     bool
	}{
		{"static@loa.example", "loa", true},
		{"dev@anki.example", "anki", true},
		{"dev@anki.example", "loa", false},
		{"stranger@example.com", "anki", false},
		{"admin@taskgate.app", "anki", false},
		{"", "anki", false},
	}
	for _, tc := range cases {
		got, err := p.CanActAsProvider(ctx, Principal{Email: tc.email}, tc.provider)
		if err != nil {
			t.Fatalf("%s: %v", tc.email, err)
		}
		if got != tc.want {
			t.Fatalf("%s as %s: got %v want %v", tc.email, tc.provider, got, tc.want)
		}
	}
	if err := p.RequireProviderOrAdmin(ctx, Principal{Email: "admin@taskgate.app"}, "anki"); err != nil {
		t.Fatalf("admin should pass: %v", err)
	}
	err := p.RequireProviderOrAdmin(ctx, Principal{Email: "dev@anki.example"}, "loa")
	var forbidden ForbiddenError
	if !errors.As(err, &forbidden) || forbidden.Permission != "provider:loa" {
		t.Fatalf("expected forbidden, got %v", err)
	}
	_, err = p.CanActAsProvider(ctx, Principal{Email: "broken@example.com"}, "anki")
	var se *repo.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("store failure should propagate, got %v", err)
	}
}
