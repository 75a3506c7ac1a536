package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskgate/internal/domain"
	"taskgate/internal/repo"
)

const PermissionAdmin = "admin"

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

func providerPermission(id string) string { return "provider:" + id }

// Principal is an authenticated identity. Source records how it was
// established (jwt, api_key, cli).
type Principal struct {
	Email  string `json:"email"`
	Source string `json:"source,omitempty"`
}

func (p Principal) Anonymous() bool { return strings.TrimSpace(p.Email) == "" }

// PartnerDirectory resolves the provider a partner email may edit.
type PartnerDirectory interface {
	GetPartnerAccount(ctx context.Context, email string) (domain.PartnerAccount, error)
}

// Policy answers the two authorization questions of the workflow: is this
// principal an admin, and may it act as provider X.
type Policy struct {
	admins    map[string]bool
	partners  map[string]string
	Directory PartnerDirectory
}

// NewPolicy builds a policy from an admin allow-list and a static
// email to provider mapping. Emails compare case-insensitively.
func NewPolicy(admins []string, partners map[string]string, dir PartnerDirectory) Policy {
	p := Policy{admins: map[string]bool{}, partners: map[string]string{}, Directory: dir}
	for _, a := range admins {
		if a = normalize(a); a != "" {
			p.admins[a] = true
		}
	}
	for email, id := range partners {
		if email = normalize(email); email != "" && id != "" {
			p.partners[email] = id
		}
	}
	return p
}

// ParseEmailList splits a comma-separated allow-list.
func ParseEmailList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalize(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func (p Policy) IsAdmin(pr Principal) bool {
	return !pr.Anonymous() && p.admins[normalize(pr.Email)]
}

// ProviderFor returns the provider id linked to pr, or "" when none is.
func (p Policy) ProviderFor(ctx context.Context, pr Principal) (string, error) {
	if pr.Anonymous() {
		return "", nil
	}
	email := normalize(pr.Email)
	if id, ok := p.partners[email]; ok {
		return id, nil
	}
	if p.Directory == nil {
		return "", nil
	}
	acct, err := p.Directory.GetPartnerAccount(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return acct.ProviderID, nil
}

// CanActAsProvider reports whether pr is the partner mapped to providerID.
// Admins are not implicitly partners.
func (p Policy) CanActAsProvider(ctx context.Context, pr Principal, providerID string) (bool, error) {
	if providerID == "" {
		return false, nil
	}
	id, err := p.ProviderFor(ctx, pr)
	if err != nil {
		return false, err
	}
	return id == providerID, nil
}

func (p Policy) RequireAdmin(pr Principal) error {
	if !p.IsAdmin(pr) {
		return ForbiddenError{Permission: PermissionAdmin}
	}
	return nil
}

// RequireProviderOrAdmin allows the mapped partner or any admin.
func (p Policy) RequireProviderOrAdmin(ctx context.Context, pr Principal, providerID string) error {
	if p.IsAdmin(pr) {
		return nil
	}
	ok, err := p.CanActAsProvider(ctx, pr, providerID)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{Permission: providerPermission(providerID)}
	}
	return nil
}
