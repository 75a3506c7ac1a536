package repo

import (
	"context"
	"errors"

	"taskgate/internal/domain"
)

// PutPartnerAccount links an email to the provider id it may edit.
func (r Repo) PutPartnerAccount(ctx context.Context, acct domain.PartnerAccount) error {
	acct.Email = normalizeEmail(acct.Email)
	if acct.Email == "" {
		return errors.New("email required")
	}
	if acct.ProviderID == "" {
		return errors.New("provider_id required")
	}
	_, err := r.put(ctx, domain.CollectionPartnerAccounts, acct.Email, acct, AnyVersion)
	return err
}

func (r Repo) GetPartnerAccount(ctx context.Context, email string) (domain.PartnerAccount, error) {
	d, err := r.Store.Get(ctx, domain.CollectionPartnerAccounts, normalizeEmail(email))
	if err != nil {
		return domain.PartnerAccount{}, err
	}
	return decode[domain.PartnerAccount](d)
}

func (r Repo) DeletePartnerAccount(ctx context.Context, email string) error {
	return r.Store.Delete(ctx, domain.CollectionPartnerAccounts, normalizeEmail(email), AnyVersion)
}

func (r Repo) ListPartnerAccounts(ctx context.Context) ([]domain.PartnerAccount, error) {
	docs, err := r.Store.List(ctx, domain.CollectionPartnerAccounts)
	if err != nil {
		return nil, err
	}
	res := make([]domain.PartnerAccount, 0, len(docs))
	for _, d := range docs {
		a, err := decode[domain.PartnerAccount](d)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, nil
}
