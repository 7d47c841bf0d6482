package memory

import (
	"context"
	"strings"
	"time"

	"github.com/gule/marketplace/internal/domain"
	apperrors "github.com/gule/marketplace/pkg/errors"
)

// AccountRepository implements repository.AccountRepository in memory.
type AccountRepository struct {
	h handle
}

// Create stores a new account. Emails are unique regardless of case.
func (r *AccountRepository) Create(_ context.Context, a *domain.Account) error {
	return r.h.do(func(st *state) error {
		for _, existing := range st.accounts {
			if strings.EqualFold(existing.Email, a.Email) {
				return apperrors.AlreadyExists("account", "email", a.Email)
			}
		}
		st.accounts[a.ID] = *a
		return nil
	})
}

// GetByID returns an account by its ID.
func (r *AccountRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	var out domain.Account
	err := r.h.do(func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return apperrors.NotFound("account", id)
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByEmail returns an account by email, ignoring case.
func (r *AccountRepository) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	var out *domain.Account
	err := r.h.do(func(st *state) error {
		for _, a := range st.accounts {
			if strings.EqualFold(a.Email, email) {
				a := a
				out = &a
				return nil
			}
		}
		return apperrors.NotFound("account", email)
	})
	return out, err
}

// UpdateStatus sets an account's status.
func (r *AccountRepository) UpdateStatus(_ context.Context, id string, status domain.AccountStatus) error {
	return r.h.do(func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return apperrors.NotFound("account", id)
		}
		a.Status = status
		a.UpdatedAt = time.Now().UTC()
		st.accounts[id] = a
		return nil
	})
}
