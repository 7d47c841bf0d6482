package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/pkg/database"
	apperrors "github.com/gule/marketplace/pkg/errors"
)

// AccountRepository implements repository.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db database.DBTX
}

// NewAccountRepository creates a new PostgreSQL-backed account repository.
func NewAccountRepository(db database.DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, email, password_hash, display_name, account_type, status, created_at, updated_at`

// Create inserts a new account.
func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		a.ID, a.Email, a.PasswordHash, a.DisplayName,
		string(a.Type), string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "accounts_email_key") {
			return apperrors.AlreadyExists("account", "email", a.Email)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByID retrieves an account by id.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	a, err := r.scanOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "account", id)
	}
	return a, nil
}

// GetByEmail retrieves an account by its email address.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	a, err := r.scanOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	if err != nil {
		return nil, notFound(err, "account", email)
	}
	return a, nil
}

func (r *AccountRepository) scanOne(ctx context.Context, query string, arg any) (*domain.Account, error) {
	var (
		a               domain.Account
		accType, status string
	)
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName,
		&accType, &status, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Type = domain.AccountType(accType)
	a.Status = domain.AccountStatus(status)
	return &a, nil
}

// UpdateStatus sets the account status.
func (r *AccountRepository) UpdateStatus(ctx context.Context, id string, status domain.AccountStatus) error {
	ct, err := r.db.Exec(ctx,
		`UPDATE accounts SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update account status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("account", id)
	}
	return nil
}
