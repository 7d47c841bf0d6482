package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gule/marketplace/internal/audit"
	"github.com/gule/marketplace/internal/auth"
	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/repository"
	apperrors "github.com/gule/marketplace/pkg/errors"
)

// AccountService handles registration, login and account moderation.
type AccountService struct {
	store  repository.Store
	tokens *auth.TokenManager
	hasher auth.Hasher
	audit  audit.Recorder
	logger *slog.Logger

	// dummyHash keeps login timing flat for unknown emails.
	dummyHash string
}

// NewAccountService creates a new account service.
func NewAccountService(store repository.Store, tokens *auth.TokenManager, hasher auth.Hasher, rec audit.Recorder, logger *slog.Logger) *AccountService {
	dummy, _ := hasher.Hash(uuid.NewString())
	return &AccountService{
		store:     store,
		tokens:    tokens,
		hasher:    hasher,
		audit:     rec,
		logger:    logger,
		dummyHash: dummy,
	}
}

// RegisterInput holds the self-registration fields.
type RegisterInput struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"display_name" validate:"notblank,max=100"`
	AccountType string `json:"account_type" validate:"required,oneof=buyer seller"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Account     *domain.Account `json:"account"`
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// Register creates a buyer or seller account and signs the caller in.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validate(&in); err != nil {
		return nil, err
	}
	t, ok := domain.ParseAccountType(in.AccountType)
	if !ok || !t.SelfRegistrable() {
		return nil, fieldError("account_type", "must be one of: buyer seller")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	now := time.Now().UTC()
	acc := &domain.Account{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(in.DisplayName),
		Type:         t,
		Status:       domain.AccountActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Accounts().Create(ctx, acc); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.logger.InfoContext(ctx, "account registered",
		slog.String("account_id", acc.ID),
		slog.String("account_type", string(acc.Type)),
	)
	return s.issue(acc)
}

// Login verifies credentials and issues an access token.
func (s *AccountService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperrors.Unauthorized("invalid email or password")
	}

	acc, err := s.store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("get account: %w", err)
		}
		s.hasher.Check(s.dummyHash, password)
		return nil, apperrors.Unauthorized("invalid email or password")
	}
	if !s.hasher.Check(acc.PasswordHash, password) {
		s.logger.WarnContext(ctx, "failed login", slog.String("account_id", acc.ID))
		return nil, apperrors.Unauthorized("invalid email or password")
	}
	if acc.Status != domain.AccountActive {
		return nil, apperrors.AccountSuspended()
	}
	return s.issue(acc)
}

// CheckActive rejects an account that was suspended or removed after its
// token was issued. It runs on every authenticated request.
func (s *AccountService) CheckActive(ctx context.Context, id string) error {
	acc, err := s.store.Accounts().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.Unauthorized("account no longer exists")
		}
		return fmt.Errorf("get account: %w", err)
	}
	if acc.Status != domain.AccountActive {
		return apperrors.AccountSuspended()
	}
	return nil
}

func (s *AccountService) issue(acc *domain.Account) (*AuthResult, error) {
	token, exp, err := s.tokens.Issue(acc)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return &AuthResult{Account: acc, AccessToken: token, TokenType: "Bearer", ExpiresAt: exp}, nil
}

// Me returns the caller's account.
func (s *AccountService) Me(ctx context.Context, actor domain.Actor) (*domain.Account, error) {
	acc, err := s.store.Accounts().GetByID(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return acc, nil
}

// UpdateStatus suspends or reinstates an account. Suspending a seller also
// suspends every active product of theirs; reinstating leaves products as
// they are.
func (s *AccountService) UpdateStatus(ctx context.Context, actor domain.Actor, id string, status domain.AccountStatus) (*domain.Account, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only admins can change account status")
	}
	if !status.Valid() {
		return nil, fieldError("status", "must be one of: active suspended")
	}
	if id == actor.ID {
		return nil, apperrors.InvalidInput("admins cannot change their own status")
	}

	var (
		acc       *domain.Account
		suspended int64
	)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		if acc, err = tx.Accounts().GetByID(ctx, id); err != nil {
			return err
		}
		if acc.Status == status {
			return nil
		}
		if err := tx.Accounts().UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		acc.Status = status
		if status == domain.AccountSuspended && acc.Type == domain.AccountSeller {
			suspended, err = tx.Products().SuspendActiveBySeller(ctx, id)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update account status: %w", err)
	}

	record(ctx, s.audit, actor, domain.ActionAccountStatus, domain.ResourceAccount, id, map[string]any{
		"status":             string(status),
		"products_suspended": suspended,
	})
	s.logger.InfoContext(ctx, "account status changed",
		slog.String("account_id", id),
		slog.String("status", string(status)),
		slog.Int64("products_suspended", suspended),
	)
	return acc, nil
}
