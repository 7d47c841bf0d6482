package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gule/marketplace/internal/audit"
	"github.com/gule/marketplace/internal/auth"
	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/repository"
	"github.com/gule/marketplace/internal/repository/memory"
	apperrors "github.com/gule/marketplace/pkg/errors"
	"github.com/gule/marketplace/pkg/logger"
)

func newAccountService(t *testing.T) (*AccountService, *memory.Store, *auth.TokenManager) {
	t.Helper()
	store := memory.NewStore()
	tokens := auth.NewTokenManager("test-secret-test-secret-test-secret", time.Hour)
	svc := NewAccountService(store, tokens, auth.Hasher{Cost: 4}, audit.NewStoreRecorder(store.Audit(), logger.Discard()), logger.Discard())
	return svc, store, tokens
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, tokens := newAccountService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Email: " Ayse@Gule.test ", Password: "s3cret-pass", DisplayName: "Ayse", AccountType: "seller"})
	require.NoError(t, err)
	assert.Equal(t, "ayse@gule.test", res.Account.Email)
	assert.Equal(t, domain.AccountSeller, res.Account.Type)

	claims, err := tokens.Parse(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.Account.ID, claims.UserID)

	login, err := svc.Login(ctx, "AYSE@gule.test", "s3cret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, login.AccessToken)

	_, err = svc.Login(ctx, "ayse@gule.test", "wrong")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, err = svc.Login(ctx, "nobody@gule.test", "s3cret-pass")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	me, err := svc.Me(ctx, domain.Actor{ID: res.Account.ID, Type: domain.AccountSeller})
	require.NoError(t, err)
	assert.Equal(t, "Ayse", me.DisplayName)
}

func TestRegister_Rejections(t *testing.T) {
	svc, _, _ := newAccountService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Email: "a@gule.test", Password: "longenough", DisplayName: "A", AccountType: "admin"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput, "admins cannot self-register")

	_, err = svc.Register(ctx, RegisterInput{Email: "not-an-email", Password: "short", DisplayName: "", AccountType: "buyer"})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Fields, "email")
	assert.Contains(t, appErr.Fields, "password")
	assert.Contains(t, appErr.Fields, "display_name")

	_, err = svc.Register(ctx, RegisterInput{Email: "dup@gule.test", Password: "longenough", DisplayName: "D", AccountType: "buyer"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterInput{Email: "DUP@gule.test", Password: "longenough", DisplayName: "D", AccountType: "buyer"})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

func TestUpdateStatus_SuspendingSellerSuspendsProducts(t *testing.T) {
	svc, store, _ := newAccountService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Email: "s@gule.test", Password: "longenough", DisplayName: "S", AccountType: "seller"})
	require.NoError(t, err)
	sellerID := res.Account.ID
	for i, st := range []domain.ProductStatus{domain.ProductActive, domain.ProductActive, domain.ProductPending} {
		require.NoError(t, store.Products().Create(ctx, &domain.Product{
			ID: fmt.Sprintf("p-%d", i), SellerID: sellerID, Name: "x", Price: 1, Currency: "TRY", Status: st,
		}))
	}

	_, err = svc.UpdateStatus(ctx, domain.Actor{ID: sellerID, Type: domain.AccountSeller}, sellerID, domain.AccountSuspended)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	acc, err := svc.UpdateStatus(ctx, admin, sellerID, domain.AccountSuspended)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountSuspended, acc.Status)

	suspended := domain.ProductSuspended
	_, n, err := store.Products().List(ctx, repository.ProductFilter{SellerID: &sellerID, Status: &suspended})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = svc.Login(ctx, "s@gule.test", "longenough")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	err = svc.CheckActive(ctx, sellerID)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "ACCOUNT_SUSPENDED", appErr.Code)
	assert.ErrorIs(t, svc.CheckActive(ctx, "no-such-account"), apperrors.ErrUnauthorized)

	// Reinstating leaves products suspended.
	_, err = svc.UpdateStatus(ctx, admin, sellerID, domain.AccountActive)
	require.NoError(t, err)
	_, n, err = store.Products().List(ctx, repository.ProductFilter{SellerID: &sellerID, Status: &suspended})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, svc.CheckActive(ctx, sellerID))

	_, err = svc.UpdateStatus(ctx, admin, admin.ID, domain.AccountSuspended)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = svc.UpdateStatus(ctx, admin, sellerID, "banned")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
