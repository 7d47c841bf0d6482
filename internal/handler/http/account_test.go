package http

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/service"
)

func TestRegisterLoginMe(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, call{method: http.MethodPost, path: "/api/v1/auth/register", body: map[string]any{
		"email": "zeynep@gule.test", "password": "correct-horse", "display_name": "Zeynep", "account_type": "buyer",
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reg service.AuthResult
	data(t, rec, &reg)
	assert.Equal(t, "Bearer", reg.TokenType)
	assert.NotEmpty(t, reg.AccessToken)

	rec = ts.do(t, call{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]any{
		"email": "zeynep@gule.test", "password": "correct-horse",
	}})
	require.Equal(t, http.StatusOK, rec.Code)
	var login service.AuthResult
	data(t, rec, &login)

	rec = ts.do(t, call{method: http.MethodGet, path: "/api/v1/accounts/me", token: login.AccessToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var me domain.Account
	data(t, rec, &me)
	assert.Equal(t, reg.Account.ID, me.ID)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestLogin_BadCredentials(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, call{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]any{
		"email": "nobody@gule.test", "password": "whatever",
	}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorOf(t, rec).Code)
}

func TestRegister_ValidationFields(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, call{method: http.MethodPost, path: "/api/v1/auth/register", body: map[string]any{
		"email": "bad", "password": "x", "account_type": "admin",
	}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	e := errorOf(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", e.Code)
	assert.Contains(t, e.Fields, "email")
	assert.Contains(t, e.Fields, "password")
	assert.Contains(t, e.Fields, "account_type")
}

func TestMe_RequiresToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, call{method: http.MethodGet, path: "/api/v1/accounts/me"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, call{method: http.MethodGet, path: "/api/v1/accounts/me", token: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestToken_DeletedAccount(t *testing.T) {
	ts := newTestServer(t)
	ghost := &domain.Account{ID: uuid.NewString(), Email: "ghost@gule.test", Type: domain.AccountBuyer}

	rec := ts.do(t, call{method: http.MethodGet, path: "/api/v1/accounts/me", token: ts.token(t, ghost)})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminSuspendsAccount(t *testing.T) {
	ts := newTestServer(t)
	path := "/api/v1/admin/accounts/" + ts.seller.ID + "/status"
	body := map[string]any{"status": "suspended"}
	sellerToken := ts.token(t, ts.seller)

	rec := ts.do(t, call{method: http.MethodPatch, path: path, token: ts.token(t, ts.buyer), body: body})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, call{method: http.MethodPatch, path: path, token: ts.token(t, ts.admin), body: body})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var acc domain.Account
	data(t, rec, &acc)
	assert.Equal(t, domain.AccountSuspended, acc.Status)

	// A token issued before the suspension stops working at once.
	for _, p := range []string{"/api/v1/accounts/me", "/api/v1/products?seller_id=" + ts.seller.ID} {
		rec = ts.do(t, call{method: http.MethodGet, path: p, token: sellerToken})
		assert.Equal(t, http.StatusForbidden, rec.Code, p)
		assert.Equal(t, "ACCOUNT_SUSPENDED", errorOf(t, rec).Code, p)
	}
	rec = ts.do(t, call{method: http.MethodGet, path: "/api/v1/products"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, call{method: http.MethodPatch, path: "/api/v1/admin/accounts/not-a-uuid/status", token: ts.token(t, ts.admin), body: body})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", errorOf(t, rec).Code)
}
