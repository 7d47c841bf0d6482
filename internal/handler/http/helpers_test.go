package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/gule/marketplace/internal/audit"
	"github.com/gule/marketplace/internal/auth"
	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/escrow"
	"github.com/gule/marketplace/internal/repository/memory"
	redisrepo "github.com/gule/marketplace/internal/repository/redis"
	"github.com/gule/marketplace/internal/service"
	"github.com/gule/marketplace/pkg/health"
	"github.com/gule/marketplace/pkg/httputil"
	"github.com/gule/marketplace/pkg/logger"
	"github.com/gule/marketplace/pkg/middleware"
)

type testServer struct {
	handler http.Handler
	store   *memory.Store
	tokens  *auth.TokenManager
	redis   *miniredis.Miniredis

	buyer, seller, admin *domain.Account
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.Discard()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := memory.NewStore()
	tokens := auth.NewTokenManager("handler-test-secret-handler-test", time.Hour)
	rec := audit.NewStoreRecorder(store.Audit(), log)
	reg := prometheus.NewRegistry()

	orders := service.NewOrderService(service.OrderDeps{
		Store:       store,
		Ledger:      escrow.NewLocalLedger(log),
		Audit:       rec,
		Idempotency: redisrepo.NewIdempotencyStore(rdb, time.Hour),
		Metrics:     service.NewMetrics(reg),
		Logger:      log,
	})
	svc := Services{
		Accounts: service.NewAccountService(store, tokens, auth.Hasher{Cost: 4}, rec, log),
		Products: service.NewProductService(store, nil, rec, log),
		Orders:   orders,
		Reviews:  service.NewReviewService(store, nil, rec, nil, log),
		Carts:    service.NewCartService(redisrepo.NewCartRepository(rdb, time.Hour), store, orders, log),
		Audit:    service.NewAuditService(store.Audit()),
	}

	ts := &testServer{store: store, tokens: tokens, redis: mr}
	ts.handler = NewRouter(svc, RouterConfig{
		ServiceName: "gule-test",
		Tokens:      tokens.Validate,
		Health:      health.NewHandler(),
		Metrics:     middleware.NewHTTPMetrics(reg, "gule-test"),
		Gatherer:    reg,
		CORS:        middleware.CORSConfig{AllowedOrigins: []string{"https://shop.gule.test"}},
		Logger:      log,
	})

	ts.buyer = ts.account(t, domain.AccountBuyer)
	ts.seller = ts.account(t, domain.AccountSeller)
	ts.admin = ts.account(t, domain.AccountAdmin)
	return ts
}

func (ts *testServer) account(t *testing.T, typ domain.AccountType) *domain.Account {
	t.Helper()
	acc := &domain.Account{
		ID: uuid.NewString(), Email: string(typ) + "-" + uuid.NewString()[:8] + "@gule.test",
		DisplayName: string(typ), Type: typ, Status: domain.AccountActive, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, ts.store.Accounts().Create(context.Background(), acc))
	return acc
}

func (ts *testServer) token(t *testing.T, acc *domain.Account) string {
	t.Helper()
	tok, _, err := ts.tokens.Issue(acc)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) product(t *testing.T, stock int, status domain.ProductStatus) *domain.Product {
	t.Helper()
	p := &domain.Product{
		ID: uuid.NewString(), SellerID: ts.seller.ID, Name: "Tulip vase", Price: 12500, Currency: "TRY",
		Stock: stock, Status: status, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, ts.store.Products().Create(context.Background(), p))
	return p
}

type call struct {
	method  string
	path    string
	token   string
	body    any
	headers map[string]string
}

func (ts *testServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

// data decodes the {"data": ...} envelope into dst.
func data(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) *httputil.ErrorResponse {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	require.NotNil(t, resp.Error, rec.Body.String())
	return resp.Error
}

func orderBody(productID string, qty int) map[string]any {
	return map[string]any{
		"items": []map[string]any{{"product_id": productID, "quantity": qty}},
		"shipping_address": map[string]any{
			"full_name": "Ayse Yilmaz", "address_line": "Bagdat Cd. 1", "city": "Istanbul",
			"postal_code": "34710", "country": "TR",
		},
		"payment_method": "card",
	}
}
