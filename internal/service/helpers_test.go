package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/gule/marketplace/internal/audit"
	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/event"
	"github.com/gule/marketplace/internal/notify"
	"github.com/gule/marketplace/internal/repository"
	"github.com/gule/marketplace/internal/repository/memory"
	redisrepo "github.com/gule/marketplace/internal/repository/redis"
	"github.com/gule/marketplace/internal/search"
	searchmemory "github.com/gule/marketplace/internal/search/memory"
	"github.com/gule/marketplace/pkg/logger"
)

var (
	buyer  = domain.Actor{ID: "buyer-1", Type: domain.AccountBuyer}
	buyer2 = domain.Actor{ID: "buyer-2", Type: domain.AccountBuyer}
	seller = domain.Actor{ID: "seller-1", Type: domain.AccountSeller}
	other  = domain.Actor{ID: "seller-2", Type: domain.AccountSeller}
	admin  = domain.Actor{ID: "admin-1", Type: domain.AccountAdmin}
)

// fakeLedger records settlements and can be made to fail or to answer slowly.
type fakeLedger struct {
	mu       sync.Mutex
	released []string
	refunded []string
	err      error
	delay    time.Duration
}

func (f *fakeLedger) Release(_ context.Context, o *domain.Order) error {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.released = append(f.released, o.ID)
	return nil
}

func (f *fakeLedger) Refund(_ context.Context, o *domain.Order, _ string) error {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.refunded = append(f.refunded, o.ID)
	return nil
}

// fakeEvents counts published events.
type fakeEvents struct {
	event.Nop
	mu      sync.Mutex
	created []string
	changed []string
}

func (f *fakeEvents) OrderCreated(_ context.Context, o *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, o.ID)
	return nil
}

func (f *fakeEvents) OrderStatusChanged(_ context.Context, o *domain.Order, from domain.OrderStatus, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changed = append(f.changed, string(from)+"->"+string(o.Status))
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (f *fakeNotifier) Enqueue(_ context.Context, m notify.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, m)
	return true
}

type fixture struct {
	store    *memory.Store
	ledger   *fakeLedger
	events   *fakeEvents
	notifier *fakeNotifier
	redis    *miniredis.Miniredis
	index    *searchmemory.Engine

	orders   *OrderService
	reviews  *ReviewService
	products *ProductService
	carts    *CartService
	audits   *AuditService
}

type fixtureOpt func(*OrderDeps)

func withRestockAfterShipment() fixtureOpt {
	return func(d *OrderDeps) { d.RestockAfterShipment = true }
}

func newFixture(t *testing.T, opts ...fixtureOpt) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		store:    memory.NewStore(),
		ledger:   &fakeLedger{},
		events:   &fakeEvents{},
		notifier: &fakeNotifier{},
		redis:    mr,
		index:    searchmemory.New(),
	}
	log := logger.Discard()
	rec := audit.NewStoreRecorder(f.store.Audit(), log)

	deps := OrderDeps{
		Store:       f.store,
		Ledger:      f.ledger,
		Events:      f.events,
		Audit:       rec,
		Notifier:    f.notifier,
		Idempotency: redisrepo.NewIdempotencyStore(rdb, time.Hour),
		Logger:      log,
	}
	for _, o := range opts {
		o(&deps)
	}
	f.orders = NewOrderService(deps)
	f.reviews = NewReviewService(f.store, f.events, rec, nil, log)
	f.products = NewProductService(f.store, f.index, rec, log)
	f.carts = NewCartService(redisrepo.NewCartRepository(rdb, time.Hour), f.store, f.orders, log)
	f.audits = NewAuditService(f.store.Audit())

	ctx := context.Background()
	for _, a := range []domain.Actor{buyer, buyer2, seller, other, admin} {
		require.NoError(t, f.store.Accounts().Create(ctx, &domain.Account{
			ID: a.ID, Email: a.ID + "@gule.test", Type: a.Type, Status: domain.AccountActive,
		}))
	}
	return f
}

func (f *fixture) addProduct(t *testing.T, id, sellerID string, price int64, stock int) *domain.Product {
	t.Helper()
	p := &domain.Product{
		ID: id, SellerID: sellerID, Name: "Product " + id, Price: price, Currency: "TRY",
		Stock: stock, Status: domain.ProductActive, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.store.Products().Create(context.Background(), p))
	return p
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.store.Products().GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func address() domain.Address {
	return domain.Address{FullName: "Ayse Yilmaz", AddressLine: "Bagdat Cd. 1", City: "Istanbul", PostalCode: "34710", Country: "tr"}
}

func orderInput(buyerID string, items ...OrderItemInput) CreateOrderInput {
	return CreateOrderInput{BuyerID: buyerID, Items: items, ShippingAddress: address(), PaymentMethod: domain.PaymentCard}
}

// placeOrder creates an order and moves it to status along the forward chain.
func (f *fixture) placeOrder(t *testing.T, status domain.OrderStatus, items ...OrderItemInput) *domain.Order {
	t.Helper()
	ctx := context.Background()
	o, err := f.orders.CreateOrder(ctx, orderInput(buyer.ID, items...))
	require.NoError(t, err)
	for o.Status != status {
		o, err = f.orders.UpdateOrderStatus(ctx, admin, o.ID, UpdateStatusInput{Status: nextStatus(o.Status)})
		require.NoError(t, err)
	}
	return o
}

func nextStatus(s domain.OrderStatus) domain.OrderStatus {
	chain := []domain.OrderStatus{
		domain.OrderPending, domain.OrderConfirmed, domain.OrderProcessing,
		domain.OrderShipped, domain.OrderDelivered, domain.OrderCompleted,
	}
	for i, c := range chain[:len(chain)-1] {
		if c == s {
			return chain[i+1]
		}
	}
	return s
}

func auditActions(t *testing.T, store repository.Store, resourceID string) []string {
	t.Helper()
	entries, _, err := store.Audit().List(context.Background(), repository.AuditFilter{ResourceID: resourceID, PerPage: 100})
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

// brokenIndex fails every search.
type brokenIndex struct {
	*searchmemory.Engine
}

func (brokenIndex) Search(context.Context, *search.Query) (*search.Result, error) {
	return nil, errors.New("connection refused")
}
