// Package memory implements the repository ports in process memory. It
// backs STORE_DRIVER=memory and the service and handler tests.
//
// Transactions are serialized: InTx holds the store lock, works on a deep
// copy of the data and swaps it in only when the callback succeeds.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/repository"
	"github.com/gule/marketplace/pkg/pagination"
)

type state struct {
	accounts map[string]domain.Account
	products map[string]domain.Product
	orders   map[string]domain.Order
	reviews  map[string]domain.Review
	audit    []domain.AuditEntry
}

func newState() *state {
	return &state{
		accounts: make(map[string]domain.Account),
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
		reviews:  make(map[string]domain.Review),
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts: make(map[string]domain.Account, len(s.accounts)),
		products: make(map[string]domain.Product, len(s.products)),
		orders:   make(map[string]domain.Order, len(s.orders)),
		reviews:  make(map[string]domain.Review, len(s.reviews)),
		audit:    append([]domain.AuditEntry(nil), s.audit...),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = copyOrder(v)
	}
	for k, v := range s.reviews {
		c.reviews[k] = copyReview(v)
	}
	return c
}

func copyOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return o
}

func copyReview(r domain.Review) domain.Review {
	r.Reports = append([]domain.ReviewReport(nil), r.Reports...)
	if r.Response != nil {
		resp := *r.Response
		r.Response = &resp
	}
	return r
}

// Store implements repository.Store in memory.
type Store struct {
	mu   sync.Mutex
	data *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: newState()}
}

// handle routes repository calls either to the locked live data or to the
// transaction's working copy.
type handle struct {
	s  *Store
	tx *state
}

func (h handle) do(fn func(st *state) error) error {
	if h.tx != nil {
		return fn(h.tx)
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return fn(h.s.data)
}

func (s *Store) root() handle { return handle{s: s} }

// Accounts, Products, Orders, Reviews and Audit return repositories that
// lock the store for each call.
func (s *Store) Accounts() repository.AccountRepository { return &AccountRepository{h: s.root()} }
func (s *Store) Products() repository.ProductRepository { return &ProductRepository{h: s.root()} }
func (s *Store) Orders() repository.OrderRepository     { return &OrderRepository{h: s.root()} }
func (s *Store) Reviews() repository.ReviewRepository   { return &ReviewRepository{h: s.root()} }
func (s *Store) Audit() repository.AuditRepository      { return &AuditRepository{h: s.root()} }

// InTx runs fn against a private copy and commits it if fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.data.clone()
	if err := fn(&txStore{h: handle{s: s, tx: work}}); err != nil {
		return err
	}
	s.data = work
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

type txStore struct {
	h handle
}

// Repositories inside a transaction work on its copy without locking; InTx
// already holds the store lock.
func (t *txStore) Accounts() repository.AccountRepository { return &AccountRepository{h: t.h} }
func (t *txStore) Products() repository.ProductRepository { return &ProductRepository{h: t.h} }
func (t *txStore) Orders() repository.OrderRepository     { return &OrderRepository{h: t.h} }
func (t *txStore) Reviews() repository.ReviewRepository   { return &ReviewRepository{h: t.h} }
func (t *txStore) Audit() repository.AuditRepository      { return &AuditRepository{h: t.h} }

// InTx joins the running transaction.
func (t *txStore) InTx(_ context.Context, fn func(tx repository.Store) error) error {
	return fn(t)
}

func (t *txStore) Ping(context.Context) error { return nil }

// page slices a sorted result the way the SQL LIMIT/OFFSET does.
func page[T any](all []T, pageNum, perPage int) []T {
	p := pagination.New(pageNum, perPage)
	start := p.Offset()
	if start >= len(all) {
		return []T{}
	}
	return all[start:min(start+p.Limit(), len(all))]
}

// newestFirst sorts by creation time descending, then id for stability.
func newestFirst[T any](items []T, created func(T) int64, id func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if ci != cj {
			return ci > cj
		}
		return id(items[i]) < id(items[j])
	})
}
