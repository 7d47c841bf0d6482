// Package memory provides an in-process search engine for development and
// tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/gule/marketplace/internal/search"
	"github.com/gule/marketplace/pkg/pagination"
)

// Engine is an in-memory implementation of search.Engine. It matches the
// query as a case-insensitive substring of the name or description and
// orders hits newest first.
type Engine struct {
	mu   sync.RWMutex
	docs map[string]search.Document
}

// New creates an empty in-memory engine.
func New() *Engine {
	return &Engine{docs: make(map[string]search.Document)}
}

// Index adds or replaces a single document.
func (e *Engine) Index(_ context.Context, doc *search.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.docs[doc.ID] = *doc
	return nil
}

// Delete removes a document by id.
func (e *Engine) Delete(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.docs, id)
	return nil
}

// BulkIndex adds or replaces many documents.
func (e *Engine) BulkIndex(_ context.Context, docs []search.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range docs {
		e.docs[docs[i].ID] = docs[i]
	}
	return nil
}

// Search returns one page of matching ids.
func (e *Engine) Search(_ context.Context, q *search.Query) (*search.Result, error) {
	e.mu.RLock()
	text := strings.ToLower(strings.TrimSpace(q.Text))
	matched := make([]search.Document, 0)
	for _, d := range e.docs {
		if q.SellerID != "" && d.SellerID != q.SellerID {
			continue
		}
		if text != "" &&
			!strings.Contains(strings.ToLower(d.Name), text) &&
			!strings.Contains(strings.ToLower(d.Description), text) {
			continue
		}
		matched = append(matched, d)
	}
	e.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	p := pagination.New(q.Page, q.PerPage)
	start := min(p.Offset(), len(matched))
	end := min(start+p.Limit(), len(matched))

	ids := make([]string, 0, end-start)
	for _, d := range matched[start:end] {
		ids = append(ids, d.ID)
	}
	return &search.Result{IDs: ids, Total: len(matched)}, nil
}
