package memory

import (
	"context"

	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/repository"
)

// AuditRepository implements repository.AuditRepository in memory.
type AuditRepository struct {
	h handle
}

// Append adds an entry to the log.
func (r *AuditRepository) Append(_ context.Context, e *domain.AuditEntry) error {
	return r.h.do(func(st *state) error {
		st.audit = append(st.audit, *e)
		return nil
	})
}

// List returns matching entries newest first with the total count.
func (r *AuditRepository) List(_ context.Context, filter repository.AuditFilter) ([]domain.AuditEntry, int, error) {
	var matched []domain.AuditEntry
	err := r.h.do(func(st *state) error {
		// Walk backwards so equal timestamps keep newest-appended first.
		for i := len(st.audit) - 1; i >= 0; i-- {
			e := st.audit[i]
			if filter.ResourceType != "" && e.ResourceType != filter.ResourceType {
				continue
			}
			if filter.ResourceID != "" && e.ResourceID != filter.ResourceID {
				continue
			}
			if filter.ActorID != "" && e.ActorID != filter.ActorID {
				continue
			}
			matched = append(matched, e)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return page(matched, filter.Page, filter.PerPage), len(matched), nil
}
