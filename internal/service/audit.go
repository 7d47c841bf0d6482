package service

import (
	"context"
	"fmt"

	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/repository"
	apperrors "github.com/gule/marketplace/pkg/errors"
)

// AuditService exposes the audit log to admins.
type AuditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new audit service.
func NewAuditService(repo repository.AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

// List returns audit entries, newest first.
func (s *AuditService) List(ctx context.Context, actor domain.Actor, f repository.AuditFilter) ([]domain.AuditEntry, int, error) {
	if !actor.IsAdmin() {
		return nil, 0, apperrors.Forbidden("only admins can read the audit log")
	}
	p := clampPage(f.Page, f.PerPage)
	f.Page, f.PerPage = p.Page, p.PerPage

	entries, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, total, nil
}
