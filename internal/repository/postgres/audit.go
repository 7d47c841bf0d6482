package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/repository"
	"github.com/gule/marketplace/pkg/database"
)

// AuditRepository implements repository.AuditRepository using PostgreSQL.
type AuditRepository struct {
	db database.DBTX
}

// NewAuditRepository creates a new PostgreSQL-backed audit log.
func NewAuditRepository(db database.DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts an entry.
func (r *AuditRepository) Append(ctx context.Context, e *domain.AuditEntry) error {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO audit_log (id, actor_id, actor_type, action, resource_type, resource_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.ActorID, string(e.ActorType), e.Action, e.ResourceType, e.ResourceID, metaJSON, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns entries matching the filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter repository.AuditFilter) ([]domain.AuditEntry, int, error) {
	var (
		conditions []string
		args       []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("resource_type", filter.ResourceType)
	add("resource_id", filter.ResourceID)
	add("actor_id", filter.ActorID)

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit, offset := limitOffset(filter.Page, filter.PerPage)
	args = append(args, limit, offset)

	query := fmt.Sprintf(`
		SELECT id, actor_id, actor_type, action, resource_type, resource_id, metadata, created_at,
		       count(*) OVER() AS total_count
		FROM audit_log
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		whereClause, len(args)-1, len(args),
	)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var total int
	entries := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var (
			e         domain.AuditEntry
			actorType string
			metaJSON  []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &actorType, &e.Action, &e.ResourceType,
			&e.ResourceID, &metaJSON, &e.CreatedAt, &total); err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ActorType = domain.AccountType(actorType)
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
				return nil, 0, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, total, nil
}
