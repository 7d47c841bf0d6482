// Package audit records who changed what. Recording never fails the
// operation that triggered it; sink errors are logged.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/repository"
	"github.com/gule/marketplace/pkg/logger"
)

// Entry is one audit record.
type Entry = domain.AuditEntry

// Recorder is the audit port.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Sink names accepted by New.
const (
	SinkStore = "store"
	SinkLog   = "log"
	SinkNone  = "none"
)

// New builds the recorder for sink.
func New(sink string, store repository.Store, log *slog.Logger) (Recorder, error) {
	switch sink {
	case SinkStore:
		return NewStoreRecorder(store.Audit(), log), nil
	case SinkLog:
		return NewLogRecorder(log), nil
	case SinkNone, "":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown audit sink %q", sink)
	}
}

// NewEntry builds an entry attributed to actor.
func NewEntry(actor domain.Actor, action, resourceType, resourceID string, meta map[string]any) Entry {
	return Entry{
		ActorID:      actor.ID,
		ActorType:    actor.Type,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     meta,
	}
}

func stamp(e *Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) {}

// LogRecorder writes entries to the structured log.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder creates a LogRecorder.
func NewLogRecorder(log *slog.Logger) *LogRecorder {
	return &LogRecorder{logger: log}
}

func (r *LogRecorder) Record(ctx context.Context, e Entry) {
	stamp(&e)
	logger.WithContext(ctx, r.logger).InfoContext(ctx, "audit",
		slog.String("audit_id", e.ID),
		slog.String("action", e.Action),
		slog.String("actor_id", e.ActorID),
		slog.String("actor_type", string(e.ActorType)),
		slog.String("resource_type", e.ResourceType),
		slog.String("resource_id", e.ResourceID),
		slog.Any("metadata", e.Metadata),
	)
}

// StoreRecorder appends entries to the audit table.
type StoreRecorder struct {
	repo   repository.AuditRepository
	logger *slog.Logger
}

// NewStoreRecorder creates a StoreRecorder.
func NewStoreRecorder(repo repository.AuditRepository, log *slog.Logger) *StoreRecorder {
	return &StoreRecorder{repo: repo, logger: log}
}

func (r *StoreRecorder) Record(ctx context.Context, e Entry) {
	stamp(&e)
	if err := r.repo.Append(ctx, &e); err != nil {
		logger.WithContext(ctx, r.logger).ErrorContext(ctx, "failed to append audit entry",
			slog.String("action", e.Action),
			slog.String("resource_id", e.ResourceID),
			slog.String("error", err.Error()),
		)
	}
}
