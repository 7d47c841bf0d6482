package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/repository"
	"github.com/gule/marketplace/internal/repository/memory"
	"github.com/gule/marketplace/pkg/logger"
)

type mockAuditRepo struct {
	mock.Mock
}

func (m *mockAuditRepo) Append(ctx context.Context, e *domain.AuditEntry) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockAuditRepo) List(ctx context.Context, f repository.AuditFilter) ([]domain.AuditEntry, int, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]domain.AuditEntry), args.Int(1), args.Error(2)
}

func TestStoreRecorder_AppendsStampedEntry(t *testing.T) {
	store := memory.NewStore()
	rec := NewStoreRecorder(store.Audit(), logger.Discard())

	actor := domain.Actor{ID: "admin-1", Type: domain.AccountAdmin}
	rec.Record(context.Background(), NewEntry(actor, domain.ActionOrderStatusOverride, domain.ResourceOrder, "o-1",
		map[string]any{"from": "pending", "to": "delivered"}))

	entries, total, err := store.Audit().List(context.Background(), repository.AuditFilter{ResourceID: "o-1"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].CreatedAt.IsZero())
	assert.Equal(t, domain.AccountAdmin, entries[0].ActorType)
}

func TestStoreRecorder_SwallowsErrors(t *testing.T) {
	repo := new(mockAuditRepo)
	repo.On("Append", mock.Anything, mock.AnythingOfType("*domain.AuditEntry")).Return(errors.New("db down"))

	var buf bytes.Buffer
	rec := NewStoreRecorder(repo, logger.NewWithWriter("test", "info", &buf))

	assert.NotPanics(t, func() {
		rec.Record(context.Background(), Entry{Action: domain.ActionReviewCreated, ResourceID: "r-1"})
	})
	assert.Contains(t, buf.String(), "failed to append audit entry")
	repo.AssertExpectations(t)
}

func TestLogRecorder(t *testing.T) {
	var buf bytes.Buffer
	rec := NewLogRecorder(logger.NewWithWriter("test", "info", &buf))

	rec.Record(context.Background(), Entry{Action: domain.ActionOrderCreated, ResourceType: "order", ResourceID: "o-1"})
	assert.Contains(t, buf.String(), `"action":"order.created"`)
	assert.Contains(t, buf.String(), `"resource_id":"o-1"`)
}

func TestNew_Sinks(t *testing.T) {
	store := memory.NewStore()
	for sink, want := range map[string]any{
		SinkStore: &StoreRecorder{},
		SinkLog:   &LogRecorder{},
		SinkNone:  Nop{},
	} {
		rec, err := New(sink, store, logger.Discard())
		require.NoError(t, err)
		assert.IsType(t, want, rec, sink)
	}

	_, err := New("kafka", store, logger.Discard())
	assert.Error(t, err)
}
