// Package service holds the marketplace business rules. Services receive an
// already-authenticated domain.Actor and enforce ownership themselves.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gule/marketplace/internal/audit"
	"github.com/gule/marketplace/internal/domain"
	apperrors "github.com/gule/marketplace/pkg/errors"
	"github.com/gule/marketplace/pkg/pagination"
	"github.com/gule/marketplace/pkg/validator"
)

// validate runs struct tag validation and reports violations as a
// VALIDATION_ERROR with per-field messages.
func validate(v any) error {
	err := validator.Validate(v)
	if err == nil {
		return nil
	}
	var verr *validator.ValidationError
	if errors.As(err, &verr) {
		return apperrors.Validation(verr.Fields())
	}
	return apperrors.InvalidInput(err.Error())
}

func fieldError(field, msg string) error {
	return apperrors.Validation(map[string]string{field: msg})
}

func clampPage(page, perPage int) pagination.Params {
	return pagination.New(page, perPage)
}

func record(ctx context.Context, rec audit.Recorder, actor domain.Actor, action, resourceType, resourceID string, meta map[string]any) {
	rec.Record(ctx, audit.NewEntry(actor, action, resourceType, resourceID, meta))
}

func logDropped(ctx context.Context, l *slog.Logger, what string, err error, attrs ...any) {
	l.ErrorContext(ctx, "failed to "+what, append(attrs, slog.String("error", err.Error()))...)
}

// Metrics are the business counters exported on /metrics.
type Metrics struct {
	ordersCreated    prometheus.Counter
	stockConflicts   prometheus.Counter
	reviewsWritten   *prometheus.CounterVec
	orderTransitions *prometheus.CounterVec
}

// NewMetrics registers the business counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders placed.",
		}),
		stockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stock_conflicts_total",
			Help: "Order placements rejected for insufficient stock.",
		}),
		reviewsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviews_written_total",
			Help: "Review writes by action.",
		}, []string{"action"}),
		orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_status_transitions_total",
			Help: "Order status changes by target status.",
		}, []string{"to", "override"}),
	}
	reg.MustRegister(m.ordersCreated, m.stockConflicts, m.reviewsWritten, m.orderTransitions)
	return m
}

func (m *Metrics) orderCreated() {
	if m != nil {
		m.ordersCreated.Inc()
	}
}

func (m *Metrics) stockConflict() {
	if m != nil {
		m.stockConflicts.Inc()
	}
}

func (m *Metrics) reviewWritten(action string) {
	if m != nil {
		m.reviewsWritten.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) orderTransition(to domain.OrderStatus, override bool) {
	if m == nil {
		return
	}
	o := "false"
	if override {
		o = "true"
	}
	m.orderTransitions.WithLabelValues(string(to), o).Inc()
}
