// Package event publishes marketplace domain events to Kafka.
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gule/marketplace/internal/domain"
	pkgkafka "github.com/gule/marketplace/pkg/kafka"
	"github.com/gule/marketplace/pkg/logger"
)

// Aggregate types.
const (
	AggregateOrder  = "order"
	AggregateReview = "review"
)

// Source identifies this service on every envelope.
const Source = "gule-marketplace"

// Topics.
var (
	TopicOrderCreated       = pkgkafka.Topic(AggregateOrder, "created")
	TopicOrderStatusChanged = pkgkafka.Topic(AggregateOrder, "status_changed")
	TopicReviewCreated      = pkgkafka.Topic(AggregateReview, "created")
	TopicReviewDeleted      = pkgkafka.Topic(AggregateReview, "deleted")
)

// Publisher is what services depend on.
type Publisher interface {
	OrderCreated(ctx context.Context, o *domain.Order) error
	OrderStatusChanged(ctx context.Context, o *domain.Order, from domain.OrderStatus, override bool) error
	ReviewCreated(ctx context.Context, r *domain.Review, summary domain.ReviewSummary) error
	ReviewDeleted(ctx context.Context, r *domain.Review, summary domain.ReviewSummary) error
}

// OrderCreatedData is the order.created payload.
type OrderCreatedData struct {
	ID            string             `json:"id"`
	BuyerID       string             `json:"buyer_id"`
	Status        string             `json:"status"`
	PaymentMethod string             `json:"payment_method"`
	Items         []domain.OrderItem `json:"items"`
	TotalAmount   int64              `json:"total_amount"`
	Currency      string             `json:"currency"`
}

// OrderStatusChangedData is the order.status_changed payload.
type OrderStatusChangedData struct {
	OrderID       string `json:"order_id"`
	OldStatus     string `json:"old_status"`
	NewStatus     string `json:"new_status"`
	PaymentStatus string `json:"payment_status"`
	Reason        string `json:"reason,omitempty"`
	Override      bool   `json:"override,omitempty"`
}

// ReviewData is the payload of review events. It carries the product's
// rating after the change.
type ReviewData struct {
	ReviewID      string  `json:"review_id"`
	ProductID     string  `json:"product_id"`
	BuyerID       string  `json:"buyer_id"`
	Rating        int     `json:"rating"`
	ProductRating float64 `json:"product_rating"`
	ReviewCount   int     `json:"review_count"`
}

type eventWriter interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes events through pkg/kafka.
type Producer struct {
	kafka  eventWriter
	logger *slog.Logger
}

// NewProducer creates a Kafka-backed publisher.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	ev, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, Source, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		ev.WithCorrelationID(id)
	}
	if err := p.kafka.Publish(ctx, topic, ev); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

// OrderCreated publishes gule.order.created.
func (p *Producer) OrderCreated(ctx context.Context, o *domain.Order) error {
	return p.publish(ctx, TopicOrderCreated, o.ID, AggregateOrder, OrderCreatedData{
		ID:            o.ID,
		BuyerID:       o.BuyerID,
		Status:        string(o.Status),
		PaymentMethod: string(o.PaymentMethod),
		Items:         o.Items,
		TotalAmount:   o.TotalAmount,
		Currency:      o.Currency,
	})
}

// OrderStatusChanged publishes gule.order.status_changed.
func (p *Producer) OrderStatusChanged(ctx context.Context, o *domain.Order, from domain.OrderStatus, override bool) error {
	return p.publish(ctx, TopicOrderStatusChanged, o.ID, AggregateOrder, OrderStatusChangedData{
		OrderID:       o.ID,
		OldStatus:     string(from),
		NewStatus:     string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Reason:        o.Reason,
		Override:      override,
	})
}

// ReviewCreated publishes gule.review.created.
func (p *Producer) ReviewCreated(ctx context.Context, r *domain.Review, s domain.ReviewSummary) error {
	return p.publish(ctx, TopicReviewCreated, r.ID, AggregateReview, reviewData(r, s))
}

// ReviewDeleted publishes gule.review.deleted.
func (p *Producer) ReviewDeleted(ctx context.Context, r *domain.Review, s domain.ReviewSummary) error {
	return p.publish(ctx, TopicReviewDeleted, r.ID, AggregateReview, reviewData(r, s))
}

func reviewData(r *domain.Review, s domain.ReviewSummary) ReviewData {
	return ReviewData{
		ReviewID:      r.ID,
		ProductID:     r.ProductID,
		BuyerID:       r.BuyerID,
		Rating:        r.Rating,
		ProductRating: s.AverageRating,
		ReviewCount:   s.TotalCount,
	}
}

// Nop drops every event. Used when Kafka is disabled.
type Nop struct{}

func (Nop) OrderCreated(context.Context, *domain.Order) error { return nil }
func (Nop) OrderStatusChanged(context.Context, *domain.Order, domain.OrderStatus, bool) error {
	return nil
}
func (Nop) ReviewCreated(context.Context, *domain.Review, domain.ReviewSummary) error { return nil }
func (Nop) ReviewDeleted(context.Context, *domain.Review, domain.ReviewSummary) error { return nil }
