package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gule/marketplace/internal/domain"
	pkgkafka "github.com/gule/marketplace/pkg/kafka"
	"github.com/gule/marketplace/pkg/logger"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) Publish(ctx context.Context, topic string, ev *pkgkafka.Event) error {
	return m.Called(ctx, topic, ev).Error(0)
}

func TestProducer_OrderCreated(t *testing.T) {
	w := new(mockWriter)
	p := &Producer{kafka: w, logger: logger.Discard()}

	var got *pkgkafka.Event
	w.On("Publish", mock.Anything, "gule.order.created", mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(2).(*pkgkafka.Event) }).
		Return(nil)

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	o := &domain.Order{ID: "o-1", BuyerID: "b-1", Status: domain.OrderPending, TotalAmount: 900, Currency: "TRY"}
	require.NoError(t, p.OrderCreated(ctx, o))

	require.NotNil(t, got)
	assert.Equal(t, "corr-1", got.CorrelationID)
	assert.Equal(t, "o-1", got.AggregateID)
	assert.Equal(t, Source, got.Source)

	var data OrderCreatedData
	require.NoError(t, json.Unmarshal(got.Data, &data))
	assert.Equal(t, int64(900), data.TotalAmount)
	w.AssertExpectations(t)
}

func TestProducer_OrderStatusChanged(t *testing.T) {
	w := new(mockWriter)
	p := &Producer{kafka: w, logger: logger.Discard()}

	w.On("Publish", mock.Anything, "gule.order.status_changed", mock.MatchedBy(func(ev *pkgkafka.Event) bool {
		var d OrderStatusChangedData
		return json.Unmarshal(ev.Data, &d) == nil && d.OldStatus == "pending" && d.NewStatus == "delivered" && d.Override
	})).Return(nil)

	o := &domain.Order{ID: "o-1", Status: domain.OrderDelivered}
	require.NoError(t, p.OrderStatusChanged(context.Background(), o, domain.OrderPending, true))
	w.AssertExpectations(t)
}

func TestProducer_PublishError(t *testing.T) {
	w := new(mockWriter)
	p := &Producer{kafka: w, logger: logger.Discard()}
	w.On("Publish", mock.Anything, TopicReviewCreated, mock.Anything).Return(errors.New("broker down"))

	err := p.ReviewCreated(context.Background(), &domain.Review{ID: "r-1"}, domain.ReviewSummary{})
	assert.ErrorContains(t, err, "publish gule.review.created event")
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.OrderCreated(context.Background(), &domain.Order{}))
}
