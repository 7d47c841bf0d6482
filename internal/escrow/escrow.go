// Package escrow settles the funds held for an order. Money is held when the
// order is placed; the ledger releases it to sellers on completion or refunds
// it to the buyer on cancellation.
package escrow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/pkg/httpclient"
	"github.com/gule/marketplace/pkg/logger"
)

// Ledger moves held funds out of escrow.
type Ledger interface {
	Release(ctx context.Context, o *domain.Order) error
	Refund(ctx context.Context, o *domain.Order, reason string) error
}

// Settle applies the escrow outcome of moving o to target. Targets that do
// not settle escrow are a no-op.
func Settle(ctx context.Context, l Ledger, o *domain.Order, target domain.OrderStatus, reason string) (domain.PaymentStatus, error) {
	outcome, ok := domain.EscrowOutcome(target)
	if !ok || o.PaymentStatus != domain.PaymentHeld {
		return o.PaymentStatus, nil
	}
	var err error
	switch outcome {
	case domain.PaymentReleased:
		err = l.Release(ctx, o)
	case domain.PaymentRefunded:
		err = l.Refund(ctx, o, reason)
	}
	if err != nil {
		return o.PaymentStatus, err
	}
	return outcome, nil
}

type doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

type settlementRequest struct {
	OrderID       string `json:"order_id"`
	BuyerID       string `json:"buyer_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method"`
	Reason        string `json:"reason,omitempty"`
}

// HTTPLedger settles through the payment provider's escrow API.
type HTTPLedger struct {
	baseURL string
	client  doer
	logger  *slog.Logger
}

// NewHTTPLedger creates an HTTPLedger. client is normally a
// *httpclient.CircuitBreakerClient.
func NewHTTPLedger(baseURL string, client doer, logger *slog.Logger) *HTTPLedger {
	return &HTTPLedger{baseURL: strings.TrimRight(baseURL, "/"), client: client, logger: logger}
}

// Release asks the provider to pay o's held funds out to its sellers.
func (l *HTTPLedger) Release(ctx context.Context, o *domain.Order) error {
	return l.settle(ctx, o, "release", "")
}

// Refund asks the provider to return o's held funds to the buyer.
func (l *HTTPLedger) Refund(ctx context.Context, o *domain.Order, reason string) error {
	return l.settle(ctx, o, "refund", reason)
}

func (l *HTTPLedger) settle(ctx context.Context, o *domain.Order, action, reason string) error {
	body, err := json.Marshal(settlementRequest{
		OrderID:       o.ID,
		BuyerID:       o.BuyerID,
		Amount:        o.TotalAmount,
		Currency:      o.Currency,
		PaymentMethod: string(o.PaymentMethod),
		Reason:        reason,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", action, err)
	}

	url := fmt.Sprintf("%s/v1/escrow/%s/%s", l.baseURL, o.ID, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", o.ID+":"+action)
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}

	resp, err := l.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("call escrow %s: %w", action, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		_ = resp.Body.Close()
	case resp.StatusCode == http.StatusConflict:
		// Already settled by an earlier attempt.
		_ = resp.Body.Close()
		l.logger.WarnContext(ctx, "escrow already settled",
			slog.String("order_id", o.ID),
			slog.String("action", action),
		)
	default:
		return httpclient.ParseResponseError(resp, "escrow")
	}

	l.logger.InfoContext(ctx, "escrow settled",
		slog.String("order_id", o.ID),
		slog.String("action", action),
		slog.Int64("amount", o.TotalAmount),
	)
	return nil
}

// LocalLedger settles by logging only. It is used when no payment provider
// is configured; funds are moved out of band.
type LocalLedger struct {
	logger *slog.Logger
}

// NewLocalLedger creates a LocalLedger.
func NewLocalLedger(logger *slog.Logger) *LocalLedger {
	return &LocalLedger{logger: logger}
}

// Release logs that o's held funds go to its sellers.
func (l *LocalLedger) Release(ctx context.Context, o *domain.Order) error {
	l.log(ctx, o, domain.PaymentReleased, "")
	return nil
}

// Refund logs that o's held funds go back to the buyer.
func (l *LocalLedger) Refund(ctx context.Context, o *domain.Order, reason string) error {
	l.log(ctx, o, domain.PaymentRefunded, reason)
	return nil
}

func (l *LocalLedger) log(ctx context.Context, o *domain.Order, outcome domain.PaymentStatus, reason string) {
	l.logger.InfoContext(ctx, "escrow settled locally",
		slog.String("order_id", o.ID),
		slog.String("outcome", string(outcome)),
		slog.Int64("amount", o.TotalAmount),
		slog.String("currency", o.Currency),
		slog.String("reason", reason),
	)
}
