package domain

import "time"

// Audit actions.
const (
	ActionOrderCreated        = "order.created"
	ActionOrderStatusChanged  = "order.status_changed"
	ActionOrderStatusOverride = "order.status_override"
	ActionOrderTrackingSet    = "order.tracking_updated"
	ActionReviewCreated       = "review.created"
	ActionReviewUpdated       = "review.updated"
	ActionReviewDeleted       = "review.deleted"
	ActionReviewReported      = "review.reported"
	ActionReviewResponded     = "review.responded"
	ActionProductCreated      = "product.created"
	ActionProductStatus       = "product.status_changed"
	ActionProductStockAdjust  = "product.stock_adjusted"
	ActionAccountStatus       = "account.status_changed"
)

// Audited resource types.
const (
	ResourceOrder   = "order"
	ResourceReview  = "review"
	ResourceProduct = "product"
	ResourceAccount = "account"
)

// AuditEntry is an append-only record of a state-changing action.
type AuditEntry struct {
	ID           string         `json:"id"`
	ActorID      string         `json:"actor_id"`
	ActorType    AccountType    `json:"actor_type"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
