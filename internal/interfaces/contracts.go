package interfaces

import (
	"context"
	"errors"

	"github.com/loopmarket/payment-service/internal/models"
)

var (
	// ErrPaymentNotFound is returned by repository lookups with no match.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrLoopNotFound is returned by the catalog when the item does not exist.
	ErrLoopNotFound = errors.New("loop not found")
)

// PaymentRepository is the durable store for purchase attempts. MarkSuccess
// and MarkFailed are conditional updates that only apply while the record is
// still Pending; they return the number of rows changed so callers can detect
// a lost race or a replayed callback.
type PaymentRepository interface {
	Create(ctx context.Context, payerRef, itemRef, contactNumber string, amount int64) (*models.Payment, error)
	AttachCorrelation(ctx context.Context, paymentID, correlationID, merchantRequestID string) error
	FindByID(ctx context.Context, paymentID string) (*models.Payment, error)
	FindByCorrelation(ctx context.Context, correlationID string) (*models.Payment, error)
	FindCompleted(ctx context.Context, payerRef, itemRef string) (*models.Payment, error)
	MarkSuccess(ctx context.Context, paymentID, receiptRef string) (int64, error)
	MarkFailed(ctx context.Context, paymentID string) (int64, error)
}

// PromptResult carries the provider identifiers that join a pay-prompt to its
// asynchronous callback.
type PromptResult struct {
	CorrelationID     string
	MerchantRequestID string
}

// PromptGateway issues a push-to-pay prompt to the payer's phone. The client
// performs no retries; retry policy belongs to the orchestrator's caller.
type PromptGateway interface {
	RequestPrompt(ctx context.Context, contactNumber string, amount int64, itemRef string) (*PromptResult, error)
}

type LoopInfo struct {
	Price     int64
	IsPremium bool
}

// LoopCatalog looks up the price and premium flag of a content item. The
// catalog is owned by the content service.
type LoopCatalog interface {
	GetLoop(ctx context.Context, itemRef string) (*LoopInfo, error)
}

// AccessGranter marks a payer as entitled to a premium item. The grant is
// idempotent on the content-service side; duplicate calls are safe.
type AccessGranter interface {
	GrantAccess(ctx context.Context, payerRef, itemRef string) error
}

// Locker provides a per-key mutual-exclusion guard used to serialize callback
// reconciliation for a single correlation ID.
type Locker interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string)
}
