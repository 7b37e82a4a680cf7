package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/loopmarket/payment-service/internal/interfaces"
	"github.com/loopmarket/payment-service/internal/models"
	"github.com/loopmarket/payment-service/internal/telemetry"
)

// ErrNotPremium rejects initiation for items that need no payment.
var ErrNotPremium = errors.New("loop is not premium, no payment required")

// EventWriter is the slice of kafka.Writer the orchestrator uses.
type EventWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// CallbackResult classifies the outcome of reconciling one provider callback.
// Every result is acknowledged to the provider; these exist for logging,
// metrics and tests.
type CallbackResult string

const (
	CallbackCompleted CallbackResult = "completed"
	CallbackFailed    CallbackResult = "failed"
	CallbackUnknown   CallbackResult = "unknown"
	CallbackReplayed  CallbackResult = "replayed"
	CallbackMalformed CallbackResult = "malformed"
	CallbackError     CallbackResult = "error"
)

// InitiateResult reports a purchase initiation. AlreadyPurchased is the
// short-circuit outcome: the payer owns the item and no new record was made.
type InitiateResult struct {
	AlreadyPurchased bool
	Payment          *models.Payment
}

// Orchestrator drives the payment state machine: it creates Pending records,
// requests pay-prompts, and reconciles the provider's asynchronous callbacks.
type Orchestrator struct {
	repo    interfaces.PaymentRepository
	gateway interfaces.PromptGateway
	catalog interfaces.LoopCatalog
	access  interfaces.AccessGranter
	locks   interfaces.Locker
	events  EventWriter
}

func NewOrchestrator(
	repo interfaces.PaymentRepository,
	gateway interfaces.PromptGateway,
	catalog interfaces.LoopCatalog,
	access interfaces.AccessGranter,
	locks interfaces.Locker,
	events EventWriter,
) *Orchestrator {
	return &Orchestrator{
		repo:    repo,
		gateway: gateway,
		catalog: catalog,
		access:  access,
		locks:   locks,
		events:  events,
	}
}

// Initiate starts a purchase: it short-circuits when the payer already owns
// the item, rejects non-premium items, creates a Pending record, and asks the
// gateway to send the pay-prompt. A gateway failure marks the record Failed
// before the error surfaces, so this path never leaves a Pending record with
// no possible resolution.
func (o *Orchestrator) Initiate(ctx context.Context, payerRef, itemRef, contactNumber string) (*InitiateResult, error) {
	existing, err := o.repo.FindCompleted(ctx, payerRef, itemRef)
	if err != nil && !errors.Is(err, interfaces.ErrPaymentNotFound) {
		return nil, err
	}
	if existing != nil {
		telemetry.Logger.Info("purchase already completed",
			zap.String("payer_ref", payerRef),
			zap.String("item_ref", itemRef),
			zap.String("payment_id", existing.ID),
		)
		return &InitiateResult{AlreadyPurchased: true, Payment: existing}, nil
	}

	loop, err := o.catalog.GetLoop(ctx, itemRef)
	if err != nil {
		return nil, err
	}
	if !loop.IsPremium || loop.Price <= 0 {
		return nil, ErrNotPremium
	}

	p, err := o.repo.Create(ctx, payerRef, itemRef, contactNumber, loop.Price)
	if err != nil {
		return nil, err
	}

	prompt, err := o.gateway.RequestPrompt(ctx, contactNumber, loop.Price, itemRef)
	if err != nil {
		telemetry.PromptFailures.Inc()
		if _, markErr := o.repo.MarkFailed(ctx, p.ID); markErr != nil {
			telemetry.Logger.Error("failed to mark payment Failed after gateway error",
				zap.String("payment_id", p.ID),
				zap.Error(markErr),
			)
		} else {
			p.State = models.StateFailed
			o.publishStateChange(ctx, p, models.StatePending)
		}
		telemetry.Logger.Warn("pay-prompt request failed",
			zap.String("payment_id", p.ID),
			zap.Error(err),
		)
		return nil, err
	}

	if err := o.repo.AttachCorrelation(ctx, p.ID, prompt.CorrelationID, prompt.MerchantRequestID); err != nil {
		return nil, err
	}
	p.CorrelationID = prompt.CorrelationID
	p.MerchantRequestID = prompt.MerchantRequestID

	telemetry.PaymentsInitiated.Inc()
	telemetry.Logger.Info("pay-prompt sent",
		zap.String("payment_id", p.ID),
		zap.String("correlation_id", p.CorrelationID),
		zap.Int64("amount", p.Amount),
	)

	return &InitiateResult{Payment: p}, nil
}

// HandleCallback reconciles one provider callback. It never returns an error:
// every business-level failure is acknowledged to the provider, since a
// non-2xx response only triggers provider-side redelivery of a callback this
// service has already classified.
func (o *Orchestrator) HandleCallback(ctx context.Context, cb *models.STKCallback) CallbackResult {
	result := o.reconcile(ctx, cb)
	telemetry.CallbacksProcessed.WithLabelValues(string(result)).Inc()
	return result
}

func (o *Orchestrator) reconcile(ctx context.Context, cb *models.STKCallback) CallbackResult {
	if cb == nil || cb.CheckoutRequestID == "" {
		telemetry.Logger.Warn("malformed callback: missing CheckoutRequestID")
		return CallbackMalformed
	}

	lockKey := "payment_callback:" + cb.CheckoutRequestID
	acquired, err := o.locks.Acquire(ctx, lockKey)
	if err != nil {
		telemetry.Logger.Error("callback lock acquisition failed",
			zap.String("correlation_id", cb.CheckoutRequestID),
			zap.Error(err),
		)
		return CallbackError
	}
	if !acquired {
		// Another delivery of the same callback is mid-flight; it owns
		// the transition.
		return CallbackReplayed
	}
	defer o.locks.Release(ctx, lockKey)

	p, err := o.repo.FindByCorrelation(ctx, cb.CheckoutRequestID)
	if errors.Is(err, interfaces.ErrPaymentNotFound) {
		telemetry.Logger.Warn("callback for unknown correlation ID",
			zap.String("correlation_id", cb.CheckoutRequestID),
		)
		return CallbackUnknown
	}
	if err != nil {
		telemetry.Logger.Error("callback record lookup failed",
			zap.String("correlation_id", cb.CheckoutRequestID),
			zap.Error(err),
		)
		return CallbackError
	}

	if p.Terminal() {
		return CallbackReplayed
	}

	if cb.ResultCode != 0 {
		return o.finalizeFailed(ctx, p, cb)
	}
	return o.finalizeSuccess(ctx, p, cb)
}

func (o *Orchestrator) finalizeSuccess(ctx context.Context, p *models.Payment, cb *models.STKCallback) CallbackResult {
	receipt, ok := cb.ReceiptNumber()
	if !ok {
		// Fail closed: leave the record Pending rather than complete a
		// purchase with no receipt.
		telemetry.Logger.Warn("malformed callback: success without receipt",
			zap.String("payment_id", p.ID),
			zap.String("correlation_id", p.CorrelationID),
		)
		return CallbackMalformed
	}

	rows, err := o.repo.MarkSuccess(ctx, p.ID, receipt)
	if err != nil {
		telemetry.Logger.Error("marking payment Success failed",
			zap.String("payment_id", p.ID), zap.Error(err))
		return CallbackError
	}
	if rows == 0 {
		return CallbackReplayed
	}

	p.State = models.StateSuccess
	p.ReceiptRef = receipt
	o.publishStateChange(ctx, p, models.StatePending)

	if err := o.access.GrantAccess(ctx, p.PayerRef, p.ItemRef); err != nil {
		// The payment is already Success; the grant can be replayed by an
		// operator without re-running the state machine.
		telemetry.Logger.Error("access grant failed after successful payment",
			zap.String("payment_id", p.ID),
			zap.String("payer_ref", p.PayerRef),
			zap.String("item_ref", p.ItemRef),
			zap.Error(err),
		)
	}

	telemetry.Logger.Info("payment completed",
		zap.String("payment_id", p.ID),
		zap.String("correlation_id", p.CorrelationID),
		zap.String("receipt_ref", receipt),
	)
	return CallbackCompleted
}

func (o *Orchestrator) finalizeFailed(ctx context.Context, p *models.Payment, cb *models.STKCallback) CallbackResult {
	rows, err := o.repo.MarkFailed(ctx, p.ID)
	if err != nil {
		telemetry.Logger.Error("marking payment Failed failed",
			zap.String("payment_id", p.ID), zap.Error(err))
		return CallbackError
	}
	if rows == 0 {
		return CallbackReplayed
	}

	p.State = models.StateFailed
	o.publishStateChange(ctx, p, models.StatePending)

	telemetry.Logger.Info("payment failed",
		zap.String("payment_id", p.ID),
		zap.String("correlation_id", p.CorrelationID),
		zap.Int("result_code", cb.ResultCode),
		zap.String("result_desc", cb.ResultDesc),
	)
	return CallbackFailed
}

// publishStateChange emits the terminal transition to Kafka. The database row
// is authoritative; a publish failure is logged, never propagated.
func (o *Orchestrator) publishStateChange(ctx context.Context, p *models.Payment, previous models.PaymentState) {
	event := models.StateChangedEvent{
		PaymentID:     p.ID,
		PayerRef:      p.PayerRef,
		ItemRef:       p.ItemRef,
		CorrelationID: p.CorrelationID,
		PreviousState: previous,
		State:         p.State,
		ReceiptRef:    p.ReceiptRef,
		Timestamp:     time.Now().UTC(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		telemetry.Logger.Error("encoding state change event failed", zap.Error(err))
		return
	}

	if err := o.events.WriteMessages(ctx, kafka.Message{
		Key:   []byte(p.ID),
		Value: value,
	}); err != nil {
		telemetry.Logger.Error("publishing state change event failed",
			zap.String("payment_id", p.ID),
			zap.Error(err),
		)
	}
}
