package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/loopmarket/payment-service/internal/interfaces"
	"github.com/loopmarket/payment-service/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			id UUID PRIMARY KEY,
			payer_ref VARCHAR(255) NOT NULL,
			item_ref VARCHAR(255) NOT NULL,
			contact_number VARCHAR(32) NOT NULL,
			amount BIGINT NOT NULL CHECK (amount >= 0),
			correlation_id VARCHAR(128) UNIQUE,
			merchant_request_id VARCHAR(128),
			receipt_ref VARCHAR(128),
			state VARCHAR(16) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_payer_item ON payments(payer_ref, item_ref, state)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *PaymentRepository) Create(ctx context.Context, payerRef, itemRef, contactNumber string, amount int64) (*models.Payment, error) {
	p := &models.Payment{
		ID:            uuid.NewString(),
		PayerRef:      payerRef,
		ItemRef:       itemRef,
		ContactNumber: contactNumber,
		Amount:        amount,
		State:         models.StatePending,
		CreatedAt:     time.Now().UTC(),
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (id, payer_ref, item_ref, contact_number, amount, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.PayerRef, p.ItemRef, p.ContactNumber, p.Amount, p.State, p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PaymentRepository) AttachCorrelation(ctx context.Context, paymentID, correlationID, merchantRequestID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments SET correlation_id = $1, merchant_request_id = $2 WHERE id = $3
	`, correlationID, merchantRequestID, paymentID)
	return err
}

func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (*models.Payment, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectPayment+` WHERE id = $1`, paymentID))
}

func (r *PaymentRepository) FindByCorrelation(ctx context.Context, correlationID string) (*models.Payment, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectPayment+` WHERE correlation_id = $1`, correlationID))
}

func (r *PaymentRepository) FindCompleted(ctx context.Context, payerRef, itemRef string) (*models.Payment, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectPayment+`
		WHERE payer_ref = $1 AND item_ref = $2 AND state = $3
		ORDER BY created_at DESC LIMIT 1
	`, payerRef, itemRef, models.StateSuccess))
}

// MarkSuccess transitions Pending -> Success. The state guard in the WHERE
// clause makes the transition a compare-and-set: zero rows affected means the
// record was already terminal.
func (r *PaymentRepository) MarkSuccess(ctx context.Context, paymentID, receiptRef string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments SET state = $1, receipt_ref = $2
		WHERE id = $3 AND state = $4
	`, models.StateSuccess, receiptRef, paymentID, models.StatePending)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *PaymentRepository) MarkFailed(ctx context.Context, paymentID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments SET state = $1
		WHERE id = $2 AND state = $3
	`, models.StateFailed, paymentID, models.StatePending)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const selectPayment = `
	SELECT id, payer_ref, item_ref, contact_number, amount,
	       correlation_id, merchant_request_id, receipt_ref, state, created_at
	FROM payments`

func (r *PaymentRepository) scanOne(row *sql.Row) (*models.Payment, error) {
	var (
		p                 models.Payment
		correlationID     sql.NullString
		merchantRequestID sql.NullString
		receiptRef        sql.NullString
	)
	err := row.Scan(&p.ID, &p.PayerRef, &p.ItemRef, &p.ContactNumber, &p.Amount,
		&correlationID, &merchantRequestID, &receiptRef, &p.State, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	p.CorrelationID = correlationID.String
	p.MerchantRequestID = merchantRequestID.String
	p.ReceiptRef = receiptRef.String
	return &p, nil
}
