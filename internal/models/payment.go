package models

import "time"

type PaymentState string

const (
	StatePending PaymentState = "Pending"
	StateSuccess PaymentState = "Success"
	StateFailed  PaymentState = "Failed"
)

// Payment is one purchase attempt for a premium loop. CorrelationID and
// MerchantRequestID are empty until the gateway has issued the pay-prompt;
// ReceiptRef is empty until the provider confirms payment.
type Payment struct {
	ID                string       `json:"id"`
	PayerRef          string       `json:"payer_ref"`
	ItemRef           string       `json:"item_ref"`
	ContactNumber     string       `json:"contact_number"`
	Amount            int64        `json:"amount"`
	CorrelationID     string       `json:"correlation_id,omitempty"`
	MerchantRequestID string       `json:"merchant_request_id,omitempty"`
	ReceiptRef        string       `json:"receipt_ref,omitempty"`
	State             PaymentState `json:"state"`
	CreatedAt         time.Time    `json:"created_at"`
}

// Terminal reports whether the payment has reached a final state.
func (p *Payment) Terminal() bool {
	return p.State == StateSuccess || p.State == StateFailed
}

// STKCallbackEnvelope is the body the provider POSTs to the callback endpoint.
type STKCallbackEnvelope struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

type STKCallback struct {
	MerchantRequestID string           `json:"MerchantRequestID"`
	CheckoutRequestID string           `json:"CheckoutRequestID"`
	ResultCode        int              `json:"ResultCode"`
	ResultDesc        string           `json:"ResultDesc"`
	CallbackMetadata  CallbackMetadata `json:"CallbackMetadata"`
}

type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem values arrive untyped: receipt numbers are strings, amounts
// and phone numbers are JSON numbers.
type MetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

// ReceiptNumber extracts the provider receipt from the callback metadata.
// The second return is false when the item is absent or not a string.
func (c *STKCallback) ReceiptNumber() (string, bool) {
	for _, item := range c.CallbackMetadata.Item {
		if item.Name != "MpesaReceiptNumber" {
			continue
		}
		if s, ok := item.Value.(string); ok && s != "" {
			return s, true
		}
		return "", false
	}
	return "", false
}

// StateChangedEvent is published to Kafka on every terminal transition.
type StateChangedEvent struct {
	PaymentID     string       `json:"payment_id"`
	PayerRef      string       `json:"payer_ref"`
	ItemRef       string       `json:"item_ref"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	PreviousState PaymentState `json:"previous_state"`
	State         PaymentState `json:"state"`
	ReceiptRef    string       `json:"receipt_ref,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}
