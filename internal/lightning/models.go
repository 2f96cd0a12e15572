// Package lightning provides a resilient client for the external
// Lightning payment provider's REST API.
package lightning

import (
	"errors"
	"fmt"
)

// Provider payment statuses.
const (
	StatusSending   = "sending"
	StatusReceiving = "receiving"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Provider payment kinds and directions.
const (
	KindBolt11       = "bolt11"
	DirectionSend    = "send"
	DirectionReceive = "receive"
)

// Payment is the provider's representation of a payment resource.
type Payment struct {
	ID             string       `json:"id"`
	WalletID       string       `json:"wallet_id"`
	OrganizationID string       `json:"organization_id"`
	EnvironmentID  string       `json:"environment_id"`
	CreatedAt      string       `json:"created_at"`
	UpdatedAt      string       `json:"updated_at"`
	Currency       string       `json:"currency"`
	Status         string       `json:"status"`
	Type           string       `json:"type"`
	Direction      string       `json:"direction"`
	Data           PaymentData  `json:"data"`
	Error          *ResultError `json:"error,omitempty"`
}

// PaymentData carries the bolt11 payload of a payment resource.
type PaymentData struct {
	PaymentRequest string `json:"payment_request,omitempty"`
	AmountMsats    int64  `json:"amount_msats,omitempty"`
	MaxFeeMsats    int64  `json:"max_fee_msats,omitempty"`
	Memo           string `json:"memo,omitempty"`
}

// ResultError is the provider's error detail on a failed payment.
type ResultError struct {
	Detail string `json:"detail,omitempty"`
	Type   string `json:"type,omitempty"`
}

// receivePaymentRequest is the payload to create an inbound invoice.
type receivePaymentRequest struct {
	ID          string `json:"id"`
	WalletID    string `json:"wallet_id"`
	Currency    string `json:"currency"`
	AmountMsats int64  `json:"amount_msats"`
	PaymentKind string `json:"payment_kind"`
	Description string `json:"description,omitempty"`
}

// sendPaymentRequest is the payload to pay an outbound bolt11 invoice.
type sendPaymentRequest struct {
	ID       string          `json:"id"`
	WalletID string          `json:"wallet_id"`
	Currency string          `json:"currency"`
	Type     string          `json:"type"`
	Data     sendPaymentData `json:"data"`
}

type sendPaymentData struct {
	PaymentRequest string `json:"payment_request"`
	MaxFeeMsats    int64  `json:"max_fee_msats"`
}

// Client error taxonomy. Transient transport failures inside polling
// loops are retried, not surfaced; everything here is terminal for the
// call that returns it.
var (
	ErrPaymentTimeout      = errors.New("timeout waiting for payment")
	ErrPaymentFailed       = errors.New("payment failed")
	ErrInvalidPaymentState = errors.New("payment in invalid state")
	ErrInvalidResponse     = errors.New("invalid provider response")
	ErrNoInvoice           = errors.New("no invoice found in payment data")
)

// APIError is a non-2xx provider response outside the cases handled
// above (404 on status lookups is "not materialized yet", not an error).
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider API error: status %d: %s", e.StatusCode, e.Body)
}
