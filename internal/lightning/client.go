package lightning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Config holds the provider credentials and routing identifiers. It is
// constructed once at startup and injected; the client never reads
// ambient process state.
type Config struct {
	APIURL         string
	APIKey         string
	OrganizationID string
	EnvironmentID  string
	WalletID       string
}

// Client talks to the Lightning payment provider. Transient transport
// failures are retried with exponential backoff (bounded attempts);
// every request and response is logged.
type Client struct {
	cfg          Config
	httpClient   *http.Client
	maxRetries   uint64
	pollInterval time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPollInterval overrides the WaitForPayment polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// NewClient creates a provider client.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		maxRetries:   3,
		pollInterval: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// paymentsURL returns the provider's payments collection URL, optionally
// suffixed with a payment id.
func (c *Client) paymentsURL(paymentID string) string {
	url := fmt.Sprintf(
		"%sorganizations/%s/environments/%s/payments",
		c.cfg.APIURL, c.cfg.OrganizationID, c.cfg.EnvironmentID,
	)
	if paymentID != "" {
		url += "/" + paymentID
	}
	return url
}

// doRequest performs one HTTP exchange with bounded retry on transport
// errors and 5xx responses, returning the final status and body.
func (c *Client) doRequest(ctx context.Context, method, url string, payload any) (int, []byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	var status int
	var respBody []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("x-api-key", c.cfg.APIKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		log.Info().Str("method", method).Str("url", url).Msg("Lightning API request")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			log.Warn().Str("method", method).Str("url", url).Err(err).Msg("Lightning API transport error")
			return err
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		status = resp.StatusCode

		log.Info().Str("method", method).Str("url", url).Int("status", status).Msg("Lightning API response")

		// Retry server-side failures; everything else is for the caller.
		if status >= 500 {
			return fmt.Errorf("provider returned %d", status)
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return 0, nil, fmt.Errorf("lightning request failed: %w", err)
	}

	return status, respBody, nil
}

// CreateInvoice asks the provider to materialize a bolt11 receive
// payment for the entry fee. The returned id is generated client-side
// and doubles as an idempotency key; success means the provider accepted
// the request, not that the invoice string exists yet.
func (c *Client) CreateInvoice(ctx context.Context, amountSats int64, description string) (string, error) {
	log.Info().Int64("amount_sats", amountSats).Msg("Creating Lightning invoice")

	paymentID := uuid.Must(uuid.NewV7()).String()
	if description == "" {
		description = "Asteroids Game Entry Fee"
	}

	req := receivePaymentRequest{
		ID:          paymentID,
		WalletID:    c.cfg.WalletID,
		Currency:    "btc",
		AmountMsats: amountSats * 1000,
		PaymentKind: KindBolt11,
		Description: description,
	}

	status, body, err := c.doRequest(ctx, http.MethodPost, c.paymentsURL(""), req)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		log.Error().Int("status", status).Str("body", string(body)).Msg("Failed to create invoice")
		return "", &APIError{StatusCode: status, Body: string(body)}
	}

	log.Info().Str("payment_id", paymentID).Msg("Payment request initiated")
	return paymentID, nil
}

// GetPaymentStatus fetches the provider's view of a payment. A 404 means
// the payment is still being created and returns (nil, nil).
func (c *Client) GetPaymentStatus(ctx context.Context, paymentID string) (*Payment, error) {
	status, body, err := c.doRequest(ctx, http.MethodGet, c.paymentsURL(paymentID), nil)
	if err != nil {
		return nil, err
	}

	if status == http.StatusNotFound {
		log.Info().Str("payment_id", paymentID).Msg("Payment not found yet (still being created)")
		return nil, nil
	}
	if status < 200 || status >= 300 {
		return nil, &APIError{StatusCode: status, Body: string(body)}
	}

	var payment Payment
	if err := json.Unmarshal(body, &payment); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &payment, nil
}

// GetPaymentInvoice extracts the bolt11 payment request from a receive
// payment. Returns ("", nil) while the resource has not materialized;
// fails when the resource exists but is not a bolt11 receive payment or
// carries no invoice.
func (c *Client) GetPaymentInvoice(ctx context.Context, paymentID string) (string, error) {
	payment, err := c.GetPaymentStatus(ctx, paymentID)
	if err != nil {
		return "", err
	}
	if payment == nil {
		return "", nil
	}

	if payment.Type != KindBolt11 || payment.Direction != DirectionReceive {
		return "", fmt.Errorf("%w: type=%q direction=%q", ErrInvalidPaymentState, payment.Type, payment.Direction)
	}
	invoice := strings.TrimSpace(payment.Data.PaymentRequest)
	if invoice == "" {
		return "", ErrNoInvoice
	}
	return invoice, nil
}

// WaitForPayment polls the provider until the payment completes, fails,
// or the timeout elapses. Transient lookup errors are retried, not
// surfaced; "failed" and timeout are terminal.
func (c *Client) WaitForPayment(ctx context.Context, paymentID string, timeout time.Duration) (*Payment, error) {
	log.Info().Str("payment_id", paymentID).Dur("timeout", timeout).Msg("Waiting for payment")

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrPaymentTimeout, paymentID)
		}

		payment, err := c.GetPaymentStatus(ctx, paymentID)
		switch {
		case err != nil:
			log.Warn().Str("payment_id", paymentID).Err(err).Msg("Error checking payment status, will retry")
		case payment == nil:
			log.Info().Str("payment_id", paymentID).Msg("Payment not found yet, will retry")
		case payment.Status == StatusCompleted:
			log.Info().Str("payment_id", paymentID).Msg("Payment completed")
			return payment, nil
		case payment.Status == StatusFailed:
			return nil, fmt.Errorf("%w: %s", ErrPaymentFailed, paymentID)
		default:
			log.Info().Str("payment_id", paymentID).Str("status", payment.Status).Msg("Payment still in progress")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// PayWinnerInvoice sends an outbound bolt11 payment for a prize, with a
// fee ceiling of 1% of the amount, then waits up to a minute for the
// provider to settle it.
func (c *Client) PayWinnerInvoice(ctx context.Context, invoice string, amountMsats int64) (*Payment, error) {
	log.Info().Int64("amount_msats", amountMsats).Msg("Sending prize payment")

	paymentID := uuid.Must(uuid.NewV7()).String()

	req := sendPaymentRequest{
		ID:       paymentID,
		WalletID: c.cfg.WalletID,
		Currency: "btc",
		Type:     KindBolt11,
		Data: sendPaymentData{
			PaymentRequest: invoice,
			MaxFeeMsats:    amountMsats / 100,
		},
	}

	status, body, err := c.doRequest(ctx, http.MethodPost, c.paymentsURL(""), req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &APIError{StatusCode: status, Body: string(body)}
	}

	// The provider may answer with the accepted payment resource; fall
	// back to our generated id when the body is empty or unparseable.
	waitID := paymentID
	var accepted Payment
	if len(body) > 0 {
		if err := json.Unmarshal(body, &accepted); err == nil && accepted.ID != "" {
			waitID = accepted.ID
		}
	}

	log.Info().Str("payment_id", waitID).Msg("Prize payment initiated")
	return c.WaitForPayment(ctx, waitID, 60*time.Second)
}

// IsTerminal reports whether an error from this package is a hard
// failure rather than a retryable condition.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrPaymentFailed) ||
		errors.Is(err, ErrPaymentTimeout) ||
		errors.Is(err, ErrInvalidPaymentState)
}
