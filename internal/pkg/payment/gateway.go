package payment

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/framelabid/framelab/internal/pkg/env"
)

const (
	defaultSnapBaseURL = "https://app.sandbox.midtrans.com/snap/v1"
	defaultAPIBaseURL  = "https://api.sandbox.midtrans.com/v2"
)

var (
	// ErrTransactionNotFound is the gateway's distinguished "order does not
	// exist (yet)" answer. Callers decide by transaction age whether to keep
	// waiting or to fail the order.
	ErrTransactionNotFound = errors.New("gateway: transaction not found")

	// ErrGatewayUnavailable wraps network errors and timeouts; the local
	// ledger is left untouched and the caller retries later.
	ErrGatewayUnavailable = errors.New("gateway: temporarily unavailable")

	// ErrInvalidSignature marks a webhook payload that failed the
	// authenticity check.
	ErrInvalidSignature = errors.New("gateway: invalid notification signature")
)

// Customer identifies the buyer on a checkout request.
type Customer struct {
	Email string
	Name  string
}

// Checkout holds the artifacts needed to resume an unfinished payment.
type Checkout struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// StatusResponse is the normalized answer to a status query.
type StatusResponse struct {
	OrderID              string
	Status               string
	PaymentType          string
	GatewayTransactionID string
	SettlementTime       *time.Time
	Raw                  string
}

// Notification is the gateway's webhook payload after verification.
type Notification struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	Currency          string `json:"currency"`
	PaymentType       string `json:"payment_type"`
	TransactionID     string `json:"transaction_id"`
	TransactionTime   string `json:"transaction_time"`
	SettlementTime    string `json:"settlement_time"`
	SignatureKey      string `json:"signature_key"`
	CustomerEmail     string `json:"customer_email"`
}

// Status returns the notification's normalized transaction status.
func (n *Notification) Status() string {
	return NormalizeStatus(n.TransactionStatus, n.FraudStatus)
}

// SettledAt parses the settlement timestamp, if present.
func (n *Notification) SettledAt() *time.Time {
	return parseGatewayTime(n.SettlementTime)
}

// Amount parses the gross amount into whole currency units.
func (n *Notification) Amount() int64 {
	raw := strings.TrimSpace(n.GrossAmount)
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		raw = raw[:i]
	}
	var amount int64
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0
		}
		amount = amount*10 + int64(r-'0')
	}
	return amount
}

// Gateway is the normalized surface of the external payment provider. An
// instance is constructed once and injected everywhere; there is no package
// level client.
type Gateway interface {
	CreateCheckout(ctx context.Context, orderID string, amount int64, customer Customer) (*Checkout, error)
	GetStatus(ctx context.Context, orderID string) (*StatusResponse, error)
	Cancel(ctx context.Context, orderID string) error
	VerifyNotification(payload []byte) (*Notification, error)
}

// SnapGateway talks to a Midtrans-style Snap API over HTTP.
type SnapGateway struct {
	ServerKey   string
	SnapBaseURL string
	APIBaseURL  string

	HTTPClient *http.Client
}

// NewSnapGatewayFromEnv builds the gateway client from configuration.
func NewSnapGatewayFromEnv() *SnapGateway {
	timeout := time.Duration(env.GetEnvInt("PAYMENT_HTTP_TIMEOUT_SECONDS", 15)) * time.Second
	return &SnapGateway{
		ServerKey:   strings.TrimSpace(env.GetEnv("PAYMENT_SERVER_KEY", "")),
		SnapBaseURL: strings.TrimRight(env.GetEnv("PAYMENT_SNAP_BASE_URL", defaultSnapBaseURL), "/"),
		APIBaseURL:  strings.TrimRight(env.GetEnv("PAYMENT_API_BASE_URL", defaultAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type snapCheckoutRequest struct {
	TransactionDetails struct {
		OrderID     string `json:"order_id"`
		GrossAmount int64  `json:"gross_amount"`
	} `json:"transaction_details"`
	CustomerDetails struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
	} `json:"customer_details"`
}

// CreateCheckout registers the order with the gateway and returns the Snap
// token and redirect URL for the hosted payment page.
func (g *SnapGateway) CreateCheckout(ctx context.Context, orderID string, amount int64, customer Customer) (*Checkout, error) {
	var body snapCheckoutRequest
	body.TransactionDetails.OrderID = orderID
	body.TransactionDetails.GrossAmount = amount
	body.CustomerDetails.Email = customer.Email
	body.CustomerDetails.FirstName = customer.Name

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.SnapBaseURL+"/transactions", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(g.ServerKey, "")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("gateway: checkout creation failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var checkout Checkout
	if err := json.NewDecoder(resp.Body).Decode(&checkout); err != nil {
		return nil, fmt.Errorf("gateway: decode checkout response: %w", err)
	}
	if checkout.Token == "" {
		return nil, errors.New("gateway: checkout response missing token")
	}
	return &checkout, nil
}

// GetStatus queries the authoritative transaction status for an order.
func (g *SnapGateway) GetStatus(ctx context.Context, orderID string) (*StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.APIBaseURL+"/"+orderID+"/status", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(g.ServerKey, "")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrTransactionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("gateway: status query failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("gateway: decode status response: %w", err)
	}
	// Some gateway deployments answer HTTP 200 with an embedded 404 code.
	if n.StatusCode == "404" {
		return nil, ErrTransactionNotFound
	}

	return &StatusResponse{
		OrderID:              n.OrderID,
		Status:               n.Status(),
		PaymentType:          n.PaymentType,
		GatewayTransactionID: n.TransactionID,
		SettlementTime:       n.SettledAt(),
		Raw:                  string(payload),
	}, nil
}

// Cancel voids a still-pending order on the gateway side.
func (g *SnapGateway) Cancel(ctx context.Context, orderID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.APIBaseURL+"/"+orderID+"/cancel", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(g.ServerKey, "")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrTransactionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway: cancel failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return nil
}

// VerifyNotification authenticates an inbound webhook payload. The signature
// is SHA512(order_id + status_code + gross_amount + server_key).
func (g *SnapGateway) VerifyNotification(payload []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("gateway: decode notification: %w", err)
	}
	if n.OrderID == "" || n.SignatureKey == "" {
		return nil, ErrInvalidSignature
	}

	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + g.ServerKey))
	if hex.EncodeToString(sum[:]) != strings.ToLower(strings.TrimSpace(n.SignatureKey)) {
		return nil, ErrInvalidSignature
	}
	return &n, nil
}

func parseGatewayTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	// The gateway reports local timestamps as "2006-01-02 15:04:05".
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
