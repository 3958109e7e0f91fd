package payment

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/framelabid/framelab/app/models"
)

func signPayload(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func TestVerifyNotification(t *testing.T) {
	g := &SnapGateway{ServerKey: "server-key"}

	sig := signPayload("FRAME-1", "200", "10000.00", "server-key")
	payload := []byte(fmt.Sprintf(`{
		"order_id": "FRAME-1",
		"status_code": "200",
		"gross_amount": "10000.00",
		"transaction_status": "settlement",
		"signature_key": "%s"
	}`, sig))

	n, err := g.VerifyNotification(payload)
	if err != nil {
		t.Fatalf("expected signature to validate, got %v", err)
	}
	if n.OrderID != "FRAME-1" || n.Status() != models.TransactionStatusSettlement {
		t.Fatalf("unexpected notification: %+v", n)
	}

	tampered := []byte(fmt.Sprintf(`{
		"order_id": "FRAME-1",
		"status_code": "200",
		"gross_amount": "99999.00",
		"transaction_status": "settlement",
		"signature_key": "%s"
	}`, sig))
	if _, err := g.VerifyNotification(tampered); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for tampered payload, got %v", err)
	}

	if _, err := g.VerifyNotification([]byte(`{"order_id":"FRAME-1"}`)); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for missing signature, got %v", err)
	}
}

func TestNotificationAmount(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{raw: "10000.00", want: 10000},
		{raw: "10000", want: 10000},
		{raw: " 150000.50", want: 150000},
		{raw: "", want: 0},
		{raw: "abc", want: 0},
	}
	for _, tt := range tests {
		n := Notification{GrossAmount: tt.raw}
		if got := n.Amount(); got != tt.want {
			t.Fatalf("Amount(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestGetStatusNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"status_code":"404","status_message":"Transaction doesn't exist."}`)
	}))
	defer srv.Close()

	g := &SnapGateway{ServerKey: "k", APIBaseURL: srv.URL, HTTPClient: srv.Client()}
	if _, err := g.GetStatus(context.Background(), "FRAME-404"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestGetStatusNormalizesCapture(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/FRAME-2/status" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{
			"order_id": "FRAME-2",
			"transaction_status": "capture",
			"fraud_status": "accept",
			"payment_type": "credit_card",
			"transaction_id": "gw-123",
			"settlement_time": "2026-08-01 10:30:00"
		}`)
	}))
	defer srv.Close()

	g := &SnapGateway{ServerKey: "k", APIBaseURL: srv.URL, HTTPClient: srv.Client()}
	status, err := g.GetStatus(context.Background(), "FRAME-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Status != models.TransactionStatusSettlement {
		t.Fatalf("expected capture+accept to normalize to settlement, got %s", status.Status)
	}
	if status.GatewayTransactionID != "gw-123" || status.PaymentType != "credit_card" {
		t.Fatalf("unexpected metadata: %+v", status)
	}
	if status.SettlementTime == nil || !status.SettlementTime.Equal(time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected settlement time: %v", status.SettlementTime)
	}
}

func TestGetStatusUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // force connection errors

	g := &SnapGateway{ServerKey: "k", APIBaseURL: srv.URL, HTTPClient: &http.Client{Timeout: time.Second}}
	if _, err := g.GetStatus(context.Background(), "FRAME-3"); !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestCreateCheckout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transactions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if user, _, ok := r.BasicAuth(); !ok || user != "server-key" {
			t.Errorf("expected basic auth with server key")
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"token":"snap-token","redirect_url":"https://pay.example/redir"}`)
	}))
	defer srv.Close()

	g := &SnapGateway{ServerKey: "server-key", SnapBaseURL: srv.URL, HTTPClient: srv.Client()}
	checkout, err := g.CreateCheckout(context.Background(), "FRAME-4", 10000, Customer{Email: "a@b.test", Name: "A"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if checkout.Token != "snap-token" || checkout.RedirectURL != "https://pay.example/redir" {
		t.Fatalf("unexpected checkout: %+v", checkout)
	}
}
