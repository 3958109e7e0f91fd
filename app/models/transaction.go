package models

import (
	"strings"
	"time"
)

// Transaction statuses follow the gateway vocabulary after normalization.
const (
	TransactionStatusPending    = "pending"
	TransactionStatusSettlement = "settlement"
	TransactionStatusCapture    = "capture"
	TransactionStatusDeny       = "deny"
	TransactionStatusCancel     = "cancel"
	TransactionStatusExpire     = "expire"
	TransactionStatusFailed     = "failed"
)

// Transaction records one purchase attempt and its lifecycle against the
// payment gateway. OrderID is generated locally, handed to the gateway at
// checkout and used as the join key for webhooks, polling and reconciliation.
type Transaction struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	OrderID              string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"order_id"`
	UserID               uint       `gorm:"not null;index" json:"user_id"`
	Amount               int64      `gorm:"not null" json:"amount"`
	Currency             string     `gorm:"type:varchar(8);not null;default:'IDR'" json:"currency"`
	Status               string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_transactions_status_created,priority:1" json:"status"`
	PaymentType          string     `gorm:"type:varchar(50);default:''" json:"payment_type"`
	GatewayTransactionID string     `gorm:"type:varchar(100);default:'';index" json:"gateway_transaction_id"`
	SnapToken            string     `gorm:"type:varchar(191);default:''" json:"snap_token"`
	RedirectURL          string     `gorm:"type:varchar(255);default:''" json:"redirect_url"`
	RawGatewayResponse   string     `gorm:"type:longtext" json:"-"`
	FailureReason        string     `gorm:"type:varchar(255);default:''" json:"failure_reason,omitempty"`
	ReceiptSentAt        *time.Time `gorm:"type:timestamp;default:null" json:"-"`
	PaidAt               *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime;index:idx_transactions_status_created,priority:2" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPaidStatus reports whether a normalized status entitles the buyer.
// A raw capture only counts once the fraud check passed, which the gateway
// client already folds into settlement during normalization.
func IsPaidStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case TransactionStatusSettlement, TransactionStatusCapture:
		return true
	default:
		return false
	}
}

// IsTerminalStatus reports whether a status ends the transaction lifecycle.
// Terminal rows are never reopened by the normal resolve paths.
func IsTerminalStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case TransactionStatusSettlement, TransactionStatusCapture,
		TransactionStatusDeny, TransactionStatusCancel,
		TransactionStatusExpire, TransactionStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the transaction reached a terminal status.
func (t *Transaction) IsTerminal() bool {
	return IsTerminalStatus(t.Status)
}

// IsPaid reports whether the transaction is in a paid status.
func (t *Transaction) IsPaid() bool {
	return IsPaidStatus(t.Status)
}
