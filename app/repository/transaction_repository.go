package repository

import (
	"strings"
	"time"

	"github.com/framelabid/framelab/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// transactionRepository implements the TransactionRepository interface
type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository instance
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

// Create inserts a new purchase attempt into the ledger
func (r *transactionRepository) Create(tx *models.Transaction) error {
	return r.db.Create(tx).Error
}

// GetByOrderID retrieves a transaction by its order identifier
func (r *transactionRepository) GetByOrderID(orderID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.Where("order_id = ?", orderID).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetByUserID retrieves a user's transactions, newest first
func (r *transactionRepository) GetByUserID(userID uint, offset, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&txs).Error
	return txs, err
}

// GetLatestPending retrieves the user's most recent unresolved transaction
func (r *transactionRepository) GetLatestPending(userID uint) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.Where("user_id = ? AND status = ?", userID, models.TransactionStatusPending).
		Order("created_at DESC").
		First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetStaleForReconcile selects pending transactions inside the reconciler's
// age window: older than minAge so the gateway's own propagation delay has
// elapsed, younger than maxAge so ancient rows are left for manual review.
func (r *transactionRepository) GetStaleForReconcile(minAge, maxAge time.Duration, limit int) ([]models.Transaction, error) {
	now := time.Now()
	var txs []models.Transaction
	err := r.db.Where("status = ? AND created_at <= ? AND created_at >= ?",
		models.TransactionStatusPending, now.Add(-minAge), now.Add(-maxAge)).
		Order("created_at ASC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// UpdateStatus applies a gateway-observed status to the ledger row. Status
// only moves forward: a terminal row keeps its status and only refreshes
// payment metadata, so replayed webhooks and racing resolvers are harmless.
func (r *transactionRepository) UpdateStatus(orderID string, status string, meta StatusMeta) (*models.Transaction, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	var result models.Transaction

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var row models.Transaction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_id = ?", orderID).
			First(&row).Error; err != nil {
			return err
		}

		if !row.IsTerminal() && status != "" {
			row.Status = status
		}
		if meta.PaymentType != "" {
			row.PaymentType = meta.PaymentType
		}
		if meta.GatewayTransactionID != "" {
			row.GatewayTransactionID = meta.GatewayTransactionID
		}
		if meta.RawGatewayResponse != "" {
			row.RawGatewayResponse = meta.RawGatewayResponse
		}
		if row.IsPaid() && row.PaidAt == nil {
			paidAt := meta.PaidAt
			if paidAt == nil {
				now := time.Now()
				paidAt = &now
			}
			row.PaidAt = paidAt
		}

		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		result = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkFailed force-fails a transaction, e.g. when the gateway kept reporting
// the order missing past the grace window or checkout creation itself failed.
func (r *transactionRepository) MarkFailed(orderID string, reason string) error {
	return r.db.Model(&models.Transaction{}).
		Where("order_id = ? AND status = ?", orderID, models.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":         models.TransactionStatusFailed,
			"failure_reason": reason,
		}).Error
}

// MarkReceiptSent flips the receipt outbox flag. The guarded UPDATE on a
// NULL receipt_sent_at makes it a compare-and-swap: exactly one caller wins,
// so a retried webhook never resends the receipt.
func (r *transactionRepository) MarkReceiptSent(orderID string) (bool, error) {
	now := time.Now()
	res := r.db.Model(&models.Transaction{}).
		Where("order_id = ? AND receipt_sent_at IS NULL", orderID).
		Update("receipt_sent_at", &now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FindPendingByEmailAmount finds recent pending transactions whose owner's
// email and amount match a webhook that reported an unknown order id. Some
// payment rails rewrite the order identifier, so this is the fallback join.
func (r *transactionRepository) FindPendingByEmailAmount(email string, amount int64, window time.Duration) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.
		Joins("JOIN users ON users.id = transactions.user_id").
		Where("users.email = ? AND transactions.amount = ? AND transactions.status = ? AND transactions.created_at >= ?",
			strings.TrimSpace(email), amount, models.TransactionStatusPending, time.Now().Add(-window)).
		Order("transactions.created_at DESC").
		Find(&txs).Error
	return txs, err
}

// SaveCheckoutArtifacts stores the gateway checkout token and redirect URL
// so an unfinished payment can be resumed.
func (r *transactionRepository) SaveCheckoutArtifacts(orderID, snapToken, redirectURL string) error {
	return r.db.Model(&models.Transaction{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{
			"snap_token":   snapToken,
			"redirect_url": redirectURL,
		}).Error
}
