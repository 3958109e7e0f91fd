package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/framelabid/framelab/app/models"
	"github.com/framelabid/framelab/app/repository"
	"github.com/framelabid/framelab/internal/pkg/access"
	"github.com/framelabid/framelab/internal/pkg/env"
	"github.com/framelabid/framelab/internal/pkg/mail"
)

var (
	// ErrNoPendingTransaction means the user has nothing to resolve or cancel.
	ErrNoPendingTransaction = errors.New("payment: no pending transaction")

	// ErrAccessStillActive blocks a new checkout while a grant is active.
	ErrAccessStillActive = errors.New("payment: active access exists")
)

// Config is the payment service configuration surface.
type Config struct {
	// Currency used for new checkouts.
	Currency string
	// NotFoundGrace is how long a young order may stay missing on the
	// gateway before it is force-failed.
	NotFoundGrace time.Duration
	// FallbackMatchWindow bounds the email+amount fallback search for
	// webhooks that report a rewritten order id.
	FallbackMatchWindow time.Duration
}

// ConfigFromEnv reads the payment configuration surface.
func ConfigFromEnv() Config {
	return Config{
		Currency:            env.GetEnv("PAYMENT_CURRENCY", "IDR"),
		NotFoundGrace:       time.Duration(env.GetEnvInt("PAYMENT_NOT_FOUND_GRACE_MINUTES", 15)) * time.Minute,
		FallbackMatchWindow: time.Duration(env.GetEnvInt("PAYMENT_FALLBACK_MATCH_WINDOW_HOURS", 24)) * time.Hour,
	}
}

// Mailer sends the payment receipt. Failures are logged, never retried; the
// receipt_sent_at flag on the transaction is the outbox guard.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer delivers receipts through the shared SMTP mailer.
type SMTPMailer struct{}

func (SMTPMailer) Send(to, subject, body string) error {
	return mail.SendMail(to, subject, body)
}

// Service owns the payment lifecycle: checkout creation, webhook ingestion,
// self-healing status resolution and the grant path shared by all three
// resolvers. Webhook, user polling and the background reconciler race freely
// against each other; the ledger's forward-only status updates and the
// grant's idempotency key make the race safe.
type Service struct {
	gateway      Gateway
	transactions repository.TransactionRepository
	users        repository.UserRepository
	access       *access.Service
	mailer       Mailer
	cfg          Config
}

// NewService creates a payment service with all collaborators injected.
func NewService(gateway Gateway, transactions repository.TransactionRepository, users repository.UserRepository, accessSvc *access.Service, mailer Mailer, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "IDR"
	}
	if cfg.NotFoundGrace <= 0 {
		cfg.NotFoundGrace = 15 * time.Minute
	}
	if cfg.FallbackMatchWindow <= 0 {
		cfg.FallbackMatchWindow = 24 * time.Hour
	}
	return &Service{
		gateway:      gateway,
		transactions: transactions,
		users:        users,
		access:       accessSvc,
		mailer:       mailer,
		cfg:          cfg,
	}
}

// CreateCheckout starts a purchase: a pending ledger row plus a gateway-side
// transaction. When the gateway call itself fails the row is force-failed so
// it never lingers in the reconciler's window.
func (s *Service) CreateCheckout(ctx context.Context, userID uint, amount int64) (*models.Transaction, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, err
	}

	if grant, err := s.access.GetActiveAccess(userID); err != nil {
		return nil, err
	} else if grant != nil {
		return nil, ErrAccessStillActive
	}

	tx := &models.Transaction{
		OrderID:  "FRAME-" + uuid.NewString(),
		UserID:   userID,
		Amount:   amount,
		Currency: s.cfg.Currency,
		Status:   models.TransactionStatusPending,
	}
	if err := s.transactions.Create(tx); err != nil {
		return nil, err
	}

	checkout, err := s.gateway.CreateCheckout(ctx, tx.OrderID, amount, Customer{Email: user.Email, Name: user.Name})
	if err != nil {
		if ferr := s.transactions.MarkFailed(tx.OrderID, "checkout creation failed"); ferr != nil {
			log.Errorf("[Payment] Mark failed after checkout error for %s: %v", tx.OrderID, ferr)
		}
		return nil, fmt.Errorf("create gateway checkout: %w", err)
	}

	if err := s.transactions.SaveCheckoutArtifacts(tx.OrderID, checkout.Token, checkout.RedirectURL); err != nil {
		log.Errorf("[Payment] Save checkout artifacts for %s: %v", tx.OrderID, err)
	}
	tx.SnapToken = checkout.Token
	tx.RedirectURL = checkout.RedirectURL
	return tx, nil
}

// HandleNotification ingests one gateway webhook delivery. The caller always
// answers HTTP 200 to the gateway regardless of the returned error; failures
// are logged for manual follow-up instead of provoking a retry storm.
func (s *Service) HandleNotification(ctx context.Context, raw []byte) error {
	verified, verifyErr := s.gateway.VerifyNotification(raw)

	// A payload that fails verification is never trusted for its status, but
	// an order id found in it can still be used to ask the gateway directly.
	var status *StatusResponse
	if verifyErr == nil {
		status = &StatusResponse{
			OrderID:              verified.OrderID,
			Status:               verified.Status(),
			PaymentType:          verified.PaymentType,
			GatewayTransactionID: verified.TransactionID,
			SettlementTime:       verified.SettledAt(),
			Raw:                  string(raw),
		}
	} else {
		orderID := extractOrderID(raw)
		if orderID == "" {
			return fmt.Errorf("notification rejected: %w", verifyErr)
		}
		log.Warnf("[Payment] Notification for %s failed verification (%v), querying gateway directly", orderID, verifyErr)
		var err error
		status, err = s.gateway.GetStatus(ctx, orderID)
		if err != nil {
			return fmt.Errorf("fallback status query for %s: %w", orderID, err)
		}
	}

	_, err := s.applyStatus(status.OrderID, status)
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	// Unknown order id: some payment rails rewrite it on the webhook.
	return s.resolveUnknownOrder(raw, status)
}

// resolveUnknownOrder handles paid webhooks whose order id matches no ledger
// row: first the email+amount fallback join, then safety-net row creation so
// a genuine paid notification is never silently dropped.
func (s *Service) resolveUnknownOrder(raw []byte, status *StatusResponse) error {
	if !models.IsPaidStatus(status.Status) {
		log.Infof("[Payment] Ignoring notification for unknown order %s with status %s", status.OrderID, status.Status)
		return nil
	}

	var hints Notification
	_ = json.Unmarshal(raw, &hints)
	if hints.CustomerEmail == "" {
		return fmt.Errorf("paid notification for unknown order %s carries no customer email", status.OrderID)
	}

	matches, err := s.transactions.FindPendingByEmailAmount(hints.CustomerEmail, hints.Amount(), s.cfg.FallbackMatchWindow)
	if err != nil {
		return err
	}
	if len(matches) == 1 {
		log.Infof("[Payment] Matched unknown order %s to pending transaction %s by email+amount", status.OrderID, matches[0].OrderID)
		_, err := s.applyStatus(matches[0].OrderID, status)
		return err
	}
	if len(matches) > 1 {
		return fmt.Errorf("ambiguous fallback match for order %s: %d candidates", status.OrderID, len(matches))
	}

	user, err := s.users.GetByEmail(hints.CustomerEmail)
	if err != nil {
		return fmt.Errorf("paid notification for unknown order %s: no local user for reported email", status.OrderID)
	}

	log.Warnf("[Payment] Creating safety-net transaction %s for user %d from webhook data", status.OrderID, user.ID)
	tx := &models.Transaction{
		OrderID:  status.OrderID,
		UserID:   user.ID,
		Amount:   hints.Amount(),
		Currency: s.cfg.Currency,
		Status:   models.TransactionStatusPending,
	}
	if hints.Currency != "" {
		tx.Currency = hints.Currency
	}
	if err := s.transactions.Create(tx); err != nil {
		return err
	}
	_, err = s.applyStatus(tx.OrderID, status)
	return err
}

// ResolveStatus is the self-healing path behind the user-facing status
// endpoints: re-query the gateway, repair local state if a webhook was
// missed, grant if paid. Gateway unavailability falls back to the last known
// local state rather than failing the request.
func (s *Service) ResolveStatus(ctx context.Context, orderID string) (*models.Transaction, error) {
	tx, err := s.transactions.GetByOrderID(orderID)
	if err != nil {
		return nil, err
	}
	if tx.IsTerminal() {
		// Paid terminal rows may still be missing their grant if an earlier
		// grant attempt failed after the status write.
		if tx.IsPaid() {
			s.grantAndNotify(tx)
		}
		return tx, nil
	}

	status, err := s.gateway.GetStatus(ctx, orderID)
	if err != nil {
		switch {
		case errors.Is(err, ErrTransactionNotFound):
			if time.Since(tx.CreatedAt) > s.cfg.NotFoundGrace {
				log.Warnf("[Payment] Order %s missing on gateway past grace window, marking failed", orderID)
				if ferr := s.transactions.MarkFailed(orderID, "order not found on gateway"); ferr != nil {
					return tx, ferr
				}
				return s.transactions.GetByOrderID(orderID)
			}
			// Young order: the gateway likely has not propagated it yet.
			return tx, nil
		case errors.Is(err, ErrGatewayUnavailable):
			log.Warnf("[Payment] Gateway unavailable while resolving %s: %v", orderID, err)
			return tx, nil
		default:
			log.Errorf("[Payment] Status query for %s: %v", orderID, err)
			return tx, nil
		}
	}

	return s.applyStatus(orderID, status)
}

// ResolvePending resolves the user's latest pending transaction.
func (s *Service) ResolvePending(ctx context.Context, userID uint) (*models.Transaction, error) {
	tx, err := s.transactions.GetLatestPending(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoPendingTransaction
		}
		return nil, err
	}
	return s.ResolveStatus(ctx, tx.OrderID)
}

// CancelPending voids the user's latest pending transaction on both sides.
func (s *Service) CancelPending(ctx context.Context, userID uint) (*models.Transaction, error) {
	tx, err := s.transactions.GetLatestPending(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoPendingTransaction
		}
		return nil, err
	}

	if err := s.gateway.Cancel(ctx, tx.OrderID); err != nil && !errors.Is(err, ErrTransactionNotFound) {
		return nil, fmt.Errorf("cancel order %s on gateway: %w", tx.OrderID, err)
	}
	return s.transactions.UpdateStatus(tx.OrderID, models.TransactionStatusCancel, repository.StatusMeta{})
}

// History returns the user's transaction log, newest first.
func (s *Service) History(userID uint, offset, limit int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.transactions.GetByUserID(userID, offset, limit)
}

// CanPurchase reports whether the user may start a new checkout. False while
// an active grant exists.
func (s *Service) CanPurchase(userID uint) (bool, error) {
	grant, err := s.access.GetActiveAccess(userID)
	if err != nil {
		return false, err
	}
	return grant == nil, nil
}

// applyStatus funnels a gateway-observed status into the ledger and, when it
// reports paid, into the grant path. This is the single convergence point
// for webhook, poll and sweep.
func (s *Service) applyStatus(orderID string, status *StatusResponse) (*models.Transaction, error) {
	updated, err := s.transactions.UpdateStatus(orderID, status.Status, repository.StatusMeta{
		PaymentType:          status.PaymentType,
		GatewayTransactionID: status.GatewayTransactionID,
		RawGatewayResponse:   status.Raw,
		PaidAt:               status.SettlementTime,
	})
	if err != nil {
		return nil, err
	}
	if updated.IsPaid() {
		s.grantAndNotify(updated)
	}
	return updated, nil
}

// grantAndNotify grants access for a paid transaction and dispatches the
// receipt exactly once. Errors are logged, never propagated: the status
// update already happened and the next resolve pass retries the grant.
func (s *Service) grantAndNotify(tx *models.Transaction) {
	if _, _, err := s.access.GrantForTransaction(tx, nil); err != nil {
		log.Errorf("[Payment] Grant for transaction %s: %v", tx.OrderID, err)
		return
	}
	s.sendReceiptOnce(tx)
}

// sendReceiptOnce wins or loses the receipt outbox flag; only the winner
// sends. A retried webhook therefore never resends the receipt.
func (s *Service) sendReceiptOnce(tx *models.Transaction) {
	won, err := s.transactions.MarkReceiptSent(tx.OrderID)
	if err != nil {
		log.Errorf("[Payment] Receipt flag for %s: %v", tx.OrderID, err)
		return
	}
	if !won || s.mailer == nil {
		return
	}

	user, err := s.users.GetByID(tx.UserID)
	if err != nil {
		log.Errorf("[Payment] Receipt recipient lookup for %s: %v", tx.OrderID, err)
		return
	}

	subject := "Your FrameLab premium access is active"
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>we received your payment of %d %s (order %s). Premium frames are now unlocked for your account.</p>",
		user.Name, tx.Amount, tx.Currency, tx.OrderID,
	)
	if err := s.mailer.Send(user.Email, subject, body); err != nil {
		log.Errorf("[Payment] Receipt mail for %s: %v", tx.OrderID, err)
	}
}

// extractOrderID pulls the order identifier out of an arbitrary payload.
func extractOrderID(raw []byte) string {
	var probe struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.OrderID
}
