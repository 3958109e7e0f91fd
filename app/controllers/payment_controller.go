package controllers

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/framelabid/framelab/internal/pkg/access"
	"github.com/framelabid/framelab/internal/pkg/payment"
)

var validate = validator.New()

// checkoutRequest is the body of a checkout creation call. The amount is in
// whole currency units, matching the gateway's gross_amount.
type checkoutRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

// PaymentController exposes the payment lifecycle over HTTP. It holds the
// explicitly constructed services; nothing here reaches for globals.
type PaymentController struct {
	payments *payment.Service
	access   *access.Service
}

// NewPaymentController creates the controller from injected services.
func NewPaymentController(payments *payment.Service, accessSvc *access.Service) *PaymentController {
	return &PaymentController{payments: payments, access: accessSvc}
}

// HandleNotification ingests a gateway webhook. The gateway retries on any
// non-200 answer, so once processing finished we always answer 200 and leave
// internal failures to the logs.
func (pc *PaymentController) HandleNotification(c *fiber.Ctx) error {
	raw := append([]byte(nil), c.BodyRaw()...)
	if err := pc.payments.HandleNotification(c.Context(), raw); err != nil {
		log.Errorf("[Payment] Notification processing: %v", err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleCreateCheckout starts a purchase and returns the checkout artifacts.
func (pc *PaymentController) HandleCreateCheckout(c *fiber.Ctx) error {
	userID, ok := requireUserID(c)
	if !ok {
		return nil
	}

	var body checkoutRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount must be a positive integer"})
	}

	tx, err := pc.payments.CreateCheckout(c.Context(), userID, body.Amount)
	if err != nil {
		if errors.Is(err, payment.ErrAccessStillActive) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "access still active"})
		}
		log.Errorf("[Payment] Create checkout for user %d: %v", userID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "checkout creation failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order_id":     tx.OrderID,
		"amount":       tx.Amount,
		"currency":     tx.Currency,
		"status":       tx.Status,
		"token":        tx.SnapToken,
		"redirect_url": tx.RedirectURL,
	})
}

// HandleGetPending returns the user's latest unresolved transaction,
// self-healing its status from the gateway as a side effect.
func (pc *PaymentController) HandleGetPending(c *fiber.Ctx) error {
	userID, ok := requireUserID(c)
	if !ok {
		return nil
	}

	tx, err := pc.payments.ResolvePending(c.Context(), userID)
	if err != nil {
		if errors.Is(err, payment.ErrNoPendingTransaction) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no pending transaction"})
		}
		log.Errorf("[Payment] Resolve pending for user %d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "resolve failed"})
	}
	return c.JSON(tx)
}

// HandleCancelPending voids the user's latest pending transaction.
func (pc *PaymentController) HandleCancelPending(c *fiber.Ctx) error {
	userID, ok := requireUserID(c)
	if !ok {
		return nil
	}

	tx, err := pc.payments.CancelPending(c.Context(), userID)
	if err != nil {
		if errors.Is(err, payment.ErrNoPendingTransaction) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no pending transaction"})
		}
		log.Errorf("[Payment] Cancel pending for user %d: %v", userID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "cancel failed"})
	}
	return c.JSON(tx)
}

// HandleGetStatus resolves one order's status, repairing local state when
// the gateway knows better.
func (pc *PaymentController) HandleGetStatus(c *fiber.Ctx) error {
	userID, ok := requireUserID(c)
	if !ok {
		return nil
	}
	orderID := c.Params("orderID")

	tx, err := pc.payments.ResolveStatus(c.Context(), orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown order"})
		}
		log.Errorf("[Payment] Resolve %s: %v", orderID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "resolve failed"})
	}
	if tx.UserID != userID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown order"})
	}
	return c.JSON(tx)
}

// HandleGetHistory returns the user's transaction log.
func (pc *PaymentController) HandleGetHistory(c *fiber.Ctx) error {
	userID, ok := requireUserID(c)
	if !ok {
		return nil
	}

	txs, err := pc.payments.History(userID, c.QueryInt("offset", 0), c.QueryInt("limit", 20))
	if err != nil {
		log.Errorf("[Payment] History for user %d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "history failed"})
	}
	return c.JSON(fiber.Map{"transactions": txs})
}

// HandleGetAccess returns the user's current entitlement, remaining duration
// and accessible frame ids.
func (pc *PaymentController) HandleGetAccess(c *fiber.Ctx) error {
	userID, ok := requireUserID(c)
	if !ok {
		return nil
	}

	grant, err := pc.access.GetActiveAccess(userID)
	if err != nil {
		log.Errorf("[Payment] Access lookup for user %d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "access lookup failed"})
	}
	if grant == nil {
		return c.JSON(fiber.Map{"active": false})
	}

	frameIDs, err := pc.access.GetAccessibleContent(userID)
	if err != nil {
		log.Errorf("[Payment] Accessible content for user %d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "access lookup failed"})
	}

	return c.JSON(fiber.Map{
		"active":            true,
		"transaction_id":    grant.TransactionID,
		"starts_at":         grant.StartsAt,
		"ends_at":           grant.EndsAt,
		"remaining_seconds": int64(grant.RemainingDuration(time.Now()).Seconds()),
		"frame_ids":         frameIDs,
	})
}

// HandleCanPurchase reports whether a new checkout is allowed.
func (pc *PaymentController) HandleCanPurchase(c *fiber.Ctx) error {
	userID, ok := requireUserID(c)
	if !ok {
		return nil
	}

	allowed, err := pc.payments.CanPurchase(userID)
	if err != nil {
		log.Errorf("[Payment] Can-purchase for user %d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup failed"})
	}
	return c.JSON(fiber.Map{"can_purchase": allowed})
}
