package router

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/framelabid/framelab/app/controllers"
	"github.com/framelabid/framelab/internal/pkg/cache"
	"github.com/framelabid/framelab/internal/pkg/env"
)

type ApiRouter struct {
	payment *controllers.PaymentController

	// rateLimiter is swappable for tests; the default is the Redis-backed
	// limiter built at install time.
	rateLimiter fiber.Handler
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// The gateway posts here and retries on any non-200 answer, so this
	// route must never be throttled; it stays outside the limiter.
	app.Post("/api/v1/payment/notification", h.payment.HandleNotification)

	rateLimiter := h.rateLimiter
	if rateLimiter == nil {
		rateLimiter = limiter.New(limiter.Config{
			Max:     env.GetEnvInt("API_RATE_LIMIT", 60),
			Storage: newLimiterStorage(),
		})
	}

	api := app.Group("/api", rateLimiter)
	v1 := api.Group("/v1")
	pay := v1.Group("/payment")

	pay.Post("/checkout", h.payment.HandleCreateCheckout)
	pay.Get("/pending", h.payment.HandleGetPending)
	pay.Post("/cancel", h.payment.HandleCancelPending)
	pay.Get("/status/:orderID", h.payment.HandleGetStatus)
	pay.Get("/history", h.payment.HandleGetHistory)
	pay.Get("/access", h.payment.HandleGetAccess)
	pay.Get("/can-purchase", h.payment.HandleCanPurchase)
}

func NewApiRouter(payment *controllers.PaymentController) *ApiRouter {
	return &ApiRouter{payment: payment}
}

// newLimiterStorage backs the rate limiter with the shared Redis server so
// limits hold across horizontally scaled instances. Database 1 keeps limiter
// keys away from the cache on database 0.
func newLimiterStorage() fiber.Storage {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := 6379
	if client := cache.GetClient(); client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
	}
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Database: 1,
		Reset:    false,
	})
}
