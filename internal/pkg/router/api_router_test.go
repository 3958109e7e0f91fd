package router

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framelabid/framelab/app/controllers"
	"github.com/framelabid/framelab/internal/pkg/payment"
)

// rejectingGateway fails every verification so HandleNotification never
// reaches the repositories.
type rejectingGateway struct{}

func (rejectingGateway) CreateCheckout(ctx context.Context, orderID string, amount int64, customer payment.Customer) (*payment.Checkout, error) {
	return nil, errors.New("not implemented")
}

func (rejectingGateway) GetStatus(ctx context.Context, orderID string) (*payment.StatusResponse, error) {
	return nil, errors.New("not implemented")
}

func (rejectingGateway) Cancel(ctx context.Context, orderID string) error {
	return errors.New("not implemented")
}

func (rejectingGateway) VerifyNotification(payload []byte) (*payment.Notification, error) {
	return nil, payment.ErrInvalidSignature
}

func newTestApp() *fiber.App {
	svc := payment.NewService(rejectingGateway{}, nil, nil, nil, nil, payment.Config{})
	r := &ApiRouter{
		payment:     controllers.NewPaymentController(svc, nil),
		rateLimiter: limiter.New(limiter.Config{Max: 1}),
	}

	app := fiber.New()
	r.InstallRouter(app)
	return app
}

func TestNotificationRouteIsNeverRateLimited(t *testing.T) {
	app := newTestApp()

	// Far past the limiter's budget; the gateway retries on any non-200, so
	// every delivery must reach the always-200 handler.
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("POST", "/api/v1/payment/notification", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}

func TestUserFacingRoutesAreRateLimited(t *testing.T) {
	app := newTestApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/payment/history", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/payment/history", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}
