package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/framelabid/framelab/app/controllers"
)

// Router installs a route group on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter wires all route groups. The payment controller is built by
// the caller so the gateway client and services are injected, not global.
func InstallRouter(app *fiber.App, paymentController *controllers.PaymentController) {
	setup(app, NewHttpRouter(), NewApiRouter(paymentController))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
