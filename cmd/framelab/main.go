package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/framelabid/framelab/app/controllers"
	"github.com/framelabid/framelab/app/repository"
	"github.com/framelabid/framelab/internal/pkg/access"
	"github.com/framelabid/framelab/internal/pkg/cache"
	"github.com/framelabid/framelab/internal/pkg/database"
	"github.com/framelabid/framelab/internal/pkg/env"
	"github.com/framelabid/framelab/internal/pkg/payment"
	"github.com/framelabid/framelab/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	// The gateway client is constructed once and handed to every consumer.
	gateway := payment.NewSnapGatewayFromEnv()
	accessService := access.NewService(repos.Access, repos.Package, repos.Frame, access.ConfigFromEnv())
	paymentService := payment.NewService(
		gateway,
		repos.Transaction,
		repos.User,
		accessService,
		payment.SMTPMailer{},
		payment.ConfigFromEnv(),
	)

	reconciler := payment.NewReconciler(paymentService, repos.Transaction, payment.ReconcilerConfigFromEnv())
	reconciler.Start(context.Background())

	app := fiber.New(fiber.Config{
		AppName: "FrameLab",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app, controllers.NewPaymentController(paymentService, accessService))

	return app
}
