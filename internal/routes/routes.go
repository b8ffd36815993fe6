package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/gorm"

	"github.com/example/bakehouse/internal/config"
	"github.com/example/bakehouse/internal/handlers"
	"github.com/example/bakehouse/internal/middleware"
	"github.com/example/bakehouse/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	telegramService := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	pesapalService := services.NewPesapalService(cfg)
	paymentService := services.NewPaymentService(db, pesapalService, cfg.VerifyIPN, telegramService)

	authHandler := handlers.NewAuthHandler(db, cfg)
	catalogHandler := handlers.NewCatalogHandler(db)
	productHandler := handlers.NewProductHandler(db)
	orderHandler := handlers.NewOrderHandler(db, telegramService)
	paymentHandler := handlers.NewPaymentHandler(db, pesapalService, paymentService)
	profileHandler := handlers.NewProfileHandler(db)

	api := app.Group("/api")

	// The IPN ingress must answer any origin, including preflights: PesaPal
	// delivers server-to-server but the dashboard's test tool probes from the
	// browser. Everything else keeps the restricted origin list.
	webhook := api.Group("/payments/webhook", cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	webhook.Post("/", paymentHandler.Webhook)

	api.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)

	// Catalog routes
	categories := api.Group("/categories")
	categories.Get("/", catalogHandler.ListCategories)
	categories.Post("/", catalogHandler.CreateCategory)
	categories.Get("/:id", catalogHandler.GetCategory)
	categories.Put("/:id", catalogHandler.UpdateCategory)
	categories.Delete("/:id", catalogHandler.DeleteCategory)

	// Products
	products := api.Group("/products")
	productHandler.RegisterProductRoutes(products)

	// Payment routes
	payments := api.Group("/payments")
	payments.Get("/transactions", paymentHandler.ListTransactions)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(cfg))

	protected.Post("/payments/checkout", paymentHandler.Checkout)

	protected.Post("/orders", orderHandler.CreateOrder)
	protected.Get("/orders", orderHandler.ListOrders)
	protected.Get("/orders/:id", orderHandler.GetOrder)

	protected.Get("/profile", profileHandler.GetProfile)
	protected.Put("/profile", profileHandler.UpdateProfile)
	protected.Get("/profile/addresses", profileHandler.ListAddresses)
	protected.Post("/profile/addresses", profileHandler.CreateAddress)
	protected.Put("/profile/addresses/:id", profileHandler.UpdateAddress)
	protected.Delete("/profile/addresses/:id", profileHandler.DeleteAddress)
}
