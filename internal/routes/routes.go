package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/marketplace/internal/config"
	"github.com/example/marketplace/internal/dispatch"
	"github.com/example/marketplace/internal/handlers"
	"github.com/example/marketplace/internal/middleware"
	"github.com/example/marketplace/internal/services"
)

// Prefix is the mount point of the API.
const Prefix = "/api/v1"

// Services bundles the domain services the routes expose.
type Services struct {
	Accounts *services.AccountService
	OTP      handlers.OTPFlow
	Products *services.ProductService
	Carts    *services.CartService
	Orders   *services.OrderService
	Payments *services.PaymentService
	Webhooks middleware.SignatureVerifier
	AI       dispatch.Generator
	Health   map[string]handlers.Pinger
}

// NewApp builds a fiber app with the shared error handler and middleware.
func NewApp(cfg *config.Config, log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Marketplace API",
		ErrorHandler: handlers.ErrorHandler(log),
		BodyLimit:    8 * 1024 * 1024,
	})

	app.Use(middleware.Recover(log))
	app.Use(middleware.RequestLogger(log))
	return app
}

type endpoints struct {
	accounts *handlers.AccountHandler
	products *handlers.ProductHandler
	carts    *handlers.CartHandler
	orders   *handlers.OrderHandler
}

// Table lists the endpoints the AI assistant may call.
func (e endpoints) Table() *dispatch.Table {
	t := dispatch.NewTable()

	t.Register(http.MethodGet, Prefix+"/products", "list products; filters in query.options (category, vendorId, storeId, searchQuery, minPrice, maxPrice, sortBy, order, excludeUnavailable, cursor, limit)", e.products.List)
	t.Register(http.MethodGet, Prefix+"/products/:id", "get one product by params.id", e.products.Get)
	t.Register(http.MethodPost, Prefix+"/products", "create a product (vendors only)", e.products.Create)

	t.Register(http.MethodGet, Prefix+"/orders", "list the user's orders; filters in query.options (status, minTotal, maxTotal, searchQuery, datePreset, startDate, endDate, sortBy, order, cursor, limit)", e.orders.List)
	t.Register(http.MethodGet, Prefix+"/orders/:id", "get one order by params.id", e.orders.Get)
	t.Register(http.MethodPost, Prefix+"/orders", "place an order from body.cartId or body.productId", e.orders.Create)
	t.Register(http.MethodPut, Prefix+"/orders/:id", "update the status or notes of order params.id", e.orders.Update)

	t.Register(http.MethodGet, Prefix+"/carts", "list the user's carts", e.carts.List)
	t.Register(http.MethodGet, Prefix+"/carts/:id", "get one cart by params.id", e.carts.Get)
	t.Register(http.MethodPost, Prefix+"/carts", "create a cart from body.cartInfo", e.carts.Create)
	t.Register(http.MethodPut, Prefix+"/carts/:id", "update the items of cart params.id", e.carts.Update)

	return t
}

// Register wires up all HTTP routes and returns the AI dispatch table.
func Register(app *fiber.App, cfg *config.Config, svc Services, log *zap.Logger) *dispatch.Table {
	cookie := handlers.SessionCookie{
		Name:   cfg.AuthCookieName,
		Secure: cfg.CookieSecure,
		MaxAge: cfg.TokenExpires,
	}

	e := endpoints{
		accounts: handlers.NewAccountHandler(svc.Accounts, cookie),
		products: handlers.NewProductHandler(svc.Products),
		carts:    handlers.NewCartHandler(svc.Carts),
		orders:   handlers.NewOrderHandler(svc.Orders),
	}
	authHandler := handlers.NewAuthHandler(svc.OTP, cookie)
	paystackHandler := handlers.NewPaystackHandler(svc.Payments, log)
	healthHandler := handlers.NewHealthHandler(svc.Health, log)

	table := e.Table()
	aiHandler := handlers.NewAIHandler(dispatch.NewBridge(table, svc.AI, log))

	protect := middleware.Auth(svc.Accounts, cfg.AuthCookieName, log)

	api := app.Group(Prefix)
	api.Get("/health", healthHandler.Health)

	// Accounts
	accounts := api.Group("/accounts")
	accounts.Post("/", e.accounts.Create)
	accounts.Get("/:id", protect, handlers.Adapt(e.accounts.Get))
	accounts.Put("/:id", protect, handlers.Adapt(e.accounts.Update))

	// Auth
	auth := api.Group("/auth")
	auth.Post("/send-otp", authHandler.SendOTP)
	auth.Post("/verify-otp", authHandler.VerifyOTP)
	auth.Delete("/logout", protect, authHandler.Logout)

	// Products
	products := api.Group("/products")
	products.Get("/", handlers.Adapt(e.products.List))
	products.Get("/:id", handlers.Adapt(e.products.Get))
	products.Post("/", protect, handlers.Adapt(e.products.Create))
	products.Put("/:id", protect, handlers.Adapt(e.products.Update))
	products.Delete("/:id", protect, handlers.Adapt(e.products.Delete))

	// Carts
	carts := api.Group("/carts", protect)
	carts.Get("/", handlers.Adapt(e.carts.List))
	carts.Post("/", handlers.Adapt(e.carts.Create))
	carts.Get("/:id", handlers.Adapt(e.carts.Get))
	carts.Put("/:id", handlers.Adapt(e.carts.Update))

	// Orders
	orders := api.Group("/orders", protect)
	orders.Get("/", handlers.Adapt(e.orders.List))
	orders.Post("/", handlers.Adapt(e.orders.Create))
	orders.Get("/:id", handlers.Adapt(e.orders.Get))
	orders.Put("/:id", handlers.Adapt(e.orders.Update))

	// Third-party integrations
	thirdParty := api.Group("/third-party")
	thirdParty.Post("/paystack/payment-link", protect, paystackHandler.PaymentLink)
	thirdParty.Post("/paystack/webhook", middleware.PaystackSignature(svc.Webhooks, log), paystackHandler.Webhook)
	thirdParty.Post("/ai/conversation", protect, aiHandler.Converse)

	return table
}
