package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/handlers"
	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/repository"
	"github.com/example/storefront/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	// Repositories
	users := repository.NewUserRepository(db)
	products := repository.NewProductRepository(db)
	wishlists := repository.NewWishlistRepository(db)
	enquiries := repository.NewEnquiryRepository(db)
	otps := repository.NewOTPRepository(db)

	// Outbound integrations
	telegramService := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	emailService := services.NewEmailService(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom, cfg.EmailMaxAttempts)
	plumClient := services.NewPlumClient(services.PlumConfig{
		BaseURL:  cfg.PlumBaseURL,
		Username: cfg.PlumUsername,
		Password: cfg.PlumPassword,
		Enabled:  cfg.PlumEnabled,
	})
	media := services.NewCloudinaryStore(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
	google := services.NewGoogleAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)

	// Domain services
	tokens := services.NewTokenIssuer(users, cfg.JWTSecret, cfg.TokenExpires, cfg.TokenRenewBefore)
	otpService := services.NewOTPService(otps, emailService, plumClient)
	cartService := services.NewCartService(users, products)
	wishlistService := services.NewWishlistService(wishlists, products)
	enquiryService := services.NewEnquiryService(enquiries, products, products, users,
		services.NewEnquiryNotifications(telegramService, emailService))
	catalogService := services.NewCatalogService(products)

	gate := middleware.NewGate(tokens, cfg)
	requireUser := gate.RequireUser()

	authHandler := handlers.NewAuthHandler(users, tokens, gate, otpService, google, cfg)
	passwordResetHandler := handlers.NewPasswordResetHandler(users, otpService, tokens)
	productHandler := handlers.NewProductHandler(products, catalogService, users, media)
	cartHandler := handlers.NewCartHandler(cartService, cfg.CookieSecure)
	wishlistHandler := handlers.NewWishlistHandler(wishlistService)
	enquiryHandler := handlers.NewEnquiryHandler(enquiryService)
	profileHandler := handlers.NewProfileHandler(users)
	adminHandler := handlers.NewAdminHandler(users, products, enquiries, enquiryService)
	superAdminHandler := handlers.NewSuperAdminHandler(users, products, enquiries, enquiryService, tokens)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/email-otp", authHandler.SendEmailCode)
	auth.Post("/email-otp/verify", authHandler.VerifyEmailCode)
	auth.Post("/phone-otp", authHandler.SendPhoneCode)
	auth.Post("/phone-otp/verify", authHandler.VerifyPhoneCode)
	auth.Get("/google", authHandler.GoogleStart)
	auth.Get("/google/callback", authHandler.GoogleCallback)
	auth.Post("/forgot-password", passwordResetHandler.ForgotPassword)
	auth.Post("/reset-password", passwordResetHandler.ResetPassword)
	auth.Post("/logout", requireUser, authHandler.Logout)
	auth.Post("/logout-all", requireUser, authHandler.LogoutAll)
	auth.Get("/me", requireUser, authHandler.Me)

	// Catalog
	api.Get("/taxonomy", productHandler.Taxonomy)
	catalog := api.Group("/products")
	catalog.Get("/", productHandler.ListProducts)
	catalog.Get("/:id", gate.Optional(), productHandler.GetProduct)

	// Customer routes
	cart := api.Group("/cart", requireUser)
	cart.Get("/", cartHandler.GetCart)
	cart.Post("/", cartHandler.AddToCart)
	cart.Delete("/", cartHandler.ClearCart)
	cart.Put("/:ref", cartHandler.UpdateCartItem)
	cart.Delete("/:ref", cartHandler.RemoveCartItem)

	wishlist := api.Group("/wishlist", requireUser)
	wishlist.Get("/", wishlistHandler.GetWishlist)
	wishlist.Post("/", wishlistHandler.AddToWishlist)
	wishlist.Delete("/", wishlistHandler.ClearWishlist)
	wishlist.Delete("/:productId", wishlistHandler.RemoveFromWishlist)

	myEnquiries := api.Group("/enquiries", requireUser)
	myEnquiries.Post("/", enquiryHandler.CreateEnquiry)
	myEnquiries.Get("/", enquiryHandler.ListMyEnquiries)
	myEnquiries.Get("/:id", enquiryHandler.GetEnquiry)

	profile := api.Group("/profile", requireUser)
	profile.Get("/", profileHandler.GetProfile)
	profile.Put("/", profileHandler.UpdateProfile)
	profile.Get("/recently-viewed", productHandler.RecentlyViewed)
	profile.Get("/addresses", profileHandler.ListAddresses)
	profile.Post("/addresses", profileHandler.CreateAddress)
	profile.Put("/addresses/:id", profileHandler.UpdateAddress)
	profile.Delete("/addresses/:id", profileHandler.DeleteAddress)

	// Admin routes
	admin := api.Group("/admin", gate.RequireAdmin())
	admin.Get("/dashboard", adminHandler.Dashboard)
	admin.Get("/users", adminHandler.ListAllUsers)
	admin.Get("/products", productHandler.AdminListProducts)
	admin.Post("/products", productHandler.CreateProduct)
	admin.Put("/products/:id", productHandler.UpdateProduct)
	admin.Patch("/products/:id/variants/:variantId", productHandler.UpdateVariantStock)
	admin.Delete("/products/:id", productHandler.DeleteProduct)
	registerEnquiryStaffRoutes(admin, enquiryHandler)

	// Super-admin routes
	superAdmin := api.Group("/superadmin", gate.RequireSuperAdmin())
	superAdmin.Get("/dashboard", superAdminHandler.Dashboard)
	superAdmin.Get("/admins", superAdminHandler.ListAdmins)
	superAdmin.Post("/admins", superAdminHandler.CreateAdmin)
	superAdmin.Delete("/admins/:id", superAdminHandler.DeleteAdmin)
	superAdmin.Patch("/users/:id/role", superAdminHandler.ChangeRole)
	registerEnquiryStaffRoutes(superAdmin, enquiryHandler)
}

func registerEnquiryStaffRoutes(router fiber.Router, h *handlers.EnquiryHandler) {
	router.Get("/enquiries", h.ListAllEnquiries)
	router.Get("/enquiries/:id", h.GetEnquiry)
	router.Patch("/enquiries/:id", h.UpdateEnquiry)
}
