package router

import (
	"context"
	"time"

	"possales/internal/access"
	"possales/internal/config"
	"possales/internal/handler"
	"possales/internal/infra"
	"possales/internal/middleware"
	"possales/internal/repository"
	"possales/internal/service"
	"possales/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services are the business operations the HTTP layer exposes.
type Services struct {
	Auth       service.AuthService
	Products   service.ProductService
	Categories service.CategoryService
	Sales      service.SaleService
}

// NewServices wires repositories, the product cache and the report queue.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func NewServices(cfg *config.Config, db *gorm.DB, rdb *redis.Client) Services {
	// ── Repositories ─────────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	uow := repository.NewUnitOfWork(db)

	// ── Infrastructure ───────────────────────────────────────────────────────
	cache := infra.NewProductCache(rdb, cfg.ProductCacheTTL())
	dispatcher := worker.NewDispatcher(rdb)

	// ── Services ─────────────────────────────────────────────────────────────
	return Services{
		Auth:       service.NewAuthService(userRepo, cfg),
		Products:   service.NewProductService(productRepo, categoryRepo, cache),
		Categories: service.NewCategoryService(categoryRepo, productRepo),
		Sales: service.NewSaleService(uow, saleRepo, cache, dispatcher, service.SaleServiceConfig{
			MaxRetries: cfg.SaleMaxRetries,
			Location:   cfg.ReportLocation(),
		}),
	}
}

// New returns the configured Gin engine. ctx stops the rate limiters'
// background purge.
func New(ctx context.Context, cfg *config.Config, svcs Services, health gin.HandlerFunc) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	apiLimiter := middleware.NewLimiter("api", 1000, time.Minute)
	loginLimiter := middleware.NewLimiter("login", 20, time.Minute)
	go apiLimiter.Run(ctx)
	go loginLimiter.Run(ctx)

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(middleware.ErrorHandler())
	r.Use(apiLimiter.Middleware("too many requests, try again shortly"))

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(svcs.Auth)
	usersH := handler.NewUsersHandler(svcs.Auth)
	productsH := handler.NewProductsHandler(svcs.Products)
	categoriesH := handler.NewCategoriesHandler(svcs.Categories)
	salesH := handler.NewSalesHandler(svcs.Sales)

	// ── Routes ───────────────────────────────────────────────────────────────

	r.GET("/health", health)

	api := r.Group("/api", middleware.Timeout(cfg.RequestTimeout()))

	auth := api.Group("/auth")
	{
		auth.POST("/login", loginLimiter.Middleware("too many login attempts, try again in a minute"), authH.Login)
		auth.POST("/refresh", authH.Refresh)
	}

	protected := api.Group("", middleware.JWTAuth(cfg.JWTSecret))
	{
		protected.GET("/auth/me", authH.Me)

		users := protected.Group("/users", middleware.RequireCapability(access.CapManageUsers))
		{
			users.GET("", usersH.List)
			users.POST("", usersH.Create)
			users.PUT("/:id", usersH.Update)
			users.DELETE("/:id", usersH.Delete)
		}

		readCatalog := middleware.RequireCapability(access.CapReadCatalog)
		writeCatalog := middleware.RequireCapability(access.CapWriteCatalog)

		protected.GET("/categories", readCatalog, categoriesH.List)
		protected.POST("/categories", writeCatalog, categoriesH.Create)
		protected.PUT("/categories/:id", writeCatalog, categoriesH.Update)
		protected.DELETE("/categories/:id", writeCatalog, categoriesH.Delete)

		protected.GET("/products", readCatalog, productsH.List)
		protected.GET("/products/:id", readCatalog, productsH.Get)
		protected.POST("/products", writeCatalog, productsH.Create)
		protected.PUT("/products/:id", writeCatalog, productsH.Update)
		protected.PUT("/products/:id/stock", writeCatalog, productsH.SetStock)
		protected.DELETE("/products/:id", writeCatalog, productsH.Delete)

		// The sale engine checks capabilities itself.
		sales := protected.Group("/sales")
		{
			sales.POST("", salesH.Create)
			sales.GET("", salesH.List)
			sales.GET("/reports/summary", salesH.Summary)
			sales.POST("/reports/summary/email", salesH.EmailSummary)
			sales.GET("/:id", salesH.Get)
			sales.GET("/:id/receipt.pdf", salesH.Receipt)
			sales.DELETE("/:id", salesH.Delete)
		}
	}

	// Swagger UI outside production only
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.NoRoute(handler.SPA(cfg.StaticDir))

	return r
}
