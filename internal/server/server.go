package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"
	custommiddleware "storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies are the backing services the router is built on.
// Database and Redis may be nil; health then reports them as absent.
type Dependencies struct {
	Store    repository.Store
	Database database.Service
	Redis    *redis.Client
}

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	deps   Dependencies
}

// NewRouter wires every route of the API
func NewRouter(cfg *config.Config, logger *zap.Logger, deps Dependencies) http.Handler {
	router := chi.NewRouter()

	// Add basic middleware
	router.Use(custommiddleware.DefaultMiddlewareStack(cfg.Server.RequestTimeout)...)
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.IsDevelopment()))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))

	router.Get("/health", healthHandler(deps))

	// Initialize services
	userService := service.NewUserService(deps.Store, cfg.JWT, cfg.Auth, logger)
	productService := service.NewProductService(deps.Store, logger)
	cartService := service.NewCartService(deps.Store, logger)
	orderService := service.NewOrderService(deps.Store, cfg.Orders, logger)

	// Create auth middleware
	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	adminSecret := custommiddleware.RequireAdminSecret(cfg.Auth.AdminSecret, logger)

	var identityLimit func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled && deps.Redis != nil {
		identityLimit = custommiddleware.RateLimitMiddleware(deps.Redis, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
			Window:            cfg.RateLimit.Window,
			KeyPrefix:         "rate_limit:identity",
		}, logger)
	}

	// Register routes
	transport.NewUserHandler(userService, logger).RegisterRoutes(router, authMiddleware, identityLimit)
	transport.NewProductHandler(productService, logger).RegisterRoutes(router, adminSecret)
	transport.NewCartHandler(cartService, logger).RegisterRoutes(router)
	transport.NewOrderHandler(orderService, logger).RegisterRoutes(router, authMiddleware)

	return router
}

// healthHandler reports liveness plus the state of the database and Redis
func healthHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]interface{}{"status": "ok"}

		if deps.Database != nil {
			dbHealth := deps.Database.Health()
			body["database"] = dbHealth
			if dbHealth["status"] != "up" {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}

		if deps.Redis != nil {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			defer cancel()
			if err := deps.Redis.Ping(ctx).Err(); err != nil {
				// Rate limiting fails open, so Redis alone does not degrade the API
				body["redis"] = map[string]string{"status": "down", "error": err.Error()}
			} else {
				body["redis"] = map[string]string{"status": "up"}
			}
		}

		custommiddleware.RespondWithJSON(w, status, body)
	}
}

func NewServer(cfg *config.Config, logger *zap.Logger, db database.Service, redisClient *redis.Client) *Server {
	deps := Dependencies{
		Store:    repository.NewStore(db.DB()),
		Database: db,
		Redis:    redisClient,
	}

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      NewRouter(cfg, logger, deps),
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
		deps:   deps,
	}

	return server
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.deps.Redis != nil {
		if err := s.deps.Redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	// Close database connection
	if s.deps.Database != nil {
		if err := s.deps.Database.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	_ = s.logger.Sync()
	return nil
}
