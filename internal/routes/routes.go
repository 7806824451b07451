package routes

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vacadoc/vacadoc/internal/app/domain/auth"
	"github.com/vacadoc/vacadoc/internal/app/domain/establishments"
	"github.com/vacadoc/vacadoc/internal/app/domain/messaging"
	"github.com/vacadoc/vacadoc/internal/app/domain/subscription"
	"github.com/vacadoc/vacadoc/internal/app/domain/vacations"
	"github.com/vacadoc/vacadoc/internal/app/middleware"
	"github.com/vacadoc/vacadoc/internal/app/models"
	"github.com/vacadoc/vacadoc/internal/pkg/cache"
	"github.com/vacadoc/vacadoc/internal/pkg/config"
	"github.com/vacadoc/vacadoc/internal/pkg/payments/stripe"
)

type AppHandlers struct {
	Auth           *auth.AuthHandlers
	Billing        *subscription.Handlers
	Vacations      *vacations.VacationHandlers
	Establishments *establishments.EstablishmentHandlers
	Messaging      *messaging.MessagingHandlers

	Coordinator *subscription.Coordinator
}

// Setup wires repositories, services and handlers and mounts every route
// on the engine. The Redis client may be nil; entitlement grace windows
// then live in process memory only.
func Setup(r *gin.Engine, dbPool *pgxpool.Pool, redisClient *redis.Client, cfg *config.Config, log *zap.Logger) {
	slogLog := slog.Default()

	handlers := setupDependencies(dbPool, redisClient, cfg, log, slogLog)
	setupRouter(r, handlers, cfg, log)
}

func setupDependencies(dbPool *pgxpool.Pool, redisClient *redis.Client, cfg *config.Config, log *zap.Logger, slogLog *slog.Logger) *AppHandlers {
	// shared activity cache behind the entitlement grace windows
	var activity cache.ActivityStore
	if redisClient != nil {
		activity = cache.NewRedisActivityStore(redisClient, log)
	} else {
		activity = cache.NewMemoryActivityStore()
	}

	var payments subscription.PaymentProvider
	if cfg.Stripe.SecretKey != "" {
		payments = stripe.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
	} else {
		log.Warn("Stripe not configured, billing endpoints answer 500 until STRIPE_SECRET_KEY is set")
	}

	subsRepo := subscription.NewPostgresRepository(dbPool, slogLog)
	subsService := subscription.NewService(subsRepo, payments, cfg, log)

	authRepo := auth.NewPostgresAuthRepo(dbPool, slogLog)
	authService := auth.NewAuthService(authRepo, subsService, cfg, log)

	// Fetchers run against the server lifetime, not a single request.
	coordinator := subscription.NewCoordinator(context.Background(), subsService, activity,
		func(userID string) (string, error) {
			return authService.MintAccessToken(context.Background(), userID)
		}, log)
	if ep := cfg.Subscription.StatusEndpoint; ep != "" {
		log.Info("Resolving subscription status against remote endpoint", zap.String("endpoint", ep))
		coordinator.UseRemoteStatus(ep)
	}

	vacationRepo := vacations.NewPostgresVacationRepo(dbPool, slogLog)
	vacationService := vacations.NewVacationService(vacationRepo, log)

	establishmentRepo := establishments.NewPostgresEstablishmentRepo(dbPool, slogLog)

	hub := messaging.NewHub(log)
	go hub.Run()
	messageRepo := messaging.NewPostgresMessageRepo(dbPool, slogLog)
	messageService := messaging.NewMessageService(messageRepo, hub, log)

	return &AppHandlers{
		Auth:           auth.NewAuthHandlers(authService, log),
		Billing:        subscription.NewHandlers(subsService, coordinator, log),
		Vacations:      vacations.NewVacationHandlers(vacationService, log),
		Establishments: establishments.NewEstablishmentHandlers(establishmentRepo, log),
		Messaging:      messaging.NewMessagingHandlers(messageService, hub, log),
		Coordinator:    coordinator,
	}
}

func setupRouter(r *gin.Engine, h *AppHandlers, cfg *config.Config, log *zap.Logger) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	jwtConfig := middleware.JWTConfig{
		SecretKey:       cfg.JWT.SecretKey,
		TokenExpiration: cfg.JWT.AccessTokenTTL,
		Logger:          log,
	}

	api := r.Group("/api/v1")

	// processor callbacks authenticate by signature, not session
	api.POST("/billing/webhook", h.Billing.Webhook)

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.Refresh)
		authGroup.POST("/logout", h.Auth.Logout)
	}

	authed := api.Group("")
	authed.Use(middleware.JWTAuthMiddleware(jwtConfig))
	{
		authed.GET("/auth/me", h.Auth.Me)
		authed.PUT("/auth/password", h.Auth.UpdatePassword)

		authed.GET("/subscription/status", h.Billing.GetStatus)
		authed.POST("/subscription/sync", h.Billing.SyncPlan)
		authed.POST("/subscription/refresh", h.Billing.RefreshEntitlement)

		billing := authed.Group("/billing")
		{
			billing.POST("/portal", h.Billing.Portal)
			billing.POST("/checkout", h.Billing.Checkout)
		}

		authed.GET("/vacations", h.Vacations.Search)
		authed.GET("/vacations/:id", h.Vacations.Get)
		authed.POST("/vacations/:id/book",
			middleware.RequireRole(models.RoleEstablishment), h.Vacations.Book)

		// posting and managing availability is the doctors' paid feature
		doctorGroup := authed.Group("")
		doctorGroup.Use(middleware.RequireRole(models.RoleDoctor))
		doctorGroup.Use(middleware.EntitlementGuard(h.Coordinator, log))
		{
			doctorGroup.POST("/vacations", h.Vacations.Create)
			doctorGroup.GET("/vacations/mine", h.Vacations.ListMine)
			doctorGroup.DELETE("/vacations/:id", h.Vacations.Cancel)
			doctorGroup.POST("/vacations/:id/confirm", h.Vacations.Confirm)
		}

		establishmentGroup := authed.Group("/establishments")
		establishmentGroup.Use(middleware.RequireRole(models.RoleEstablishment))
		{
			establishmentGroup.GET("/me", h.Establishments.GetProfile)
			establishmentGroup.PUT("/me", h.Establishments.SaveProfile)
		}

		authed.POST("/conversations", h.Messaging.StartConversation)
		authed.GET("/conversations", h.Messaging.ListConversations)
		authed.GET("/conversations/:id/messages", h.Messaging.History)
		authed.POST("/conversations/:id/messages", h.Messaging.Send)
		authed.GET("/ws", h.Messaging.Connect)
	}
}
