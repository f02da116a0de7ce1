package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/hugh/funnel-builder/internal/api/handlers"
	"github.com/hugh/funnel-builder/internal/api/middleware"
	"github.com/hugh/funnel-builder/internal/auth"
	"github.com/hugh/funnel-builder/internal/billing"
	"github.com/hugh/funnel-builder/internal/domains"
	"github.com/hugh/funnel-builder/internal/funnels"
	"github.com/hugh/funnel-builder/internal/images"
	"github.com/hugh/funnel-builder/internal/integrations"
	"github.com/hugh/funnel-builder/internal/metrics"
	"github.com/hugh/funnel-builder/internal/workspace"
)

type Router struct {
	chi.Router
}

// Services are the domain services the handlers delegate to.
type Services struct {
	Auth         *auth.Service
	Workspaces   *workspace.Service
	Funnels      *funnels.Service
	Domains      *domains.Service
	Images       *images.Service
	Billing      *billing.Service
	Integrations *integrations.Service
}

type RouterConfig struct {
	DB         *gorm.DB
	Redis      *redis.Client
	Logger     *slog.Logger
	JWTService *auth.JWTService
	Metrics    *metrics.Metrics
	Services   Services

	AllowedOrigins []string
	// RateLimiter covers the API; AuthLimiter additionally guards register
	// and login. Either may be nil.
	RateLimiter   middleware.Limiter
	AuthLimiter   middleware.Limiter
	WebhookSecret string
	SecureCookies bool
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Auth-Token"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// The general limiter keys by user on authenticated routes, so it runs
	// after Auth there and by IP everywhere else.
	limit := func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(middleware.RateLimit(cfg.RateLimiter, cfg.Logger))
		}
	}

	s := cfg.Services
	expiry := 24 * time.Hour
	if cfg.JWTService != nil {
		expiry = cfg.JWTService.Expiry()
	}

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(s.Auth, expiry, cfg.SecureCookies, cfg.Logger)
	workspaceHandler := handlers.NewWorkspaceHandler(s.Workspaces, cfg.Logger)
	funnelHandler := handlers.NewFunnelHandler(s.Funnels, cfg.Logger)
	domainHandler := handlers.NewDomainHandler(s.Domains, cfg.Logger)
	imageHandler := handlers.NewImageHandler(s.Images, cfg.Logger)
	billingHandler := handlers.NewBillingHandler(s.Billing, cfg.WebhookSecret, cfg.Logger)
	integrationHandler := handlers.NewIntegrationHandler(s.Integrations, cfg.Logger)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			limit(r)
			r.Post("/auth/logout", authHandler.Logout)
			r.Group(func(r chi.Router) {
				if cfg.AuthLimiter != nil {
					r.Use(middleware.RateLimit(cfg.AuthLimiter, cfg.Logger))
				}
				r.Post("/auth/register", authHandler.Register)
				r.Post("/auth/login", authHandler.Login)
			})
		})

		// Authenticated by shared secret, not a user token.
		r.Post("/webhooks/payments", billingHandler.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTService))
			limit(r)

			r.Get("/me", authHandler.Me)
			r.Post("/invitations/{token}/accept", workspaceHandler.AcceptInvitation)

			r.Route("/workspaces", func(r chi.Router) {
				r.Get("/", workspaceHandler.List)
				r.Post("/", workspaceHandler.Create)

				r.Route("/{workspaceID}", func(r chi.Router) {
					r.Get("/", workspaceHandler.Get)
					r.Put("/", workspaceHandler.Update)
					r.Delete("/", workspaceHandler.Delete)
					r.Get("/usage", workspaceHandler.Usage)

					r.Get("/members", workspaceHandler.ListMembers)
					r.Put("/members/{userID}", workspaceHandler.UpdateMember)
					r.Delete("/members/{userID}", workspaceHandler.RemoveMember)
					r.Post("/invitations", workspaceHandler.Invite)

					r.Route("/funnels", func(r chi.Router) {
						r.Get("/", funnelHandler.List)
						r.Post("/", funnelHandler.Create)
						r.Route("/{funnelID}", func(r chi.Router) {
							r.Get("/", funnelHandler.Get)
							r.Put("/", funnelHandler.Update)
							r.Delete("/", funnelHandler.Delete)
							r.Put("/published", funnelHandler.Publish)

							r.Get("/pages", funnelHandler.ListPages)
							r.Post("/pages", funnelHandler.CreatePage)
							r.Put("/pages/order", funnelHandler.ReorderPages)
							r.Put("/pages/{pageID}", funnelHandler.UpdatePage)
							r.Delete("/pages/{pageID}", funnelHandler.DeletePage)
						})
					})

					r.Route("/domains", func(r chi.Router) {
						r.Get("/", domainHandler.List)
						r.Post("/", domainHandler.Create)
						r.Delete("/{domainID}", domainHandler.Delete)
						r.Post("/{domainID}/refresh", domainHandler.Refresh)
						r.Put("/{domainID}/funnel", domainHandler.Connect)
					})

					r.Route("/images", func(r chi.Router) {
						r.Get("/", imageHandler.List)
						r.Post("/", imageHandler.Upload)
						r.Delete("/{imageID}", imageHandler.Delete)
					})

					r.Get("/addons", billingHandler.ListAddOns)

					r.Route("/integrations/circle", func(r chi.Router) {
						r.Get("/", integrationHandler.CircleStatus)
						r.Put("/", integrationHandler.SaveCircle)
						r.Delete("/", integrationHandler.RemoveCircle)
						r.Get("/registrations", integrationHandler.ListRegistrations)
					})
				})
			})
		})
	})

	return &Router{r}
}
