package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/authhub/internal/auth"
	"github.com/geocoder89/authhub/internal/config"
	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/http/handlers"
	"github.com/geocoder89/authhub/internal/http/middlewares"
	"github.com/geocoder89/authhub/internal/observability"
	"github.com/geocoder89/authhub/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps are the collaborators the router wires into handlers and middlewares.
type Deps struct {
	Users  user.Store
	Tokens *auth.Manager
	Hasher *security.Hasher

	// optional; metrics are off when nil
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
}

func NewRouter(log *slog.Logger, cfg config.Config, deps Deps) *gin.Engine {
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(middlewares.Recovery(log))
	r.Use(middlewares.RequestID())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders(cfg.IsProduction()))
	r.Use(middlewares.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "Auth API is running",
		})
	})

	// health
	ping := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
		defer cancel()

		return deps.Users.Ping(ctx)
	}

	hh := handlers.NewHealthHandler(ping)
	r.GET("/healthz", hh.Healthz)
	r.GET("/readyz", hh.Readyz)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// Wire up handlers
	authHandler := handlers.NewAuthHandler(deps.Users, deps.Hasher, deps.Tokens, cfg, deps.Prom, log)
	guard := middlewares.NewAuthMiddleware(deps.Tokens, deps.Users, deps.Prom, log)

	api := r.Group("/api/auth")
	api.Use(middlewares.RequireJSON())
	{
		api.POST("/register", authHandler.Register)
		api.POST("/login", authHandler.Login)
		api.GET("/logout", authHandler.Logout)

		protected := api.Group("")
		protected.Use(guard.RequireAuth())

		protected.GET("/me", authHandler.Me)
		protected.GET("/profile", authHandler.Me)
		protected.PATCH("/profile", authHandler.UpdateProfile)
		protected.DELETE("/delete", middlewares.RestrictTo(user.RoleAdmin), authHandler.DeleteAll)
	}

	r.NoRoute(func(c *gin.Context) {
		handlers.RespondNotFound(c, "Route not found")
	})

	return r
}
