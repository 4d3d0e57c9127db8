package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/marcwilhelm/authhub/internal/auth"
	"github.com/marcwilhelm/authhub/internal/config"
	"github.com/marcwilhelm/authhub/internal/domain/user"
	"github.com/marcwilhelm/authhub/internal/http/handlers"
	"github.com/marcwilhelm/authhub/internal/http/middlewares"
	"github.com/marcwilhelm/authhub/internal/mail"
	"github.com/marcwilhelm/authhub/internal/observability"
	"github.com/marcwilhelm/authhub/internal/redisclient"
	"github.com/marcwilhelm/authhub/internal/repo/postgres"
	"github.com/marcwilhelm/authhub/internal/service"
)

func NewRouter(log *slog.Logger, cfg config.Config, pool *pgxpool.Pool, redis *redisclient.Client) *gin.Engine {
	if cfg.Env != "dev" && cfg.Env != "test" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware([]string{cfg.AppBaseURL}))
	r.Use(middlewares.RequireJSON())
	r.Use(middlewares.MaxBodyBytes(1 << 20))
	r.Use(otelgin.Middleware("authhub"))
	r.Use(prom.GinHandleMiddleware())

	// health + metrics

	dbPing := func(ctx context.Context) error {
		if pool == nil {
			return nil
		}

		pctx, cancel := context.WithTimeout(ctx, 1*time.Second)
		defer cancel()

		return pool.Ping(pctx)
	}

	redisPing := func(ctx context.Context) error {
		if redis == nil {
			return nil
		}
		return redis.Ping(ctx)
	}

	h := handlers.NewHealthHandler(dbPing, redisPing)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// wire up the core

	tokens := auth.NewManager(
		cfg.AccessSecret, cfg.RefreshSecret, cfg.ResetSecret,
		cfg.AccessTTL, cfg.RefreshTTL, cfg.ResetTTL,
	)

	usersRepo := postgres.NewUsersRepo(pool, prom)

	var mailer mail.Mailer

	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		mailer = mail.NewLogMailer()
	}

	mailer = mail.NewMetricsMailer(mail.NewProtectedMailer(mailer, mail.ProtectedMailerConfig{}), prom)

	authSvc := service.NewAuthService(usersRepo, tokens, mailer, log, cfg.AppBaseURL)
	userSvc := service.NewUserService(usersRepo)

	authHandler := handlers.NewAuthHandler(handlers.NewMetricsAuthenticator(authSvc, prom))
	usersHandler := handlers.NewUsersHandler(userSvc, authSvc)

	authGuard := middlewares.NewAuthMiddleware(tokens, usersRepo)

	var credentialLimit gin.HandlerFunc

	if redis != nil {
		limiter := middlewares.NewRateLimiter(redis.Raw(), cfg.AuthRateLimit, cfg.AuthRateWindow)
		credentialLimit = limiter.Middleware(nil)
	} else {
		credentialLimit = func(c *gin.Context) { c.Next() }
	}

	// routes

	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", credentialLimit, authHandler.Register)
		authRoutes.POST("/login", credentialLimit, authHandler.Login)
		authRoutes.POST("/refresh", authHandler.Refresh)
		authRoutes.POST("/logout", authGuard.RequireAuth(), authHandler.Logout)
		authRoutes.POST("/forgot-password", credentialLimit, authHandler.ForgotPassword)
		authRoutes.POST("/reset-password", authHandler.ResetPassword)
	}

	userRoutes := r.Group("/users", authGuard.RequireAuth())
	{
		userRoutes.GET("/profile", usersHandler.GetProfile)
		userRoutes.PUT("/profile", usersHandler.UpdateProfile)
		userRoutes.PUT("/change-password", usersHandler.ChangePassword)

		admin := userRoutes.Group("", authGuard.RequireRole(user.RoleAdmin))
		{
			admin.GET("", usersHandler.ListUsers)
			admin.GET("/:id", usersHandler.GetUser)
			admin.DELETE("/:id", usersHandler.DeleteUser)
		}
	}

	return r
}
