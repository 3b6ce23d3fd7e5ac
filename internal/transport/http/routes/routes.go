package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/annamusic/anna-api/internal/infra/config"
	appRedis "github.com/annamusic/anna-api/internal/infra/redis"
	"github.com/annamusic/anna-api/internal/infra/security"
	"github.com/annamusic/anna-api/internal/transport/http/handlers"
	"github.com/annamusic/anna-api/internal/transport/http/middleware"
	"github.com/annamusic/anna-api/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth          *usecase.AuthService
	Registration  *usecase.RegistrationService
	Verification  *usecase.VerificationService
	PasswordReset *usecase.PasswordResetService
	Profiles      *usecase.ProfileService
	Catalog       *usecase.CatalogService
	Audit         *usecase.AuditService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Sessions    *security.SessionIssuer
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Services    ServiceSet
	Postgres    *pgxpool.Pool
	Redis       *appRedis.Client
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.CORS.AllowedOrigins))
	r.Use(deps.Metrics.Handler())

	authMiddleware := middleware.RequireAuth(deps.Sessions)
	adminOnly := middleware.RequireRole("admin")

	healthHandler := handlers.NewHealthHandler(deps.Postgres, deps.Redis)
	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	cookies := handlers.CookieSettings{
		Domain: deps.Config.Session.CookieDomain,
		Secure: deps.Config.App.Env == "production",
	}

	authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Services.Registration, deps.Services.Verification, cookies)
	passwordHandler := handlers.NewPasswordHandler(deps.Services.PasswordReset, authHandler)
	profileHandler := handlers.NewProfileHandler(deps.Services.Profiles)
	catalogHandler := handlers.NewCatalogHandler(deps.Services.Catalog)
	auditHandler := handlers.NewAuditHandler(deps.Services.Audit)

	api := r.Group("/api")
	api.Use(middleware.CSRF())
	{
		api.GET("/csrf-token", authHandler.CSRFToken)

		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", append(buildLoginMiddlewares(deps), authHandler.Login)...)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
			authGroup.GET("/check-auth", authMiddleware, authHandler.CheckAuth)
			authGroup.POST("/verify-otp", authHandler.VerifyOTP)
			authGroup.POST("/resend-otp", authHandler.ResendOTP)
			authGroup.POST("/forgotPassword", passwordHandler.ForgotPassword)
			authGroup.POST("/reset-password", passwordHandler.ResetPassword)
			authGroup.GET("/profile", authMiddleware, profileHandler.GetProfile)
			authGroup.PUT("/update-profile", append(append([]gin.HandlerFunc{authMiddleware}, buildProfileMiddlewares(deps)...), profileHandler.UpdateProfile)...)
			authGroup.GET("/users", authMiddleware, adminOnly, profileHandler.ListUsers)
		}

		api.GET("/audit-logs", authMiddleware, adminOnly, auditHandler.List)

		songsGroup := api.Group("/songs")
		{
			songsGroup.GET("", catalogHandler.ListSongs)
			songsGroup.GET("/:id", catalogHandler.GetSong)
			songsGroup.POST("", authMiddleware, adminOnly, catalogHandler.CreateSong)
			songsGroup.PUT("/:id", authMiddleware, adminOnly, catalogHandler.UpdateSong)
			songsGroup.DELETE("/:id", authMiddleware, adminOnly, catalogHandler.DeleteSong)
		}

		favoritesGroup := api.Group("/favorites")
		favoritesGroup.Use(authMiddleware)
		{
			favoritesGroup.GET("", catalogHandler.GetFavorites)
			favoritesGroup.POST("/toggle", catalogHandler.ToggleFavorite)
		}
	}

	return r
}

func buildLoginMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.LoginMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = 15 * time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       "auth_login_ip",
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}

func buildProfileMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.ProfileMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = 15 * time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       "profile_update_ip",
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
