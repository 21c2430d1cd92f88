package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/stagepass/stagepass/internal/auth"
	"github.com/stagepass/stagepass/internal/config"
	"github.com/stagepass/stagepass/internal/domain/user"
	"github.com/stagepass/stagepass/internal/http/handlers"
	"github.com/stagepass/stagepass/internal/http/middlewares"
	"github.com/stagepass/stagepass/internal/observability"
	"github.com/stagepass/stagepass/internal/queue/redisclient"
	"github.com/stagepass/stagepass/internal/repo/postgres"
)

type Deps struct {
	Cfg   config.Config
	Pool  *pgxpool.Pool
	Redis *redisclient.Client // optional worker wake signal
	Prom  *observability.Prom
	JWT   *auth.Manager
}

func NewRouter(d Deps) *gin.Engine {
	if d.Cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("stagepass-api"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(d.Cfg.CORSOrigins))
	r.Use(middlewares.RequireJSON())
	r.Use(middlewares.MaxBodyBytes(1 << 20)) // 1 MiB

	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// repositories
	usersRepo := postgres.NewUsersRepo(d.Pool)
	tokensRepo := postgres.NewActionTokensRepo(d.Pool)
	jobsRepo := postgres.NewJobsRepo(d.Pool, d.Prom)
	authStore := postgres.NewAuthStore(d.Pool, usersRepo, tokensRepo, jobsRepo)

	var nudger handlers.JobNudger
	if d.Redis != nil {
		nudger = d.Redis
	}

	mailer := handlers.NewMailer(authStore, nudger, d.Cfg.ResetTokenTTL, d.Cfg.VerifyTokenTTL)

	// handlers
	healthHandler := handlers.NewHealthHandler(d.Pool)
	authHandler := handlers.NewAuthHandler(usersRepo, d.JWT, mailer)
	passwordHandler := handlers.NewPasswordHandler(usersRepo, authStore, mailer)
	adminJobsHandler := handlers.NewAdminJobsHandler(jobsRepo)

	authMW := middlewares.NewAuthMiddleware(d.JWT, usersRepo)

	// one bucket per IP on the endpoints that take credentials or mint
	// tokens for anonymous callers
	credLimiter := middlewares.NewRateLimiter(10, time.Minute)
	limited := credLimiter.RateLimiterMiddleware(middlewares.KeyByIP)

	// password changes are keyed per user so one noisy account cannot
	// exhaust a shared NAT bucket
	changeLimiter := middlewares.NewRateLimiter(5, time.Minute)
	changeLimited := changeLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP)

	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/readyz", healthHandler.Readyz)

	ag := r.Group("/auth")
	{
		ag.POST("/register", limited, authHandler.Register)
		ag.POST("/login", limited, authHandler.Login)
		ag.POST("/refresh", limited, authHandler.Refresh)
		ag.POST("/forgot-password", limited, passwordHandler.ForgotPassword)
		ag.POST("/reset-password", limited, passwordHandler.ResetPassword)
		ag.POST("/verify-email", limited, passwordHandler.VerifyEmail)

		ag.GET("/me", authMW.RequireAuth(), authHandler.Me)
		ag.POST("/logout", authMW.RequireAuth(), authHandler.Logout)
		ag.PUT("/change-password", authMW.RequireAuth(), changeLimited, passwordHandler.ChangePassword)
	}

	admin := r.Group("/admin", authMW.RequireAuth(), authMW.RequireRole(user.RoleBandManager))
	{
		admin.GET("/jobs", adminJobsHandler.List)
		admin.GET("/jobs/:id", adminJobsHandler.GetByID)
		admin.POST("/jobs/:id/retry", adminJobsHandler.Retry)
		admin.POST("/jobs/reprocess-dead", adminJobsHandler.ReprocessDead)
	}

	return r
}
