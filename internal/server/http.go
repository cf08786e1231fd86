// Package server assembles the gin engine: middleware chain, route groups, and
// the health endpoint.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	authhandler "claims-portal/backend/internal/auth/handler"
	claimhandler "claims-portal/backend/internal/claim/handler"
	"claims-portal/backend/internal/config"
	"claims-portal/backend/internal/otp/devotp"
	"claims-portal/backend/internal/security"
	"claims-portal/backend/internal/server/middleware"
)

// Pinger is the readiness probe for the database, satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is the readiness probe for the policy engine.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the handler and infra dependencies the router mounts.
type Deps struct {
	Auth   *authhandler.AuthHandler
	Claims *claimhandler.ClaimHandler
	// Tokens and Sessions back the auth middleware.
	Tokens   *security.TokenProvider
	Sessions middleware.SessionGetter
	// Redis enables the OTP-endpoint rate limiter when non-nil.
	Redis *redis.Client
	// DevOTPStore mounts GET /api/dev/otp when non-nil. Never set in production.
	DevOTPStore devotp.Store
	// DB and Policy back the health endpoint; either may be nil.
	DB     Pinger
	Policy PolicyChecker
}

// NewRouter builds the gin engine with CORS, telemetry, auth, and all routes.
func NewRouter(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Telemetry("claims-api"))

	corsCfg := cors.DefaultConfig()
	if origins := cfg.CORSOrigins(); len(origins) > 0 {
		corsCfg.AllowOrigins = origins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowCredentials = !corsCfg.AllowAllOrigins
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", healthHandler(deps.DB, deps.Policy))

	api := r.Group("/api")
	authed := api.Group("")
	authed.Use(middleware.Auth(deps.Tokens, deps.Sessions))

	if deps.Auth != nil {
		deps.Auth.Register(api, authed)
	}
	if deps.Claims != nil {
		// OTP endpoints additionally get the rate limiter to slow code guessing.
		limited := api.Group("")
		limited.Use(middleware.Auth(deps.Tokens, deps.Sessions))
		limited.Use(middleware.RateLimit(deps.Redis, 10, time.Minute))
		deps.Claims.Register(authed, limited)
	}

	if deps.DevOTPStore != nil {
		authed.GET("/dev/otp", devotp.Handler(deps.DevOTPStore))
	}

	return r
}

// healthHandler reports readiness: DB reachable and the policy engine able to
// compile and evaluate its default policy. Probes not wired are skipped.
func healthHandler(db Pinger, policy PolicyChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		checks := gin.H{}
		healthy := true
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				checks["database"] = "unreachable"
				healthy = false
			} else {
				checks["database"] = "ok"
			}
		}
		if policy != nil {
			if err := policy.HealthCheck(ctx); err != nil {
				checks["policy"] = "failing"
				healthy = false
			} else {
				checks["policy"] = "ok"
			}
		}
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"healthy": healthy, "checks": checks})
	}
}
