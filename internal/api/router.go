package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	_ "github.com/atlasagent/agent-gateway/docs"
	"github.com/atlasagent/agent-gateway/internal/api/handler"
	"github.com/atlasagent/agent-gateway/internal/api/middleware"
	"github.com/atlasagent/agent-gateway/internal/core/ports"
)

const bodyLimit = "1M"

// Dependencies are the services the HTTP layer is built on.
type Dependencies struct {
	Auth    ports.AuthService
	Broker  ports.SessionBroker
	Exec    ports.ExecutionService
	Catalog ports.ProviderCatalog
	Health  []handler.HealthCheck

	// LoginRatePerMin caps login attempts per client IP on both front doors.
	// Zero disables the limit.
	LoginRatePerMin int
	// Registerer receives the HTTP metrics; nil means the default registry.
	Registerer prometheus.Registerer
	Log        zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(accessLog(deps.Log))
	e.Use(echomiddleware.BodyLimit(bodyLimit))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "http",
		Registerer: deps.Registerer,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || strings.HasPrefix(c.Path(), "/swagger")
		},
	}))

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(deps.Auth)
	userHandler := handler.NewUserHandler(deps.Auth)
	agentHandler := handler.NewAgentHandler(deps.Exec)
	memoryHandler := handler.NewMemoryHandler(deps.Exec)
	extensionHandler := handler.NewExtensionHandler(deps.Broker, deps.Exec, deps.Catalog)
	healthHandler := handler.NewHealthHandler(deps.Health...)

	loginLimit := loginRateLimiter(deps.LoginRatePerMin)
	requireIdentity := middleware.Auth(deps.Auth)
	requireSession := middleware.ExtensionSession(deps.Broker)

	// --- Auth routes ---
	e.POST("/auth/register", authHandler.Register, loginLimit)
	e.POST("/auth/login", authHandler.Login, loginLimit)

	// --- Direct API (identity token) ---
	v1 := e.Group("/v1", requireIdentity)
	v1.GET("/users/me", userHandler.Me)
	v1.DELETE("/users/me", userHandler.Deactivate)
	v1.GET("/users/me/provider-keys", userHandler.ProviderKeys)
	v1.PUT("/users/me/provider-keys", userHandler.UpdateProviderKeys)
	v1.GET("/providers", agentHandler.Providers)
	v1.POST("/agent/:provider/execute", agentHandler.Execute)
	v1.GET("/memory/history", memoryHandler.History)
	v1.GET("/memory/search", memoryHandler.Search)

	// --- Extension bridge (session token) ---
	ext := e.Group("/api/extension")
	ext.POST("/login", extensionHandler.Login, loginLimit)
	ext.POST("/logout", extensionHandler.Logout)
	ext.GET("/status", extensionHandler.Status, requireSession)
	ext.POST("/execute", extensionHandler.Execute, requireSession)
	ext.GET("/providers", extensionHandler.Providers, requireSession)

	// --- Operational ---
	e.GET("/health", healthHandler.Liveness)        // liveness: is the process alive?
	e.GET("/health/ready", healthHandler.Readiness) // readiness: are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

// accessLog writes one zerolog event per request.
func accessLog(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}

// loginRateLimiter throttles credential checks per client IP.
func loginRateLimiter(perMinute int) echo.MiddlewareFunc {
	if perMinute <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	store := echomiddleware.NewRateLimiterMemoryStoreWithConfig(echomiddleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(perMinute) / 60),
		Burst:     max(1, perMinute/6),
		ExpiresIn: 3 * time.Minute,
	})
	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "cannot identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts")
		},
	})
}
