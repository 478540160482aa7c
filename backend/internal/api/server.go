package api

import (
	"context"
	"net/http"
	"time"

	"circlenet/backend/internal/metrics"
	"circlenet/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// Deps are the services the HTTP layer dispatches to
type Deps struct {
	Tokens        TokenValidator
	Auth          AuthService
	Profiles      ProfileService
	Connections   ConnectionService
	Communities   CommunityService
	Messaging     MessagingService
	Agents        AgentService
	Opportunities OpportunityService
	Marketplace   MarketplaceService

	// Health lists named dependencies checked by /health
	Health map[string]Pinger
}

// Options tune the router
type Options struct {
	Collector      *metrics.Collector
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
}

type handler struct {
	deps Deps
}

// NewRouter builds the gin engine with every route mounted
func NewRouter(deps Deps, opts Options) *gin.Engine {
	log := logger.Named("http")

	router := gin.New()
	router.Use(requestLogger(log))
	router.Use(gin.Recovery())
	router.Use(observe(opts.Collector))
	router.Use(cors(opts.AllowedOrigins))

	h := &handler{deps: deps}

	router.GET("/health", h.health)
	if opts.Collector != nil {
		router.GET("/metrics", gin.WrapH(opts.Collector.Handler()))
	}

	v1 := router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	if opts.RateLimitRPS > 0 {
		authGroup.Use(newIPLimiter(opts.RateLimitRPS, opts.RateLimitBurst).middleware())
	}
	authGroup.POST("/signup", h.signup)
	authGroup.POST("/login", h.login)
	authGroup.POST("/refresh", h.refresh)
	authGroup.POST("/otp/send", h.sendOTP)
	authGroup.POST("/otp/verify", h.verifyOTP)
	authGroup.POST("/password/reset", h.resetPassword)

	v1.GET("/circles/taxonomy", h.taxonomy)
	v1.GET("/vibes/catalogue", h.vibeCatalogue)

	private := v1.Group("")
	private.Use(authRequired(deps.Tokens))

	private.GET("/me", h.me)
	private.POST("/me/password", h.changePassword)
	private.DELETE("/me", h.deleteAccount)

	h.mountProfiles(private)
	h.mountConnections(private)
	h.mountCommunities(private)
	h.mountMessaging(private)
	h.mountAgents(private)
	h.mountOpportunities(private)
	h.mountMarketplace(private)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, Response{Success: false, Message: "route not found"})
	})

	return router
}

const healthTimeout = 3 * time.Second

// health pings every dependency concurrently and reports each one
func (h *handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	names := make([]string, 0, len(h.deps.Health))
	for name := range h.deps.Health {
		names = append(names, name)
	}
	results := make([]string, len(names))

	var g errgroup.Group
	for i, name := range names {
		i := i
		pinger := h.deps.Health[name]
		g.Go(func() error {
			if err := pinger.Ping(ctx); err != nil {
				results[i] = "down"
				return err
			}
			results[i] = "ok"
			return nil
		})
	}
	err := g.Wait()

	checks := make(map[string]string, len(names))
	for i, name := range names {
		checks[name] = results[i]
	}

	status := http.StatusOK
	state := "ok"
	if err != nil {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
