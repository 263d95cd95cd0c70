package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	extRest "github.com/AzielCF/az-users/externaldata/adapter/rest"
	"github.com/AzielCF/az-users/ui/rest"
	"github.com/AzielCF/az-users/ui/rest/middleware"
	userRest "github.com/AzielCF/az-users/users/adapter/rest"
)

const (
	bodyLimit       = 10 * 1024
	shutdownTimeout = 10 * time.Second

	strictLimitMessage = "Too many requests to this endpoint, please try again later."
)

// restCmd represents the rest command
var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Serve the HTTP API",
	Long:  `Serve user registration, the cached external data endpoint, health and metrics over HTTP.`,
	Run:   restServer,
}

func init() {
	rootCmd.AddCommand(restCmd)
}

func restServer(_ *cobra.Command, _ []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := NewApp(ctx, cfg)
	if err != nil {
		logrus.Fatalf("[APP] startup failed: %v", err)
	}

	app := newRestApp(a)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logrus.Infof("[APP] received %s, shutting down", sig)
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logrus.WithError(err).Warn("[APP] server shutdown")
		}
	}()

	if err := app.Listen(":" + cfg.App.Port); err != nil {
		logrus.WithError(err).Error("[APP] failed to start")
	}

	cancel()
	if err := a.Close(); err != nil {
		logrus.WithError(err).Warn("[APP] close")
	}
	logrus.Info("[APP] Application stopped cleanly.")
}

// newRestApp builds the fiber application for a. Middleware order matters:
// the lenient limiter guards every route registered after it.
func newRestApp(a *App) *fiber.App {
	fiberConfig := fiber.Config{
		AppName:               "az-users",
		ServerHeader:          "Hidden",
		BodyLimit:             bodyLimit,
		ErrorHandler:          middleware.ErrorHandler,
		DisableStartupMessage: !a.Config.App.Debug,
	}
	if len(a.Config.App.TrustedProxies) > 0 {
		fiberConfig.EnableTrustedProxyCheck = true
		fiberConfig.TrustedProxies = a.Config.App.TrustedProxies
		fiberConfig.ProxyHeader = fiber.HeaderXForwardedFor
	}

	app := fiber.New(fiberConfig)

	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(a.Config.App.CorsAllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		AllowCredentials: false,
	}))
	app.Use(middleware.Recovery())
	app.Use(helmet.New(helmet.Config{
		ContentSecurityPolicy:     "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:",
		HSTSMaxAge:                31536000,
		HSTSExcludeSubdomains:     false,
		HSTSPreloadEnabled:        true,
		CrossOriginEmbedderPolicy: "require-corp",
	}))
	app.Use(middleware.RequestMetrics(a.Registry))

	if a.Config.App.Debug {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
			Next:   skipPaths("/health", "/metrics"),
		}))
	}

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))

	app.Use(middleware.RateLimit(a.Lenient, middleware.RateLimitConfig{
		IPv6Prefix: a.Config.RateLimit.IPv6PrefixLength,
		Next:       skipPaths("/metrics"),
	}))

	rest.InitRestHealth(app, a.Detector, a.InstanceID)

	// Registration and cache clearing share one strict budget per client.
	strict := middleware.RateLimit(a.Strict, middleware.RateLimitConfig{
		IPv6Prefix: a.Config.RateLimit.IPv6PrefixLength,
		Message:    strictLimitMessage,
	})
	userRest.NewUserHandler(a.Users).RegisterRoutes(app, strict)
	extRest.NewExternalDataHandler(a.ExternalData).RegisterRoutes(app, strict)

	app.Use(middleware.NotFound)

	return app
}

func skipPaths(paths ...string) func(c *fiber.Ctx) bool {
	return func(c *fiber.Ctx) bool {
		for _, p := range paths {
			if c.Path() == p {
				return true
			}
		}
		return false
	}
}
