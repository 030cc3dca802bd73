package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/latchbot/latch/automod/engine"
	"github.com/latchbot/latch/automod/settings"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

// request metrics collectors can only be registered once per process
var httpMetrics = echoprometheus.NewMiddleware("latch")

type Server struct {
	echo     *echo.Echo
	httpd    *http.Server
	logger   *slog.Logger
	engine   *engine.Engine
	settings settings.Editor

	expectedAuthHeader string
}

type ServerConfig struct {
	Logger *slog.Logger
	Bind   string
	// if empty, admin routes are not registered and the webhook is unauthenticated
	AdminKey string
}

func NewServer(config ServerConfig, eng *engine.Engine, editor settings.Editor) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()

	// httpd
	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)

	srv := &Server{
		echo:     e,
		logger:   logger,
		engine:   eng,
		settings: editor,
	}
	if config.AdminKey != "" {
		srv.expectedAuthHeader = "Bearer " + config.AdminKey
	}
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           config.Bind,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}

	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("4M"))
	e.Use(otelecho.Middleware("latch"))
	e.Use(httpMetrics)
	e.HTTPErrorHandler = srv.errorHandler
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         31536000, // 365 days
	}))

	e.GET("/_health", srv.HandleHealthCheck)
	e.POST("/events/comment", srv.HandleCommentEvent, srv.requireAuth(false))

	if srv.expectedAuthHeader == "" {
		logger.Warn("no admin key configured; admin API disabled")
		return srv
	}
	admin := e.Group("/admin", srv.requireAuth(true))
	admin.POST("/posts/:postID/force-lock", srv.HandleForceLock)
	admin.GET("/scopes/:scopeID/actionlog", srv.HandleListActionLog)
	admin.POST("/scopes/:scopeID/actionlog/publish", srv.HandlePublishActionLog)
	admin.POST("/scopes/:scopeID/help/publish", srv.HandlePublishHelp)
	admin.GET("/scopes/:scopeID/settings", srv.HandleGetSettings)
	admin.PUT("/scopes/:scopeID/settings", srv.HandleUpdateSettings)
	admin.GET("/scopes/:scopeID/stats", srv.HandleStats)
	admin.DELETE("/ratelimit/:actorID", srv.HandleResetRateLimit)

	return srv
}

// Checks the bearer token. With required unset, requests pass when no key is configured.
func (srv *Server) requireAuth(required bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if srv.expectedAuthHeader == "" {
				if required {
					return echo.NewHTTPError(http.StatusForbidden, "admin API disabled")
				}
				return next(c)
			}
			hdr := c.Request().Header.Get(echo.HeaderAuthorization)
			if subtle.ConstantTimeCompare([]byte(hdr), []byte(srv.expectedAuthHeader)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing bearer token")
			}
			return next(c)
		}
	}
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	} else {
		errorMessage = "internal server error"
	}
	if code >= 500 {
		srv.logger.Warn("latch-http-internal-error", "path", c.Path(), "err", err)
	}
	if c.Response().Committed {
		return
	}
	if err := c.JSON(code, map[string]any{"error": http.StatusText(code), "message": errorMessage}); err != nil {
		srv.logger.Error("failed to write error response", "err", err)
	}
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

// Serves the HTTP API until the context is cancelled, then shuts down gracefully.
func (srv *Server) RunAPI(ctx context.Context) error {
	srv.logger.Info("starting server", "bind", srv.httpd.Addr)
	errc := make(chan error, 1)
	go func() {
		if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("HTTP server shutting down unexpectedly: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	if err := srv.Shutdown(); err != nil {
		srv.logger.Error("HTTP server shutdown error", "err", err)
	}
	return nil
}

func (srv *Server) Shutdown() error {
	srv.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.httpd.Shutdown(ctx)
}
