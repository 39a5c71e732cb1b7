// Package webserver hosts the echo admin API. Route handlers live in
// internal/adminapi and register through the Api* helpers.
package webserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/talkincode/toughdns/internal/app"
	"go.uber.org/zap"
)

const appContextKey = "appctx"

var server *WebServer

type WebServer struct {
	root   *echo.Echo
	appCtx app.AppContext
}

// Init builds the web server singleton around the application context.
func Init(appCtx app.AppContext) *WebServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(appContextKey, appCtx)
			return next(c)
		}
	})

	token := appCtx.Config().Web.Token
	if token != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup:  "header:Authorization",
			AuthScheme: "Bearer",
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == token, nil
			},
		}))
	}

	server = &WebServer{root: e, appCtx: appCtx}
	return server
}

// Instance returns the web server singleton.
func Instance() *WebServer {
	return server
}

// Start serves the admin API until the listener fails or is shut down.
func (s *WebServer) Start() error {
	cfg := s.appCtx.Config().Web
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	zap.L().Info("admin api listening", zap.String("addr", addr))
	err := s.root.Start(addr)
	if err != nil && !strings.Contains(err.Error(), "Server closed") {
		return err
	}
	return nil
}

// GetAppContext extracts the application context from the request.
func GetAppContext(c echo.Context) app.AppContext {
	return c.Get(appContextKey).(app.AppContext)
}

func ApiGET(path string, h echo.HandlerFunc) {
	server.root.GET("/api/v1"+path, h)
}

func ApiPOST(path string, h echo.HandlerFunc) {
	server.root.POST("/api/v1"+path, h)
}

func ApiDELETE(path string, h echo.HandlerFunc) {
	server.root.DELETE("/api/v1"+path, h)
}

// NotFoundJSON is the default error payload shape.
func NotFoundJSON(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, map[string]string{"error": msg})
}
