// Package web serves the browser navigation surface: the single-page app shell
// for public and protected pages, with server-side redirects for the latter.
package web

import (
	"fmt"
	"html"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/subtracker/internal/middleware"
)

const loginPath = "/login"

var (
	publicPages    = []string{"/login", "/signup", "/forget-password"}
	protectedPages = []string{"/dashboard", "/add-subscription", "/edit-subscription/:id"}
)

// Pages serves the app shell for every navigable path.
type Pages struct {
	staticDir string
	logger    *zap.Logger
}

func NewPages(staticDir string, logger *zap.Logger) *Pages {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pages{staticDir: staticDir, logger: logger}
}

// RegisterRoutes mounts the pages on router. Protected pages redirect to the
// login page unless the request carries a valid session cookie. Unknown API
// paths answer JSON 404 and any other unknown path redirects to the login page.
func RegisterRoutes(router *gin.Engine, authMW *middleware.AuthMiddleware, pages *Pages) {
	if assets := filepath.Join(pages.staticDir, "assets"); isDir(assets) {
		router.Static("/assets", assets)
	}

	router.GET("/", redirectToLogin)
	for _, path := range publicPages {
		router.GET(path, pages.Serve)
	}
	for _, path := range protectedPages {
		router.GET(path, authMW.RequireSession(loginPath), pages.Serve)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, middleware.ErrorResponse{Error: "Resource not found"})
			return
		}
		redirectToLogin(c)
	})
}

// Serve writes STATIC_DIR/index.html, or a bare shell when no build is deployed.
func (p *Pages) Serve(c *gin.Context) {
	index := filepath.Join(p.staticDir, "index.html")
	if _, err := os.Stat(index); err == nil {
		c.File(index)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(shell(c.Request.URL.Path)))
}

func redirectToLogin(c *gin.Context) {
	c.Redirect(http.StatusFound, loginPath)
}

func shell(path string) string {
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>Subscription Tracker</title></head>
<body><div id="root" data-path="%s"></div></body>
</html>
`, html.EscapeString(path))
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
