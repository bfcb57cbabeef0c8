package handler

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"possales/internal/apierror"

	"github.com/gin-gonic/gin"
)

// SPA serves the built front end from dir. Unknown paths fall back to
// index.html so client-side routes work; unknown /api paths get a JSON 404.
func SPA(dir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := c.Request.URL.Path
		if strings.HasPrefix(p, "/api/") || p == "/api" || dir == "" ||
			(c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead) {
			c.JSON(http.StatusNotFound, &apierror.APIError{Detail: "not found", Code: apierror.KindNotFound})
			return
		}

		clean := path.Clean("/" + p)
		c.Request.URL.Path = clean
		if clean != "/" {
			file := filepath.Join(dir, filepath.FromSlash(clean))
			if info, err := os.Stat(file); err == nil && !info.IsDir() {
				c.File(file)
				return
			}
		}

		index := filepath.Join(dir, "index.html")
		if _, err := os.Stat(index); err != nil {
			c.JSON(http.StatusNotFound, &apierror.APIError{Detail: "not found", Code: apierror.KindNotFound})
			return
		}
		c.File(index)
	}
}
