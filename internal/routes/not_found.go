package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Setup404Handler answers unknown paths with a JSON error carrying the request id.
func Setup404Handler(router *gin.Engine) {
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":      "Not Found",
			"path":       c.Request.URL.Path,
			"request_id": c.GetString("request_id"),
		})
	})
}
