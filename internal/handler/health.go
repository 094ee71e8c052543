package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health handles GET /health: a bare liveness probe, unauthenticated per
// middleware.Auth's noAuthAPI allowlist.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
