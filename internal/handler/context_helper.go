package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/haeun-dev/registrar-api/internal/middleware"
	"github.com/haeun-dev/registrar-api/internal/models"
)

// claimsFromContext returns the authenticated user's claims, or nil when the
// request did not pass through the JWT middleware.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	if value, ok := c.Get(middleware.ContextUserKey); ok {
		if claims, ok := value.(*models.JWTClaims); ok {
			return claims
		}
	}
	return nil
}
