package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/noteqa/ragcore/internal/config"
	"github.com/noteqa/ragcore/internal/logger"
	"github.com/noteqa/ragcore/internal/types"
	"github.com/noteqa/ragcore/internal/types/interfaces"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var noAuthAPI = map[string][]string{
	"/health": {"GET"},
}

func isNoAuthAPI(path string, method string) bool {
	methods, ok := noAuthAPI[path]
	if !ok {
		return false
	}
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}

// tenantClaims is the JWT payload minted for a tenant: it carries only the
// tenant identifier, since the core does not manage user sessions.
type tenantClaims struct {
	TenantID uint64 `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Auth resolves the calling tenant from either a bearer JWT (minted by an
// external identity provider, scoped to one tenant) or an X-API-Key header
// (resolved via TenantService.ExtractTenantIDFromAPIKey), then stores the
// resolved tenant on the request context for the rest of the chain.
func Auth(tenantService interfaces.TenantService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		if isNoAuthAPI(c.Request.URL.Path, c.Request.Method) {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
			claims := &tenantClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				return []byte(cfg.JWTSecret), nil
			})
			if err == nil && token.Valid && claims.TenantID != 0 {
				if tenant, ok := resolveTenant(c, tenantService, claims.TenantID); ok {
					setTenantContext(c, tenant)
					c.Next()
					return
				}
			}
			logger.Warnf(c.Request.Context(), "auth: rejected bearer token")
		}

		if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
			tenantID, err := tenantService.ExtractTenantIDFromAPIKey(apiKey)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: invalid API key"})
				c.Abort()
				return
			}
			if tenant, ok := resolveTenant(c, tenantService, tenantID); ok {
				setTenantContext(c, tenant)
				c.Next()
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: unknown tenant"})
			c.Abort()
			return
		}

		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: missing authentication"})
		c.Abort()
	}
}

func resolveTenant(c *gin.Context, svc interfaces.TenantService, id uint64) (*types.Tenant, bool) {
	tenant, err := svc.GetTenantByID(c.Request.Context(), id)
	if err != nil || tenant == nil || tenant.Status != "active" {
		return nil, false
	}
	return tenant, true
}

func setTenantContext(c *gin.Context, tenant *types.Tenant) {
	c.Set(types.TenantIDContextKey.String(), tenant.ID)
	c.Set(types.TenantInfoContextKey.String(), tenant)
	c.Request = c.Request.WithContext(
		context.WithValue(
			context.WithValue(c.Request.Context(), types.TenantIDContextKey, tenant.ID),
			types.TenantInfoContextKey, tenant,
		),
	)
}

// MintTenantToken issues a JWT scoped to one tenant, valid for ttl. Nothing
// in this module calls it; it is exported for external token issuers.
func MintTenantToken(secret string, tenantID uint64, ttl time.Duration) (string, error) {
	claims := tenantClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
