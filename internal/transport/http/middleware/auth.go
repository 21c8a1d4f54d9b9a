package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const errUnauthorized = "Unauthorized"

const (
	tenantIDKey = "tenantID"
	ownerIDKey  = "ownerID"
)

// Auth validates a Bearer JWT and resolves the caller's scope: "tid" is the
// tenant, "sub" the owner. Both must be present.
func Auth(jwtKey []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		rawToken := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(rawToken, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return jwtKey, nil
		}, jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		ownerID, _ := claims["sub"].(string)
		tenantID, _ := claims["tid"].(string)
		if ownerID == "" || tenantID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		c.Set(tenantIDKey, tenantID)
		c.Set(ownerIDKey, ownerID)
		c.Next()
	}
}

// Scope returns the scope resolved by Auth. It is invalid when Auth did not run.
func Scope(c *gin.Context) domain.Scope {
	return domain.Scope{TenantID: c.GetString(tenantIDKey), OwnerID: c.GetString(ownerIDKey)}
}
