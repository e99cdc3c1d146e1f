package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/princinho/eldercarebackend/apperrors"
	"github.com/princinho/eldercarebackend/auth"
	"github.com/princinho/eldercarebackend/models"
)

const identityKey = "identity"

// AuthMiddleware requires a valid bearer token and attaches the caller's
// identity to the request context.
func AuthMiddleware(tokens *auth.TokenIssuer) gin.HandlerFunc {
	return authenticate(tokens, true)
}

// OptionalAuthMiddleware attaches an identity when a bearer token is sent
// and lets anonymous requests through. A token that is sent but invalid is
// still rejected.
func OptionalAuthMiddleware(tokens *auth.TokenIssuer) gin.HandlerFunc {
	return authenticate(tokens, false)
}

func authenticate(tokens *auth.TokenIssuer, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
				return
			}
			c.Next()
			return
		}

		tokenStr, ok := bearerToken(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := tokens.Verify(tokenStr)
		if err != nil {
			c.Set("auth_error", err.Error())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperrors.PublicMessage(apperrors.ErrUnauthenticated)})
			return
		}

		id := claims.Identity()
		id.Role = models.NormalizeRole(string(id.Role))
		c.Set(identityKey, id)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Identity returns the identity attached by the auth middleware.
func Identity(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

// RequireRoles rejects callers whose role is not in roles. An empty list
// admits any authenticated caller. It must run after AuthMiddleware.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		allowed[models.NormalizeRole(string(r))] = true
	}
	return func(c *gin.Context) {
		id, ok := Identity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
			return
		}
		if len(allowed) > 0 && !allowed[id.Role] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": apperrors.PublicMessage(apperrors.ErrForbidden)})
			return
		}
		c.Next()
	}
}
