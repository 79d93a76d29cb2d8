package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/luiggisao1/turbonote/internal/security"
	"github.com/luiggisao1/turbonote/internal/storage"
)

const contextUserKey = "current_user"

// UserLookup resolves the subject of a verified access token.
type UserLookup interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (*storage.User, error)
}

func ExtractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Middleware verifies the bearer access token (signature + expiry only, the
// ledger is not consulted for access tokens), resolves the user it names, and
// attaches the user to the request. Requests without a resolvable user never
// reach a handler.
func Middleware(secret []byte, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "missing token"})
			return
		}

		claims, err := security.ParseToken(token, secret, security.TokenTypeAccess)
		if err != nil || claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "invalid token"})
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "invalid token"})
			return
		}

		user, err := users.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "invalid token"})
			return
		}

		c.Set(contextUserKey, user)
		c.Next()
	}
}

// CurrentUser returns the user the middleware resolved for this request.
func CurrentUser(c *gin.Context) (*storage.User, bool) {
	val, ok := c.Get(contextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := val.(*storage.User)
	return user, ok
}
