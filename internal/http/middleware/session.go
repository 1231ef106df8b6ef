package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/supportdesk/backend/internal/authz"
	"github.com/supportdesk/backend/internal/errs"
	"github.com/supportdesk/backend/internal/models"
)

const (
	SessionHeader = "X-Session-Token"
	principalKey  = "principal"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (authz.Principal, models.User, error)
}

// Session resolves X-Session-Token to the caller. Requests without a token
// continue as guests; a token that does not resolve is rejected.
func Session(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(SessionHeader)
		if token == "" {
			c.Set(principalKey, authz.Guest)
			c.Next()
			return
		}
		p, _, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			abort(c, err)
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// RequireSession rejects guests. It must run after Session.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if Principal(c).IsGuest() {
			abort(c, errs.ErrUnauthenticated)
			return
		}
		c.Next()
	}
}

// Principal returns the caller resolved by Session, or a guest.
func Principal(c *gin.Context) authz.Principal {
	p, _ := lookupPrincipal(c)
	return p
}

func lookupPrincipal(c *gin.Context) (authz.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return authz.Guest, false
	}
	p, ok := v.(authz.Principal)
	return p, ok
}

func abort(c *gin.Context, err error) {
	e, ok := errs.As(err)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "INTERNAL", "message": "internal error"},
		})
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{"code": e.Code, "message": e.Message},
	})
}

// Timeout bounds the request context. Handlers pass it down to the store.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
