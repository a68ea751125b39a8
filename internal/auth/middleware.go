package auth

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

const principalKey = "principal"

// HeaderAPIKey carries raw API keys.
const HeaderAPIKey = "X-API-Key"

// Authenticator resolves request credentials to a principal.
type Authenticator interface {
	AuthenticateToken(ctx context.Context, token string) (model.Principal, error)
	AuthenticateAPIKey(ctx context.Context, raw string) (model.Principal, model.APIKey, error)
}

// ErrorWriter renders an authentication failure and aborts the request.
type ErrorWriter func(c *gin.Context, err error)

// Require accepts a bearer JWT or an X-API-Key header and stores the principal on the context.
func Require(a Authenticator, onError ErrorWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := resolve(c, a)
		if err == nil && p == nil {
			err = apperr.ErrUnauthenticated
		}
		if err != nil {
			onError(c, err)
			c.Abort()
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// Optional behaves like Require but lets anonymous requests through.
// Credentials that are present but invalid are still rejected.
func Optional(a Authenticator, onError ErrorWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := resolve(c, a)
		if err != nil {
			onError(c, err)
			c.Abort()
			return
		}
		if p != nil {
			c.Set(principalKey, p)
		}
		c.Next()
	}
}

// PrincipalFrom returns the authenticated principal, or nil.
func PrincipalFrom(c *gin.Context) *model.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*model.Principal)
	return p
}

func resolve(c *gin.Context, a Authenticator) (*model.Principal, error) {
	ctx := c.Request.Context()
	if authz := c.GetHeader("Authorization"); authz != "" {
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return nil, apperr.ErrUnauthenticated
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		p, err := a.AuthenticateToken(ctx, tokenStr)
		if err != nil {
			return nil, err
		}
		return &p, nil
	}
	if raw := strings.TrimSpace(c.GetHeader(HeaderAPIKey)); raw != "" {
		p, _, err := a.AuthenticateAPIKey(ctx, raw)
		if err != nil {
			return nil, err
		}
		return &p, nil
	}
	return nil, nil
}
