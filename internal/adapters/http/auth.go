package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator supplies a verified identity for controller-level
// actions. The real deployment plugs its own implementation in; the
// relay only needs a stable identity string.
type Authenticator interface {
	Identify(c *gin.Context) (string, error)
}

// TokenAuthenticator trusts the per-browser client token as identity.
// Suitable for development and single-tenant setups.
type TokenAuthenticator struct{}

func (TokenAuthenticator) Identify(c *gin.Context) (string, error) {
	token := c.GetString("client_token")
	if token == "" {
		return "", ErrUnauthenticated
	}
	return token, nil
}

// RequireAuth resolves the caller's identity and stores it in the
// context, rejecting the request with 401 otherwise.
func RequireAuth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := a.Identify(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		c.Set("identity", identity)
		c.Next()
	}
}
