package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/availability-api/pkg/auth"
	apperrors "github.com/jwalitptl/availability-api/pkg/errors"
	"github.com/jwalitptl/availability-api/pkg/httputil"
)

const ContextSubject = "auth_subject"

var (
	errMissingHeader = errors.New("missing authorization header")
	errBadFormat     = errors.New("invalid authorization format")
)

type AuthConfig struct {
	// Secret signs admin tokens with HS256. An empty secret disables the check.
	Secret string
	Issuer string
}

// AdminAuth guards the operational endpoints with a bearer JWT.
func AdminAuth(config AuthConfig) gin.HandlerFunc {
	tokens := auth.NewTokenService(config.Secret, config.Issuer)

	return func(c *gin.Context) {
		if !tokens.Enabled() {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized(errMissingHeader))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.RespondWithError(c, apperrors.Unauthorized(errBadFormat))
			return
		}

		claims, err := tokens.ValidateToken(parts[1])
		if err != nil {
			httputil.RespondWithError(c, apperrors.Unauthorized(err))
			return
		}

		c.Set(ContextSubject, claims.Subject)
		c.Next()
	}
}
