package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"context"
	"errors"
	"net/http" // HTTP status codes for responses
	"strings"  // string utilities for scheme matching and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers
	"go.uber.org/zap"

	"github.com/iliyamo/gso-inventory-auth/internal/model"
	"github.com/iliyamo/gso-inventory-auth/internal/repository"
	"github.com/iliyamo/gso-inventory-auth/internal/revocation"
	"github.com/iliyamo/gso-inventory-auth/internal/utils"
)

// SessionLookup resolves a token to its live session and owner.
type SessionLookup interface {
	GetByToken(ctx context.Context, token string) (model.Session, model.User, error)
}

// unauthenticated writes the single rejection shape used for every
// authentication failure; only the message differs.
func unauthenticated(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated", "message": msg})
}

// bearer extracts the token from "Authorization: Bearer <token>".  The
// scheme is matched case-insensitively.
func bearer(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// Auth returns an Echo middleware that admits a request only when its
// bearer token is not revoked, verifies, and still backs a live session
// of an active user.  On success the user id, email, role, session id,
// session and raw token are stored on the context; see identity.go.
func Auth(tokens *utils.TokenIssuer, registry revocation.Registry, sessions SessionLookup, log *zap.SugaredLogger) echo.MiddlewareFunc {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return unauthenticated(c, "missing bearer token")
			}
			ctx := c.Request().Context()

			// A registry that cannot answer must not let revoked tokens through.
			revoked, err := registry.Contains(ctx, raw)
			if err != nil {
				log.Errorw("revocation check failed", "error", err)
				return unauthenticated(c, "token invalidated")
			}
			if revoked {
				return unauthenticated(c, "token invalidated")
			}

			claims, err := tokens.Verify(raw)
			if err != nil {
				if errors.Is(err, utils.ErrTokenExpired) {
					return unauthenticated(c, "token expired")
				}
				return unauthenticated(c, "invalid token")
			}

			sess, user, err := sessions.GetByToken(ctx, raw)
			if err != nil {
				if !errors.Is(err, repository.ErrNotFound) {
					log.Errorw("session lookup failed", "error", err)
				}
				return unauthenticated(c, "session not found")
			}
			if sess.UserID != claims.UserID {
				return unauthenticated(c, "session not found")
			}

			c.Set(CtxUserID, user.ID)
			c.Set(CtxEmail, user.Email)
			c.Set(CtxRole, string(user.Role))
			c.Set(CtxSessionID, sess.ID)
			c.Set(CtxSession, sess)
			c.Set(CtxToken, raw)
			return next(c)
		}
	}
}
