package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/marketplace/internal/apperr"
	"github.com/example/marketplace/internal/services"
)

const identityLocalsKey = "identity"

type identityCtxKey struct{}

// Authenticator resolves a session token to the identity it was issued for.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (services.Identity, error)
}

// Auth rejects requests without a valid session and stores the caller's
// identity in c.Locals and the user context.
func Auth(authn Authenticator, cookieName string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Cookies(cookieName)
		if token == "" {
			token = bearerToken(c.Get(fiber.HeaderAuthorization))
		}
		if token == "" {
			return apperr.New(apperr.ErrUnauthorized, "not authorized, no token")
		}

		identity, err := authenticate(c.UserContext(), authn, token, log)
		if err != nil {
			log.Debug("session rejected", zap.String("path", c.Path()), zap.Error(err))
			return apperr.New(apperr.ErrUnauthorized, "not authorized, token failed")
		}

		c.Locals(identityLocalsKey, identity)
		c.SetUserContext(WithIdentity(c.UserContext(), identity))
		return c.Next()
	}
}

func authenticate(ctx context.Context, authn Authenticator, token string, log *zap.Logger) (identity services.Identity, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic during authentication", zap.Any("reason", r))
			err = apperr.New(apperr.ErrUnauthorized, "authentication failed")
		}
	}()
	return authn.Authenticate(ctx, token)
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// CurrentIdentity returns the identity stored by Auth.
func CurrentIdentity(c *fiber.Ctx) (services.Identity, bool) {
	identity, ok := c.Locals(identityLocalsKey).(services.Identity)
	return identity, ok
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity services.Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, identity)
}

// IdentityFromContext extracts the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (services.Identity, bool) {
	identity, ok := ctx.Value(identityCtxKey{}).(services.Identity)
	return identity, ok
}
