package api

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const localUserID = "swap.user_id"

// AuthConfig configures bearer-token verification.
type AuthConfig struct {
	HMACSecret string
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

// Authenticator verifies HMAC-signed JWTs whose subject is the user UUID.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
	logger *zap.Logger
}

func NewAuthenticator(cfg AuthConfig, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		cfg:    cfg,
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
		logger: logger,
	}
}

// Middleware rejects requests without a valid token and stores the caller's
// user ID in the request locals.
func (a *Authenticator) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := extractBearer(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			return writeAPIError(c, fiber.StatusUnauthorized, codeUnauthorized, "missing bearer token", nil)
		}
		userID, err := a.ParseUserID(raw)
		if err != nil {
			a.logger.Debug("api.auth.rejected", zap.Error(err))
			return writeAPIError(c, fiber.StatusUnauthorized, codeUnauthorized, "invalid token", nil)
		}
		c.Locals(localUserID, userID)
		return c.Next()
	}
}

// ParseUserID validates raw and returns its subject as a UUID.
func (a *Authenticator) ParseUserID(raw string) (uuid.UUID, error) {
	if len(a.secret) == 0 {
		return uuid.Nil, errors.New("auth secret not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(a.cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return uuid.Nil, err
	}
	if !token.Valid {
		return uuid.Nil, errors.New("token invalid")
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, errors.New("subject is not a user id")
	}
	return id, nil
}

func extractBearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func userIDFrom(c *fiber.Ctx) (uuid.UUID, bool) {
	id, ok := c.Locals(localUserID).(uuid.UUID)
	return id, ok && id != uuid.Nil
}
