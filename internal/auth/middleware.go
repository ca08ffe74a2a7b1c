package auth

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/maintenance-voice/pkg/util"
)

const (
	principalKey = "auth_principal"

	// CallerIDHeader carries the caller id set by a trusted gateway.
	CallerIDHeader = "X-User-Id"
	// RoleHeader carries the caller role set by the same gateway.
	RoleHeader = "X-User-Role"
)

// Principal represents the authenticated caller.
type Principal struct {
	CallerID int64
	Role     string
}

// AuthMiddleware resolves the caller from a bearer token or, when no token
// manager is configured, from the gateway header.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware. A nil manager trusts CallerIDHeader.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	principal, err := m.resolve(c)
	if err != nil {
		return err
	}
	c.Locals(principalKey, principal)
	return c.Next()
}

func (m *AuthMiddleware) resolve(c *fiber.Ctx) (*Principal, error) {
	if m.tokens == nil {
		raw := strings.TrimSpace(c.Get(CallerIDHeader))
		if raw == "" {
			return nil, apperrors.NewUnauthorized("missing " + CallerIDHeader + " header")
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return nil, apperrors.NewUnauthorized("invalid " + CallerIDHeader + " header")
		}
		return &Principal{CallerID: id, Role: strings.ToUpper(strings.TrimSpace(c.Get(RoleHeader)))}, nil
	}

	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return nil, apperrors.NewUnauthorized("missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid token")
	}
	id, err := claims.CallerID()
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid token subject")
	}
	return &Principal{CallerID: id, Role: claims.Role}, nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	principal, ok := c.Locals(principalKey).(*Principal)
	return principal, ok && principal != nil
}
