package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Roles issued by the user service.
const (
	RoleResident   = "RESIDENT"
	RoleTechnician = "TECHNICIAN"
	RoleAdmin      = "ADMIN"
)

// RequireRole ensures the principal has one of the allowed roles.
func RequireRole(allowed ...string) fiber.Handler {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return fiber.NewError(http.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}
