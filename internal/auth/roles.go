package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
	apperrors "github.com/ohd-platform/facility-helpdesk/pkg/util/errorutil"
)

// RequireRole ensures the actor holds one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowed) == 0 {
			return c.Next()
		}
		for _, role := range allowed {
			if actor.Roles.Has(role) {
				return c.Next()
			}
		}
		return apperrors.NewNotAuthorized("insufficient role")
	}
}
