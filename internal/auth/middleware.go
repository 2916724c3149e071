package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
	"github.com/ohd-platform/facility-helpdesk/internal/repository"
	apperrors "github.com/ohd-platform/facility-helpdesk/pkg/util/errorutil"
)

const (
	actorKey = "actor"
	// ActorIDKey holds the caller id for request logging.
	ActorIDKey = "actor_id"
)

// AuthMiddleware validates bearer tokens and resolves the acting user.
type AuthMiddleware struct {
	tokens *TokenManager
	users  repository.UserDirectory
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserDirectory) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	actor, err := m.Authenticate(c.UserContext(), strings.TrimSpace(parts[1]))
	if err != nil {
		return err
	}

	c.Locals(actorKey, actor)
	c.Locals(ActorIDKey, actor.ID)
	return c.Next()
}

// Authenticate resolves a raw token to an actor with its current role set.
func (m *AuthMiddleware) Authenticate(ctx context.Context, token string) (domain.Actor, error) {
	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return domain.Actor{}, apperrors.NewUnauthorized("invalid token")
	}
	roles, err := m.users.RolesOf(ctx, claims.SubjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Actor{}, apperrors.NewUnauthorized("user not found")
		}
		return domain.Actor{}, apperrors.MapError(err)
	}
	return domain.Actor{ID: claims.SubjectID, Roles: roles.Normalize()}, nil
}

// ActorFromContext retrieves the authenticated actor.
func ActorFromContext(c *fiber.Ctx) (domain.Actor, bool) {
	val := c.Locals(actorKey)
	if val == nil {
		return domain.Actor{}, false
	}
	actor, ok := val.(domain.Actor)
	return actor, ok
}
