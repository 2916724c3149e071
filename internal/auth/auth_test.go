package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
	"github.com/ohd-platform/facility-helpdesk/internal/repository/memory"
	apperrors "github.com/ohd-platform/facility-helpdesk/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, expiresAt, err := tm.GenerateToken("u1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expiresAt, time.Minute)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.SubjectID)

	_, err = NewTokenManager("other", 5).ParseToken(token)
	assert.Error(t, err)

	_, _, err = tm.GenerateToken("")
	assert.Error(t, err)
}

func TestTokenExpiry(t *testing.T) {
	tm := NewTokenManager("secret", 1)
	token, _, err := tm.GenerateToken("u1")
	require.NoError(t, err)

	tm.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = tm.ParseToken(token)
	assert.Error(t, err)
}

func newTestApp(t *testing.T) (*fiber.App, *TokenManager) {
	t.Helper()
	users := memory.NewUserRepository()
	require.NoError(t, users.Save(context.Background(), &domain.User{ID: "u1", Roles: domain.NewRoleSet(domain.RoleManager)}))
	require.NoError(t, users.Save(context.Background(), &domain.User{ID: "a1", Roles: domain.NewRoleSet(domain.RoleAdmin)}))

	tm := NewTokenManager("secret", 5)
	mw := NewAuthMiddleware(tm, users)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	app.Get("/me", mw.Handle, func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return fiber.ErrInternalServerError
		}
		return c.JSON(fiber.Map{"id": actor.ID, "technician": actor.IsTechnician(), "actorId": c.Locals(ActorIDKey)})
	})
	app.Get("/admin", mw.Handle, RequireRole(domain.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})
	return app, tm
}

func TestAuthMiddleware(t *testing.T) {
	app, tm := newTestApp(t)
	valid, _, err := tm.GenerateToken("u1")
	require.NoError(t, err)
	unknown, _, err := tm.GenerateToken("ghost")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"unknown user", "Bearer " + unknown, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestRequireRole(t *testing.T) {
	app, tm := newTestApp(t)
	manager, _, err := tm.GenerateToken("u1")
	require.NoError(t, err)
	admin, _, err := tm.GenerateToken("a1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+manager)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
