package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livementor_backend/internal/model"
	"livementor_backend/pkg/apperror"
	"livementor_backend/pkg/utils/jwt"
)

func status(t *testing.T, app *fiber.App, req *http.Request) int {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestAuthMiddleware(t *testing.T) {
	tokens := jwt.NewManager("secret", time.Hour)
	app := fiber.New()
	app.Get("/", AuthMiddleware(tokens), func(c *fiber.Ctx) error {
		return c.SendString(Claims(c).Email)
	})

	good, err := tokens.GenerateToken(7, "ada@example.com")
	require.NoError(t, err)
	other, err := jwt.NewManager("other", time.Hour).GenerateToken(7, "ada@example.com")
	require.NoError(t, err)

	cases := map[string]struct {
		header string
		want   int
	}{
		"valid":        {"Bearer " + good, http.StatusOK},
		"missing":      {"", http.StatusUnauthorized},
		"no scheme":    {good, http.StatusUnauthorized},
		"wrong secret": {"Bearer " + other, http.StatusUnauthorized},
		"garbage":      {"Bearer abc.def.ghi", http.StatusUnauthorized},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			assert.Equal(t, c.want, status(t, app, req))
		})
	}
}

func TestAdminOnly(t *testing.T) {
	ok := func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) }

	app := fiber.New()
	app.Get("/", AdminOnly("s3cret"), ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Admin-Token", "s3cret")
	assert.Equal(t, http.StatusOK, status(t, app, req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Admin-Token", "guess")
	assert.Equal(t, http.StatusForbidden, status(t, app, req))

	disabled := fiber.New()
	disabled.Get("/", AdminOnly(""), ok)
	assert.Equal(t, http.StatusForbidden, status(t, disabled, httptest.NewRequest(http.MethodGet, "/", nil)),
		"an empty token disables admin routes")
}

func TestCheckSubscriptionOwnership(t *testing.T) {
	subs := map[string]*model.CourseSubscription{
		"sub_mine":   {ID: "sub_mine", StudentID: 7},
		"sub_theirs": {ID: "sub_theirs", StudentID: 8},
	}
	lookup := func(_ context.Context, id string) (*model.CourseSubscription, error) {
		if id == "sub_broken" {
			return nil, errors.New("connection reset")
		}
		if s, ok := subs[id]; ok {
			return s, nil
		}
		return nil, apperror.NotFound("subscription", id)
	}

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if c.Get("X-Anonymous") == "" {
			c.Locals("user", &jwt.Claims{StudentID: 7})
		}
		return c.Next()
	})
	app.Get("/subscriptions/:id", CheckSubscriptionOwnership(lookup), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})

	get := func(id string) *http.Request {
		return httptest.NewRequest(http.MethodGet, "/subscriptions/"+id, nil)
	}
	assert.Equal(t, http.StatusOK, status(t, app, get("sub_mine")))
	assert.Equal(t, http.StatusForbidden, status(t, app, get("sub_theirs")))
	assert.Equal(t, http.StatusNotFound, status(t, app, get("sub_missing")))
	assert.Equal(t, http.StatusInternalServerError, status(t, app, get("sub_broken")))

	anon := get("sub_mine")
	anon.Header.Set("X-Anonymous", "1")
	assert.Equal(t, http.StatusUnauthorized, status(t, app, anon))
}

func TestRequestTimeout(t *testing.T) {
	app := fiber.New()
	app.Get("/", RequestTimeout(50*time.Millisecond), func(c *fiber.Ctx) error {
		deadline, ok := c.UserContext().Deadline()
		if !ok || time.Until(deadline) > 50*time.Millisecond {
			return c.SendStatus(http.StatusInternalServerError)
		}
		return c.SendStatus(http.StatusOK)
	})
	assert.Equal(t, http.StatusOK, status(t, app, httptest.NewRequest(http.MethodGet, "/", nil)))
}
