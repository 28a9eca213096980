package api

import (
	"net/http"
	"sync"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/mahaddinnagiyev/connectify-messenger/internal/identity"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/model"
)

const localsUser = "user"

// JWTAuth resolves the bearer credential and binds the sanitized user to
// the request context.
func JWTAuth(resolver identity.Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := identity.ParseBearer(c.Get("Authorization"))
		if err != nil {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "missing authorization"})
		}
		user, err := resolver.Resolve(c.Context(), token)
		if err != nil {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "invalid token"})
		}
		c.Locals(localsUser, user)
		return c.Next()
	}
}

func currentUser(c *fiber.Ctx) *model.User {
	u, _ := c.Locals(localsUser).(*model.User)
	return u
}

// RateLimit applies a per-client token bucket, keyed by IP. Used on the
// upload endpoints where request bodies are large.
func RateLimit(perSecond float64, burst int) fiber.Handler {
	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)
	return func(c *fiber.Ctx) error {
		mu.Lock()
		lim, ok := limiters[c.IP()]
		if !ok {
			lim = rate.NewLimiter(rate.Limit(perSecond), burst)
			limiters[c.IP()] = lim
		}
		mu.Unlock()
		if !lim.Allow() {
			return c.Status(http.StatusTooManyRequests).JSON(fiber.Map{"success": false, "message": "rate limit exceeded"})
		}
		return c.Next()
	}
}
