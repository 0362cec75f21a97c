package api

import (
	"receiptagent/app/service/auth"

	"github.com/gofiber/fiber/v2"
)

const userLocal = "user"

func (s *Server) authenticate(c *fiber.Ctx) error {
	user, err := s.deps.Auth.Authenticate(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return err
	}

	c.Locals(userLocal, user)

	return c.Next()
}

// currentUser must only be called behind authenticate.
func currentUser(c *fiber.Ctx) *auth.User {
	return c.Locals(userLocal).(*auth.User)
}
