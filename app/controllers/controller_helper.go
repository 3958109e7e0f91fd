package controllers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// requireUserID reads the authenticated user from the X-User-ID header. The
// session layer in front of this service resolves credentials and forwards
// the numeric id. When the header is missing or malformed the 401 response
// is already written and ok is false.
func requireUserID(c *fiber.Ctx) (uint, bool) {
	raw := strings.TrimSpace(c.Get("X-User-ID"))
	if raw == "" {
		_ = c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing user identity"})
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		_ = c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid user identity"})
		return 0, false
	}
	return uint(id), true
}
