package rayid

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// HeaderName carries the ray id on requests and responses.
const HeaderName = "X-Ray-ID"

// LocalsKey is where the ray id is stored on the fiber context.
const LocalsKey = "ray_id"

// New returns a middleware that tags every request with a ray id, reusing an
// incoming X-Ray-ID header when present.
func New() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(HeaderName)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Locals(LocalsKey, id)
		c.Set(HeaderName, id)
		return c.Next()
	}
}

// From returns the ray id of the request, or "".
func From(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalsKey).(string)
	return id
}
