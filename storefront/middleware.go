package storefront

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	storeLocalsKey    = "storefront.store"
	languageLocalsKey = "storefront.language"
)

// Middleware resolves the store from a leading path segment, then from
// the host, then falls back to the default store. A following segment
// that names one of the store languages selects it. Consumed segments
// are stripped so routes are declared once.
func Middleware(reg *Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		segments := splitPath(c.Path())

		store, ok := Store{}, false
		if len(segments) > 0 {
			if store, ok = reg.Get(segments[0]); ok {
				segments = segments[1:]
			}
		}
		if !ok {
			if store, ok = reg.ByHost(c.Hostname()); !ok {
				store = reg.Default()
			}
		}

		language := store.DefaultLanguage
		if len(segments) > 0 && store.HasLanguage(segments[0]) {
			language = store.canonicalLanguage(segments[0])
			segments = segments[1:]
		}

		c.Locals(storeLocalsKey, store)
		c.Locals(languageLocalsKey, language)
		c.Path("/" + strings.Join(segments, "/"))

		return c.Next()
	}
}

// FromCtx returns the resolved store and language
func FromCtx(c *fiber.Ctx) (Store, string) {
	store, _ := c.Locals(storeLocalsKey).(Store)
	language, _ := c.Locals(languageLocalsKey).(string)
	return store, language
}

func splitPath(p string) []string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	out := parts[:0]
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
