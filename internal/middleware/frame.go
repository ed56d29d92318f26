package middleware

import "github.com/gin-gonic/gin"

// FrameOptions sets X-Frame-Options on every response except the listed route
// patterns, which may be embedded by other origins.
func FrameOptions(value string, exempt ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(exempt))
	for _, route := range exempt {
		skip[route] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := skip[c.FullPath()]; !ok {
			c.Header("X-Frame-Options", value)
		}
		c.Header("X-Content-Type-Options", "nosniff")
		c.Next()
	}
}
