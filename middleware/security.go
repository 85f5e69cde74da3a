package middleware

import "github.com/gin-gonic/gin"

// Security sets conservative response headers on every response
func Security() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Server", "mediafetch")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}
