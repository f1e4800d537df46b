// README: Request logging middleware.
package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		uid := CallerUID(c)
		if uid == "" {
			uid = "-"
		}
		log.Printf("%s %s status=%d latency=%s uid=%s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start), uid)
	}
}
