// internal/interfaces/http/middleware/timeout.go
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-backend/internal/config"
)

// RequestTimeout caps how long a handler may run, using the server's
// configured write timeout. The deadline rides on the request context, so
// database and redis calls under it are cancelled too; once it expires the
// client gets a 408 and whatever the handler still produces is dropped.
func RequestTimeout(cfg *config.Config) gin.HandlerFunc {
	limit := cfg.Server.WriteTimeout
	if limit <= 0 {
		limit = 30 * time.Second
	}

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), limit)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		finished := make(chan struct{})
		go func() {
			c.Next()
			close(finished)
		}()

		select {
		case <-finished:
		case <-ctx.Done():
			c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{
				"error": "Request timeout",
			})
		}
	}
}
