package webhook

import (
	"crypto/subtle"
	"net/http"

	"sales_enforcer_backend/platform/config"

	"github.com/gin-gonic/gin"
)

// SharedSecretMiddleware authenticates inbound CRM webhooks with a shared
// secret carried in the X-Webhook-Secret header. The CRM's webhook UI
// cannot sign payloads, so a static secret is the strongest check
// available. An empty configured secret disables the check; config.Load
// refuses that outside development.
func SharedSecretMiddleware(cfg config.WebhookConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := cfg.GetWebhookSharedSecret()
		if secret == "" {
			c.Next()
			return
		}

		provided := c.GetHeader("X-Webhook-Secret")
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing webhook secret"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
		c.Next()
	}
}
