package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/phd-admission-api/internal/models"
	"github.com/noah-isme/phd-admission-api/pkg/config"
)

const auditResourceKey = "audit_resource_id"

// AuditSink persists audit records.
type AuditSink interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// SetAuditResource names the entity a mutating handler acted on. Handlers that create an entity
// call it once the id is known; otherwise the :id route parameter is recorded.
func SetAuditResource(c *gin.Context, id string) {
	c.Set(auditResourceKey, id)
}

// Audit records exactly one audit entry after a mutating request succeeds. Calls without a
// principal are attributed to the anonymous actor. Sink failures are logged and never surface.
func Audit(sink AuditSink, logger *zap.Logger, action, resource string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if sink == nil || c.Writer.Status() >= 400 || c.IsAborted() {
			return
		}

		actorID := config.AnonymousActorID
		if claims, ok := c.Get(ContextUserKey); ok {
			if user, ok := claims.(*models.JWTClaims); ok && user.UserID != "" {
				actorID = user.UserID
			}
		}

		var resourceID *string
		if id := c.GetString(auditResourceKey); id != "" {
			resourceID = &id
		} else if id := c.Param("id"); id != "" {
			resourceID = &id
		}

		body, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		entry := &models.AuditLog{
			UserID:     &actorID,
			Action:     action,
			Resource:   resource,
			ResourceID: resourceID,
			NewValues:  body,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
			CreatedAt:  start,
		}
		if err := sink.CreateAuditLog(c.Request.Context(), entry); err != nil {
			logger.Warn("audit log not written",
				zap.String("action", action),
				zap.String("actor_id", actorID),
				zap.Error(err),
			)
		}
	}
}
