package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/phd-admission-api/internal/middleware"
	"github.com/noah-isme/phd-admission-api/internal/models"
	"github.com/noah-isme/phd-admission-api/internal/service"
	appErrors "github.com/noah-isme/phd-admission-api/pkg/errors"
	"github.com/noah-isme/phd-admission-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// optionalActor returns the principal when the request carried a valid token.
func optionalActor(c *gin.Context) *service.Actor {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		return nil
	}
	return &service.Actor{ID: claims.UserID, Role: claims.Role}
}

// requireActor writes 401 and reports false when no principal is attached.
func requireActor(c *gin.Context) (service.Actor, bool) {
	actor := optionalActor(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return service.Actor{}, false
	}
	return *actor, true
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}

// bindOptionalJSON accepts an empty body, for endpoints whose payload only carries remarks.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, dst)
}

type queueLister interface {
	List(ctx context.Context, queue service.Queue, actor service.Actor) ([]models.QueueEntry, error)
}

func serveQueue(c *gin.Context, queues queueLister, queue service.Queue) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	entries, err := queues.List(c.Request.Context(), queue, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
