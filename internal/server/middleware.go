package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/equiplytics/internal/observability/context"
)

const (
	// HeaderOwner carries the authenticated owner, set by the upstream gateway.
	HeaderOwner       = "X-Owner-ID"
	contextOwnerIDKey = "owner_id"
)

func OwnerRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := strings.TrimSpace(c.GetHeader(HeaderOwner))
		if ownerID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextOwnerIDKey, ownerID)
		c.Request = c.Request.WithContext(obscontext.WithOwnerID(c.Request.Context(), ownerID))
		c.Next()
	}
}

func ownerID(c *gin.Context) string {
	return c.GetString(contextOwnerIDKey)
}
