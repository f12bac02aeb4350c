package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/meetsmatch/matchengine/internal/errors"
)

// ActorIDHeader is set by the authenticating proxy in front of the API.
const ActorIDHeader = "X-Actor-ID"

type actorIDKey struct{}

// WithActorID returns a context carrying the authenticated party id.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey{}, actorID)
}

// ActorID returns the authenticated party id stored by ActorMiddleware.
func ActorID(ctx context.Context) (string, bool) {
	actorID, ok := ctx.Value(actorIDKey{}).(string)
	return actorID, ok && actorID != ""
}

// ActorMiddleware rejects requests without an authenticated actor.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := strings.TrimSpace(c.GetHeader(ActorIDHeader))
		if actorID == "" {
			_ = c.Error(apperrors.NewAuthenticationError("missing " + ActorIDHeader + " header"))
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(WithActorID(c.Request.Context(), actorID))
		c.Next()
	}
}
