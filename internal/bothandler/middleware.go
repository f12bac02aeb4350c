package bothandler

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/meetsmatch/matchengine/internal/telemetry"
)

type updateFunc func(ctx context.Context, update *models.Update)

// botHandler adapts fn to the bot library's handler signature.
func (h *Handler) botHandler(fn updateFunc) bot.HandlerFunc {
	return func(ctx context.Context, _ *bot.Bot, update *models.Update) {
		h.recovered(ctx, update, fn)
	}
}

// recovered runs fn with a correlation id on ctx and turns a panic into a
// logged error so one bad update cannot stop polling.
func (h *Handler) recovered(ctx context.Context, update *models.Update, fn updateFunc) {
	if telemetry.GetCorrelationID(ctx) == "" {
		ctx = telemetry.WithCorrelationID(ctx, telemetry.NewCorrelationID())
	}
	defer func() {
		if r := recover(); r != nil {
			h.logger.WithContext(ctx).WithFields(map[string]interface{}{
				"operation":   "bot_update_panic",
				"update_id":   update.ID,
				"panic_value": fmt.Sprintf("%v", r),
				"stack_trace": string(debug.Stack()),
			}).Error("Panic recovered in bot handler")
		}
	}()
	fn(ctx, update)
}
