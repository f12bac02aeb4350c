// Package bothandler lets Telegram users swipe through inline keyboard
// buttons. Every callback is translated into a RecordSwipe call.
package bothandler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	apperrors "github.com/meetsmatch/matchengine/internal/errors"
	"github.com/meetsmatch/matchengine/internal/matching"
	"github.com/meetsmatch/matchengine/internal/telemetry"
)

const (
	// SwipePrefix starts the callback data of every swipe button.
	SwipePrefix = "swipe:"
	// PartyPrefix namespaces Telegram users among the engine's party ids.
	PartyPrefix = "tg:"
	// WebhookSecretHeader carries the secret configured with setWebhook.
	WebhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

	matchText = "It's a match! 🎉 Say hi in your new chat."
	helpText  = "Send /swipe <user id> to get like, super like and pass buttons for a profile."
)

// Client is the subset of *bot.Bot the handler calls.
type Client interface {
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Swiper records swipe decisions.
type Swiper interface {
	RecordSwipe(ctx context.Context, actorID, targetID string, disposition matching.Disposition) (matching.SwipeOutcome, error)
}

type Handler struct {
	client        Client
	swiper        Swiper
	logger        *telemetry.Logger
	webhookSecret string
}

type Option func(*Handler)

func WithLogger(logger *telemetry.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithWebhookSecret makes HandleWebhook reject requests without the secret.
func WithWebhookSecret(secret string) Option {
	return func(h *Handler) { h.webhookSecret = secret }
}

func NewHandler(client Client, swiper Swiper, opts ...Option) *Handler {
	h := &Handler{client: client, swiper: swiper}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = telemetry.GetGlobalLogger()
	}
	return h
}

// PartyID maps a Telegram user id to an engine party id.
func PartyID(telegramID int64) string {
	return PartyPrefix + strconv.FormatInt(telegramID, 10)
}

// RegisterHandlers installs the swipe callback and command handlers on b.
func (h *Handler) RegisterHandlers(b *bot.Bot) {
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, SwipePrefix, bot.MatchTypePrefix, h.botHandler(h.handleCallback))
	b.RegisterHandler(bot.HandlerTypeMessageText, "/swipe", bot.MatchTypePrefix, h.botHandler(h.handleMessage))
	b.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, h.botHandler(h.handleMessage))
	b.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, h.botHandler(h.handleMessage))
}

// HandleWebhook accepts updates pushed by Telegram.
func (h *Handler) HandleWebhook(c *gin.Context) {
	if h.webhookSecret != "" && c.GetHeader(WebhookSecretHeader) != h.webhookSecret {
		_ = c.Error(apperrors.NewAuthenticationError("invalid webhook secret"))
		return
	}

	var update models.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		_ = c.Error(apperrors.NewValidationError("update", "invalid update JSON").WithDetails(err.Error()))
		return
	}

	h.HandleUpdate(c.Request.Context(), &update)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleUpdate dispatches one update. Updates the handler does not understand
// are ignored.
func (h *Handler) HandleUpdate(ctx context.Context, update *models.Update) {
	switch {
	case update.CallbackQuery != nil && strings.HasPrefix(update.CallbackQuery.Data, SwipePrefix):
		h.recovered(ctx, update, h.handleCallback)
	case update.Message != nil && strings.HasPrefix(update.Message.Text, "/"):
		h.recovered(ctx, update, h.handleMessage)
	}
}

func (h *Handler) handleCallback(ctx context.Context, update *models.Update) {
	callback := update.CallbackQuery
	actorID := PartyID(callback.From.ID)
	logger := h.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"operation":     "swipe_callback",
		"actor_id":      actorID,
		"callback_data": callback.Data,
	})

	target, disposition, err := ParseSwipeCallback(callback.Data)
	if err != nil {
		logger.WithError(err).Warn("Rejected swipe callback")
		h.answer(ctx, callback.ID, errorText(err), true)
		return
	}

	outcome, err := h.swiper.RecordSwipe(ctx, actorID, target, disposition)
	if err != nil {
		logger.WithError(err).Warn("Swipe failed")
		h.answer(ctx, callback.ID, errorText(err), true)
		return
	}

	if outcome.Matched {
		logger.WithField("match_id", outcome.MatchID).Info("Swipe produced a match")
		h.answer(ctx, callback.ID, matchText, outcome.NewMatch)
		return
	}
	h.answer(ctx, callback.ID, ackText(disposition), false)
}

func (h *Handler) handleMessage(ctx context.Context, update *models.Update) {
	message := update.Message
	fields := strings.Fields(message.Text)
	if len(fields) == 0 {
		return
	}

	switch command := strings.SplitN(fields[0], "@", 2)[0]; command {
	case "/swipe":
		if len(fields) != 2 {
			h.send(ctx, message.Chat.ID, "Usage: /swipe <user id>", nil)
			return
		}
		keyboard, err := SwipeKeyboard(fields[1])
		if err != nil {
			h.send(ctx, message.Chat.ID, errorText(err), nil)
			return
		}
		h.send(ctx, message.Chat.ID, fmt.Sprintf("What do you think of %s?", fields[1]), keyboard)
	case "/start", "/help":
		h.send(ctx, message.Chat.ID, helpText, nil)
	}
}

func (h *Handler) answer(ctx context.Context, callbackID, text string, alert bool) {
	_, err := h.client.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).WithField("operation", "answer_callback").
			Error("Failed to answer callback query")
	}
}

func (h *Handler) send(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{ChatID: chatID, Text: text}
	if keyboard != nil {
		params.ReplyMarkup = *keyboard
	}
	if _, err := h.client.SendMessage(ctx, params); err != nil {
		h.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"operation": "send_message",
			"chat_id":   chatID,
		}).Error("Failed to send message")
	}
}

func ackText(disposition matching.Disposition) string {
	switch disposition {
	case matching.DispositionSuperLike:
		return "Super like sent ⭐"
	case matching.DispositionLike:
		return "Liked 💚"
	default:
		return "Passed"
	}
}

// errorText converts an error to a user-facing answer.
func errorText(err error) string {
	errorType, _ := apperrors.GetErrorType(err)
	switch errorType {
	case apperrors.ErrorTypeValidation:
		if appErr, ok := apperrors.AsAppError(err); ok {
			return "❌ Invalid swipe: " + appErr.Message
		}
		return "❌ Invalid swipe"
	case apperrors.ErrorTypeInvalidPair:
		return "🙃 You can't swipe on yourself."
	case apperrors.ErrorTypeStorageUnavailable:
		return "⏱️ We couldn't save that right now. Please try again."
	default:
		return "❌ Something went wrong. Please try again later."
	}
}
