package bothandler

import (
	"strings"

	"github.com/go-telegram/bot/models"

	apperrors "github.com/meetsmatch/matchengine/internal/errors"
	"github.com/meetsmatch/matchengine/internal/matching"
)

// Telegram rejects callback data longer than this many bytes.
const maxCallbackData = 64

// ParseSwipeCallback splits "swipe:<vocab>:<target>" into the target party and
// the decision. Any vocabulary matching.ParseDisposition accepts is allowed.
func ParseSwipeCallback(data string) (string, matching.Disposition, error) {
	rest, ok := strings.CutPrefix(data, SwipePrefix)
	if !ok {
		return "", "", apperrors.NewValidationError("callback_data", "not a swipe callback")
	}
	vocab, target, ok := strings.Cut(rest, ":")
	if !ok || strings.TrimSpace(target) == "" {
		return "", "", apperrors.NewValidationError("callback_data", "swipe target is missing")
	}
	disposition, err := matching.ParseDisposition(vocab)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(target), disposition, nil
}

// SwipeCallbackData builds the callback data for one button.
func SwipeCallbackData(vocab, targetID string) string {
	return SwipePrefix + vocab + ":" + targetID
}

// SwipeKeyboard returns the like, super like and pass buttons for targetID.
func SwipeKeyboard(targetID string) (*models.InlineKeyboardMarkup, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return nil, apperrors.NewValidationError("target_id", "target id is required")
	}
	if len(SwipeCallbackData("superlike", targetID)) > maxCallbackData {
		return nil, apperrors.NewValidationError("target_id", "target id is too long")
	}

	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "👎 Pass", CallbackData: SwipeCallbackData("pass", targetID)},
				{Text: "⭐ Super", CallbackData: SwipeCallbackData("superlike", targetID)},
				{Text: "💚 Like", CallbackData: SwipeCallbackData("like", targetID)},
			},
		},
	}, nil
}
