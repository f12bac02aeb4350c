package bothandler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"

	"github.com/meetsmatch/matchengine/internal/events"
)

// ChatID is the inverse of PartyID. It reports false for parties that are
// not Telegram users.
func ChatID(partyID string) (int64, bool) {
	raw, ok := strings.CutPrefix(partyID, PartyPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// HandleMatchNotification tells one party of a new match about the other.
// Parties from other front ends are skipped. A send failure is returned so the
// notification is retried for this recipient only.
func (h *Handler) HandleMatchNotification(ctx context.Context, n events.MatchNotification) error {
	logger := h.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"operation": "notify_match",
		"match_id":  n.MatchID,
		"recipient": n.Recipient,
	})

	chatID, ok := ChatID(n.Recipient)
	if !ok {
		logger.Debug("Recipient is not a Telegram user")
		return nil
	}

	if _, err := h.client.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   matchNotice(n.Counterpart()),
	}); err != nil {
		logger.WithError(err).Warn("Match notification failed")
		return fmt.Errorf("notify %s: %w", n.Recipient, err)
	}

	logger.Info("Match notification sent")
	return nil
}

func matchNotice(otherParty string) string {
	if chatID, ok := ChatID(otherParty); ok {
		return fmt.Sprintf("%s You matched with user %d.", matchText, chatID)
	}
	return matchText
}
