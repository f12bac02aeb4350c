package bothandler

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/meetsmatch/matchengine/internal/events"
	"github.com/meetsmatch/matchengine/internal/matching"
)

func TestChatID(t *testing.T) {
	tests := []struct {
		party  string
		want   int64
		wantOK bool
	}{
		{party: "tg:42", want: 42, wantOK: true},
		{party: "tg:-1001", want: -1001, wantOK: true},
		{party: "alice"},
		{party: "tg:"},
		{party: "tg:abc"},
	}

	for _, tt := range tests {
		t.Run(tt.party, func(t *testing.T) {
			got, ok := ChatID(tt.party)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	id, ok := ChatID(PartyID(7))
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
}

func sentTo(chatID int64, mention string) interface{} {
	return mock.MatchedBy(func(p *bot.SendMessageParams) bool {
		return p.ChatID == chatID && strings.HasPrefix(p.Text, matchText) && strings.Contains(p.Text, mention)
	})
}

func notification(recipient string) events.MatchNotification {
	return events.MatchNotification{
		MatchCreated: matching.MatchCreated{MatchID: "m1", PartyA: "tg:1", PartyB: "tg:2"},
		Recipient:    recipient,
	}
}

func TestHandleMatchNotification(t *testing.T) {
	ctx := context.Background()

	t.Run("names the counterpart", func(t *testing.T) {
		client := new(MockClient)
		client.On("SendMessage", mock.Anything, sentTo(2, "user 1")).Return(&models.Message{}, nil).Once()
		h := NewHandler(client, nil, WithLogger(quietLogger(t)))

		require.NoError(t, h.HandleMatchNotification(ctx, notification("tg:2")))
		client.AssertExpectations(t)
	})

	t.Run("other front ends are skipped", func(t *testing.T) {
		client := new(MockClient)
		h := NewHandler(client, nil, WithLogger(quietLogger(t)))

		n := events.MatchNotification{
			MatchCreated: matching.MatchCreated{MatchID: "m2", PartyA: "alice", PartyB: "tg:3"},
			Recipient:    "alice",
		}
		require.NoError(t, h.HandleMatchNotification(ctx, n))
		client.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
	})

	t.Run("failure retries only the failed recipient", func(t *testing.T) {
		client := new(MockClient)
		client.On("SendMessage", mock.Anything, sentTo(1, "user 2")).Return(nil, errors.New("blocked by user")).Once()
		client.On("SendMessage", mock.Anything, sentTo(2, "user 1")).Return(&models.Message{}, nil).Once()
		client.On("SendMessage", mock.Anything, sentTo(1, "user 2")).Return(&models.Message{}, nil).Once()
		h := NewHandler(client, nil, WithLogger(quietLogger(t)))

		err := h.HandleMatchNotification(ctx, notification("tg:1"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "blocked by user")
		require.NoError(t, h.HandleMatchNotification(ctx, notification("tg:2")))

		// The queue retries the failed task alone.
		require.NoError(t, h.HandleMatchNotification(ctx, notification("tg:1")))

		client.AssertExpectations(t)
		client.AssertNumberOfCalls(t, "SendMessage", 3)
	})
}
