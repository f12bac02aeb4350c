package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/meetsmatch/matchengine/internal/errors"
	"github.com/meetsmatch/matchengine/internal/telemetry"
)

// Materializer turns a mutual-positive pair into exactly one Match and one
// Channel. The store's unique constraint on the pair key is the only
// synchronization; nothing is locked in process.
type Materializer struct {
	store   MatchStore
	clock   func() time.Time
	newID   func() string
	metrics Metrics
	logger  *telemetry.Logger
}

// NewMaterializer creates a Materializer over store.
func NewMaterializer(store MatchStore) *Materializer {
	return &Materializer{
		store:   store,
		clock:   func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		metrics: nopMetrics{},
	}
}

func (m *Materializer) log(ctx context.Context) *telemetry.ContextualLogger {
	if m.logger != nil {
		return m.logger.WithContext(ctx)
	}
	return telemetry.GetContextualLogger(ctx)
}

// EnsureMatch returns the Match and Channel for key, creating both if absent.
// It is safe to call concurrently and repeatedly for the same key.
func (m *Materializer) EnsureMatch(ctx context.Context, key PairKey) (MatchResult, error) {
	partyA, partyB, ok := key.Parties()
	if !ok {
		return MatchResult{}, apperrors.NewValidationError("pair_key", "malformed pair key").
			WithMetadata("pair_key", string(key))
	}

	now := m.clock()
	match := Match{
		ID:        m.newID(),
		PairKey:   key,
		PartyA:    partyA,
		PartyB:    partyB,
		Status:    MatchStatusActive,
		CreatedAt: now,
	}
	channel := Channel{
		ID:           m.newID(),
		MatchID:      match.ID,
		MatchPairKey: key,
		CreatedAt:    now,
	}

	created, err := m.store.CreateMatch(ctx, match, channel)
	if err != nil {
		return MatchResult{}, err
	}
	if created {
		m.metrics.MatchCreated(ctx)
		m.log(ctx).WithFields(map[string]interface{}{
			"operation":  "ensure_match",
			"pair_key":   string(key),
			"match_id":   match.ID,
			"channel_id": channel.ID,
		}).Info("Match created")
		return MatchResult{MatchID: match.ID, ChannelID: channel.ID, Created: true}, nil
	}

	m.metrics.MatchReadBack(ctx)
	return m.readBack(ctx, key)
}

func (m *Materializer) readBack(ctx context.Context, key PairKey) (MatchResult, error) {
	existing, ok, err := m.store.FindMatch(ctx, key)
	if err != nil {
		return MatchResult{}, err
	}
	if !ok {
		// The conflicting row is committed before our insert observes it, so a
		// miss here means the store lost a write.
		return MatchResult{}, apperrors.NewStorageUnavailableError("read back match",
			fmt.Errorf("match %s not visible after insert conflict", key))
	}

	channel, ok, err := m.store.FindChannel(ctx, key)
	if err != nil {
		return MatchResult{}, err
	}
	if !ok {
		channel, err = m.repairChannel(ctx, existing)
		if err != nil {
			return MatchResult{}, err
		}
	}

	return MatchResult{MatchID: existing.ID, ChannelID: channel.ID}, nil
}

func (m *Materializer) repairChannel(ctx context.Context, match Match) (Channel, error) {
	m.log(ctx).
		WithError(apperrors.NewInconsistentStateError(string(match.PairKey))).
		WithFields(map[string]interface{}{
			"operation": "repair_channel",
			"pair_key":  string(match.PairKey),
			"match_id":  match.ID,
		}).Warn("Match has no channel, repairing")

	candidate := Channel{
		ID:           m.newID(),
		MatchID:      match.ID,
		MatchPairKey: match.PairKey,
		CreatedAt:    m.clock(),
	}
	inserted, err := m.store.CreateChannel(ctx, candidate)
	if err != nil {
		return Channel{}, err
	}
	if inserted {
		m.metrics.ChannelRepaired(ctx)
		return candidate, nil
	}

	channel, ok, err := m.store.FindChannel(ctx, match.PairKey)
	if err != nil {
		return Channel{}, err
	}
	if !ok {
		return Channel{}, apperrors.NewStorageUnavailableError("read back channel",
			fmt.Errorf("channel %s not visible after insert conflict", match.PairKey))
	}
	return channel, nil
}
