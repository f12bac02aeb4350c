package matching

import (
	"context"
	"time"
)

// DecisionStore persists the latest decision per ordered (actor, target) pair.
// Faults are reported as StorageUnavailable app errors.
type DecisionStore interface {
	Put(ctx context.Context, decision SwipeDecision) error
	Get(ctx context.Context, actorID, targetID string) (SwipeDecision, bool, error)
}

// MatchStore owns the matches and channels tables. Implementations must enforce
// uniqueness of Match.PairKey and Channel.MatchPairKey in the store itself.
type MatchStore interface {
	// CreateMatch inserts match if no match exists for its pair key and, in the
	// same atomic unit, inserts channel. It reports whether this call inserted.
	CreateMatch(ctx context.Context, match Match, channel Channel) (bool, error)
	FindMatch(ctx context.Context, key PairKey) (Match, bool, error)
	FindChannel(ctx context.Context, key PairKey) (Channel, bool, error)
	// CreateChannel inserts channel unless one exists for its match pair key.
	CreateChannel(ctx context.Context, channel Channel) (bool, error)
}

// MatchReader serves lookups for messaging collaborators. Not every store
// implements it.
type MatchReader interface {
	GetMatchByID(ctx context.Context, matchID string) (Match, bool, error)
	GetChannelByID(ctx context.Context, channelID string) (Channel, bool, error)
	ListMatchesByParty(ctx context.Context, partyID string, limit int) ([]Match, error)
}

// ResultCache remembers complete match results per pair. It is never the
// source of truth; misses and errors fall through to the MatchStore.
type ResultCache interface {
	Get(ctx context.Context, key PairKey) (MatchResult, bool, error)
	Put(ctx context.Context, key PairKey, result MatchResult) error
}

// EventPublisher announces newly created matches to downstream collaborators.
type EventPublisher interface {
	PublishMatchCreated(ctx context.Context, event MatchCreated) error
}

// Metrics receives engine counters.
type Metrics interface {
	SwipeRecorded(ctx context.Context, disposition Disposition)
	MatchCreated(ctx context.Context)
	MatchReadBack(ctx context.Context)
	ChannelRepaired(ctx context.Context)
	EnsureMatchRetried(ctx context.Context)
	ObserveRecordSwipe(ctx context.Context, elapsed time.Duration, err error)
}

type nopMetrics struct{}

func (nopMetrics) SwipeRecorded(context.Context, Disposition)               {}
func (nopMetrics) MatchCreated(context.Context)                             {}
func (nopMetrics) MatchReadBack(context.Context)                            {}
func (nopMetrics) ChannelRepaired(context.Context)                          {}
func (nopMetrics) EnsureMatchRetried(context.Context)                       {}
func (nopMetrics) ObserveRecordSwipe(context.Context, time.Duration, error) {}
