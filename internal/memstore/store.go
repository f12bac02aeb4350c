// Package memstore keeps decisions, matches and channels in process memory.
// It enforces the same uniqueness rules as the durable stores and is used for
// local runs and tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/meetsmatch/matchengine/internal/errors"
	"github.com/meetsmatch/matchengine/internal/matching"
)

type decisionKey struct {
	actorID  string
	targetID string
}

// Store implements matching.DecisionStore, matching.MatchStore and
// matching.MatchReader.
type Store struct {
	mu        sync.RWMutex
	decisions map[decisionKey]matching.SwipeDecision
	matches   map[matching.PairKey]matching.Match
	channels  map[matching.PairKey]matching.Channel
}

// Counts summarizes what the store holds.
type Counts struct {
	Decisions int
	Matches   int
	Channels  int
}

func New() *Store {
	return &Store{
		decisions: make(map[decisionKey]matching.SwipeDecision),
		matches:   make(map[matching.PairKey]matching.Match),
		channels:  make(map[matching.PairKey]matching.Channel),
	}
}

func (s *Store) Put(ctx context.Context, decision matching.SwipeDecision) error {
	if err := alive(ctx, "put decision"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[decisionKey{decision.ActorID, decision.TargetID}] = decision
	return nil
}

func (s *Store) Get(ctx context.Context, actorID, targetID string) (matching.SwipeDecision, bool, error) {
	if err := alive(ctx, "get decision"); err != nil {
		return matching.SwipeDecision{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	decision, ok := s.decisions[decisionKey{actorID, targetID}]
	return decision, ok, nil
}

func (s *Store) CreateMatch(ctx context.Context, match matching.Match, channel matching.Channel) (bool, error) {
	if err := alive(ctx, "create match"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.matches[match.PairKey]; exists {
		return false, nil
	}
	s.matches[match.PairKey] = match
	if _, exists := s.channels[channel.MatchPairKey]; !exists {
		s.channels[channel.MatchPairKey] = channel
	}
	return true, nil
}

func (s *Store) FindMatch(ctx context.Context, key matching.PairKey) (matching.Match, bool, error) {
	if err := alive(ctx, "find match"); err != nil {
		return matching.Match{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	match, ok := s.matches[key]
	return match, ok, nil
}

func (s *Store) FindChannel(ctx context.Context, key matching.PairKey) (matching.Channel, bool, error) {
	if err := alive(ctx, "find channel"); err != nil {
		return matching.Channel{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	channel, ok := s.channels[key]
	return channel, ok, nil
}

func (s *Store) CreateChannel(ctx context.Context, channel matching.Channel) (bool, error) {
	if err := alive(ctx, "create channel"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.channels[channel.MatchPairKey]; exists {
		return false, nil
	}
	s.channels[channel.MatchPairKey] = channel
	return true, nil
}

func (s *Store) GetMatchByID(ctx context.Context, matchID string) (matching.Match, bool, error) {
	if err := alive(ctx, "get match"); err != nil {
		return matching.Match{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, match := range s.matches {
		if match.ID == matchID {
			return match, true, nil
		}
	}
	return matching.Match{}, false, nil
}

func (s *Store) GetChannelByID(ctx context.Context, channelID string) (matching.Channel, bool, error) {
	if err := alive(ctx, "get channel"); err != nil {
		return matching.Channel{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, channel := range s.channels {
		if channel.ID == channelID {
			return channel, true, nil
		}
	}
	return matching.Channel{}, false, nil
}

func (s *Store) ListMatchesByParty(ctx context.Context, partyID string, limit int) ([]matching.Match, error) {
	if err := alive(ctx, "list matches"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	result := make([]matching.Match, 0)
	for _, match := range s.matches {
		if match.HasParty(partyID) {
			result = append(result, match)
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// SeedMatch stores a match without its channel, as left behind by a writer
// that crashed between the two inserts.
func (s *Store) SeedMatch(match matching.Match) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[match.PairKey] = match
}

func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counts{
		Decisions: len(s.decisions),
		Matches:   len(s.matches),
		Channels:  len(s.channels),
	}
}

// alive reports a done context the way a backing store reports a fault, so
// callers see one error kind. The context error stays reachable via errors.Is.
func alive(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStorageUnavailableError(operation, err)
	}
	return nil
}
