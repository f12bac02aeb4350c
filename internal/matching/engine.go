package matching

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/meetsmatch/matchengine/internal/errors"
	"github.com/meetsmatch/matchengine/internal/telemetry"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// EngineConfig bounds the retry of EnsureMatch on storage faults.
type EngineConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultEngineConfig returns three attempts between 25ms and 500ms apart.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxAttempts:    3,
		InitialBackoff: 25 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// Option configures an Engine.
type Option func(*Engine)

func WithConfig(config EngineConfig) Option {
	return func(e *Engine) {
		if config.MaxAttempts > 0 {
			e.config.MaxAttempts = config.MaxAttempts
		}
		if config.InitialBackoff > 0 {
			e.config.InitialBackoff = config.InitialBackoff
		}
		if config.MaxBackoff > 0 {
			e.config.MaxBackoff = config.MaxBackoff
		}
	}
}

// WithClock overrides the time source used for decided_at and created_at.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

func WithResultCache(cache ResultCache) Option {
	return func(e *Engine) {
		e.cache = cache
	}
}

func WithEventPublisher(publisher EventPublisher) Option {
	return func(e *Engine) {
		e.events = publisher
	}
}

func WithMetrics(metrics Metrics) Option {
	return func(e *Engine) {
		if metrics != nil {
			e.metrics = metrics
		}
	}
}

func WithLogger(logger *telemetry.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// Engine is the entry point for recording swipes and reading matches.
type Engine struct {
	decisions    DecisionStore
	matches      MatchStore
	detector     *Detector
	materializer *Materializer

	config  EngineConfig
	clock   func() time.Time
	cache   ResultCache
	events  EventPublisher
	metrics Metrics
	logger  *telemetry.Logger
}

// NewEngine wires an Engine over the given stores.
func NewEngine(decisions DecisionStore, matches MatchStore, opts ...Option) *Engine {
	e := &Engine{
		decisions: decisions,
		matches:   matches,
		config:    DefaultEngineConfig(),
		clock:     func() time.Time { return time.Now().UTC() },
		metrics:   nopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.detector = NewDetector(decisions)
	e.materializer = NewMaterializer(matches)
	e.materializer.clock = e.clock
	e.materializer.metrics = e.metrics
	e.materializer.logger = e.logger
	return e
}

func (e *Engine) log(ctx context.Context) *telemetry.ContextualLogger {
	if e.logger != nil {
		return e.logger.WithContext(ctx)
	}
	return telemetry.GetContextualLogger(ctx)
}

// RecordSwipe stores actor's decision about target and, when both sides are
// positive, makes sure the pair has a match and a channel.
func (e *Engine) RecordSwipe(ctx context.Context, actorID, targetID string, disposition Disposition) (outcome SwipeOutcome, err error) {
	start := time.Now()
	defer func() {
		e.metrics.ObserveRecordSwipe(ctx, time.Since(start), err)
	}()

	// Ids are compared and stored without surrounding space.
	actorID, targetID = strings.TrimSpace(actorID), strings.TrimSpace(targetID)
	if err := validateSwipe(actorID, targetID, disposition); err != nil {
		return SwipeOutcome{}, err
	}

	decision := SwipeDecision{
		ActorID:     actorID,
		TargetID:    targetID,
		Disposition: disposition,
		DecidedAt:   e.clock().UTC(),
	}
	if err := e.decisions.Put(ctx, decision); err != nil {
		return SwipeOutcome{}, err
	}
	e.metrics.SwipeRecorded(ctx, disposition)

	reciprocity, err := e.detector.Classify(ctx, decision)
	if err != nil {
		return SwipeOutcome{}, err
	}
	if reciprocity != MutualPositive {
		return SwipeOutcome{Matched: false}, nil
	}

	key := Normalize(actorID, targetID)
	if cached, ok := e.cachedResult(ctx, key); ok {
		return SwipeOutcome{Matched: true, MatchID: cached.MatchID, ChannelID: cached.ChannelID}, nil
	}

	result, err := e.ensureMatchWithRetry(ctx, key)
	if err != nil {
		e.log(ctx).WithError(err).WithFields(map[string]interface{}{
			"operation": "record_swipe",
			"pair_key":  string(key),
			"actor_id":  actorID,
		}).Error("Failed to materialize match")
		return SwipeOutcome{}, err
	}

	e.storeResult(ctx, key, result)
	if result.Created {
		e.publishCreated(ctx, key, result)
	}

	return SwipeOutcome{
		Matched:   true,
		MatchID:   result.MatchID,
		ChannelID: result.ChannelID,
		NewMatch:  result.Created,
	}, nil
}

func validateSwipe(actorID, targetID string, disposition Disposition) error {
	if actorID == "" {
		return apperrors.NewValidationError("actor_id", "actor id is required")
	}
	if targetID == "" {
		return apperrors.NewValidationError("target_id", "target id is required")
	}
	if actorID == targetID {
		return apperrors.NewInvalidPairError(actorID, targetID)
	}
	if !disposition.Valid() {
		return apperrors.NewValidationError("disposition", "unsupported disposition").
			WithMetadata("value", string(disposition))
	}
	return nil
}

// EnsureMatch exposes the materializer with the engine's retry policy.
func (e *Engine) EnsureMatch(ctx context.Context, key PairKey) (MatchResult, error) {
	return e.ensureMatchWithRetry(ctx, key)
}

func (e *Engine) ensureMatchWithRetry(ctx context.Context, key PairKey) (MatchResult, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = e.config.InitialBackoff
	expo.MaxInterval = e.config.MaxBackoff
	expo.MaxElapsedTime = 0
	expo.Reset()

	retries := uint64(0)
	if e.config.MaxAttempts > 1 {
		retries = uint64(e.config.MaxAttempts - 1)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, retries), ctx)

	operation := func() (MatchResult, error) {
		result, err := e.materializer.EnsureMatch(ctx, key)
		if err != nil && !apperrors.IsRetryable(err) {
			return MatchResult{}, backoff.Permanent(err)
		}
		return result, err
	}
	notify := func(err error, wait time.Duration) {
		e.metrics.EnsureMatchRetried(ctx)
		e.log(ctx).WithError(err).WithFields(map[string]interface{}{
			"operation": "ensure_match",
			"pair_key":  string(key),
			"wait":      wait.String(),
		}).Warn("Retrying match materialization")
	}

	return backoff.RetryNotifyWithData(operation, policy, notify)
}

func (e *Engine) cachedResult(ctx context.Context, key PairKey) (MatchResult, bool) {
	if e.cache == nil {
		return MatchResult{}, false
	}
	result, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.log(ctx).WithError(err).WithField("pair_key", string(key)).Debug("Match cache lookup failed")
		return MatchResult{}, false
	}
	if !ok || result.MatchID == "" || result.ChannelID == "" {
		return MatchResult{}, false
	}
	return result, true
}

func (e *Engine) storeResult(ctx context.Context, key PairKey, result MatchResult) {
	if e.cache == nil {
		return
	}
	cached := MatchResult{MatchID: result.MatchID, ChannelID: result.ChannelID}
	if err := e.cache.Put(ctx, key, cached); err != nil {
		e.log(ctx).WithError(err).WithField("pair_key", string(key)).Debug("Match cache store failed")
	}
}

func (e *Engine) publishCreated(ctx context.Context, key PairKey, result MatchResult) {
	if e.events == nil {
		return
	}
	partyA, partyB, _ := key.Parties()
	event := MatchCreated{
		MatchID:   result.MatchID,
		ChannelID: result.ChannelID,
		PairKey:   key,
		PartyA:    partyA,
		PartyB:    partyB,
		CreatedAt: e.clock().UTC(),
	}
	if err := e.events.PublishMatchCreated(ctx, event); err != nil {
		e.log(ctx).WithError(err).WithFields(map[string]interface{}{
			"operation": "publish_match_created",
			"match_id":  result.MatchID,
		}).Warn("Failed to publish match event")
	}
}

func (e *Engine) reader() (MatchReader, error) {
	reader, ok := e.matches.(MatchReader)
	if !ok {
		return nil, apperrors.NewNotImplementedError("match lookups")
	}
	return reader, nil
}

// GetMatch returns a match by id.
func (e *Engine) GetMatch(ctx context.Context, matchID string) (Match, error) {
	reader, err := e.reader()
	if err != nil {
		return Match{}, err
	}
	match, ok, err := reader.GetMatchByID(ctx, matchID)
	if err != nil {
		return Match{}, err
	}
	if !ok {
		return Match{}, apperrors.NewNotFoundError("match")
	}
	return match, nil
}

// GetChannel returns a channel by id.
func (e *Engine) GetChannel(ctx context.Context, channelID string) (Channel, error) {
	reader, err := e.reader()
	if err != nil {
		return Channel{}, err
	}
	channel, ok, err := reader.GetChannelByID(ctx, channelID)
	if err != nil {
		return Channel{}, err
	}
	if !ok {
		return Channel{}, apperrors.NewNotFoundError("channel")
	}
	return channel, nil
}

// ListMatches returns partyID's matches, newest first.
func (e *Engine) ListMatches(ctx context.Context, partyID string, limit int) ([]Match, error) {
	if strings.TrimSpace(partyID) == "" {
		return nil, apperrors.NewValidationError("party_id", "party id is required")
	}
	reader, err := e.reader()
	if err != nil {
		return nil, err
	}
	return reader.ListMatchesByParty(ctx, partyID, ClampLimit(limit))
}

// ClampLimit applies the list default and upper bound.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}
