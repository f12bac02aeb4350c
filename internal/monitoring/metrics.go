package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	apperrors "github.com/meetsmatch/matchengine/internal/errors"
	"github.com/meetsmatch/matchengine/internal/matching"
)

// EngineMetrics records matching engine counters with OpenTelemetry. It
// implements matching.Metrics.
type EngineMetrics struct {
	swipesRecorded metric.Int64Counter
	matchesCreated metric.Int64Counter
	matchReadBacks metric.Int64Counter
	channelRepairs metric.Int64Counter
	ensureRetries  metric.Int64Counter
	swipeDuration  metric.Float64Histogram
}

var _ matching.Metrics = (*EngineMetrics)(nil)

// NewEngineMetrics creates the engine instruments on provider. A nil provider
// means the global one.
func NewEngineMetrics(provider metric.MeterProvider) (*EngineMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(instrumentationName, metric.WithInstrumentationVersion(instrumentationVersion))

	swipesRecorded, err := meter.Int64Counter(
		"swipes_recorded_total",
		metric.WithDescription("Total number of swipe decisions recorded"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create swipes_recorded_total counter: %w", err)
	}

	matchesCreated, err := meter.Int64Counter(
		"matches_created_total",
		metric.WithDescription("Total number of matches created"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create matches_created_total counter: %w", err)
	}

	matchReadBacks, err := meter.Int64Counter(
		"match_readbacks_total",
		metric.WithDescription("Match inserts that found an existing match and read it back"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create match_readbacks_total counter: %w", err)
	}

	channelRepairs, err := meter.Int64Counter(
		"channel_repairs_total",
		metric.WithDescription("Channels created for matches found without one"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel_repairs_total counter: %w", err)
	}

	ensureRetries, err := meter.Int64Counter(
		"ensure_match_retries_total",
		metric.WithDescription("Retries of match materialization after storage faults"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ensure_match_retries_total counter: %w", err)
	}

	swipeDuration, err := meter.Float64Histogram(
		"record_swipe_duration_seconds",
		metric.WithDescription("RecordSwipe duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create record_swipe_duration_seconds histogram: %w", err)
	}

	return &EngineMetrics{
		swipesRecorded: swipesRecorded,
		matchesCreated: matchesCreated,
		matchReadBacks: matchReadBacks,
		channelRepairs: channelRepairs,
		ensureRetries:  ensureRetries,
		swipeDuration:  swipeDuration,
	}, nil
}

func (m *EngineMetrics) SwipeRecorded(ctx context.Context, disposition matching.Disposition) {
	m.swipesRecorded.Add(ctx, 1, metric.WithAttributes(attribute.String("disposition", string(disposition))))
}

func (m *EngineMetrics) MatchCreated(ctx context.Context) {
	m.matchesCreated.Add(ctx, 1)
}

func (m *EngineMetrics) MatchReadBack(ctx context.Context) {
	m.matchReadBacks.Add(ctx, 1)
}

func (m *EngineMetrics) ChannelRepaired(ctx context.Context) {
	m.channelRepairs.Add(ctx, 1)
}

func (m *EngineMetrics) EnsureMatchRetried(ctx context.Context) {
	m.ensureRetries.Add(ctx, 1)
}

func (m *EngineMetrics) ObserveRecordSwipe(ctx context.Context, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errorType, ok := apperrors.GetErrorType(err); ok {
			outcome = string(errorType)
		}
	}
	m.swipeDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}
