package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/meetsmatch/matchengine/internal/matching"
	"github.com/meetsmatch/matchengine/internal/telemetry"
)

const (
	// TypeMatchNotification is the asynq task type telling one party about a
	// new match.
	TypeMatchNotification = "match:notify"
	DefaultQueue          = "default"
	defaultMaxRetry       = 10
)

// TaskEnqueuer is the part of *asynq.Client the publisher uses.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// MatchNotification is a new match addressed to one of its parties.
type MatchNotification struct {
	matching.MatchCreated
	Recipient string `json:"recipient"`
}

// Counterpart returns the party the recipient matched with.
func (n MatchNotification) Counterpart() string {
	if n.Recipient == n.PartyA {
		return n.PartyB
	}
	return n.PartyA
}

func (n MatchNotification) taskID() string {
	return n.MatchID + "/" + n.Recipient
}

// AsynqPublisher queues one notification task per party of a new match. The
// task id is derived from the match and the recipient, so each party is queued
// at most once and a failed delivery is retried for that party alone.
type AsynqPublisher struct {
	client TaskEnqueuer
	queue  string
}

func NewAsynqPublisher(client TaskEnqueuer, queue string) *AsynqPublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &AsynqPublisher{client: client, queue: queue}
}

// NewMatchNotificationTask encodes n as a task payload.
func NewMatchNotificationTask(n MatchNotification) (*asynq.Task, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal match notification: %w", err)
	}
	return asynq.NewTask(TypeMatchNotification, payload), nil
}

// ParseMatchNotificationTask decodes a task built by NewMatchNotificationTask.
func ParseMatchNotificationTask(task *asynq.Task) (MatchNotification, error) {
	var n MatchNotification
	if task.Type() != TypeMatchNotification {
		return n, fmt.Errorf("unexpected task type %q", task.Type())
	}
	if err := json.Unmarshal(task.Payload(), &n); err != nil {
		return n, fmt.Errorf("unmarshal match notification: %w", err)
	}
	if n.MatchID == "" || n.Recipient == "" {
		return n, errors.New("match notification without match id or recipient")
	}
	return n, nil
}

func (p *AsynqPublisher) PublishMatchCreated(ctx context.Context, event matching.MatchCreated) error {
	var errs []error
	for _, recipient := range []string{event.PartyA, event.PartyB} {
		if err := p.enqueue(ctx, MatchNotification{MatchCreated: event, Recipient: recipient}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *AsynqPublisher) enqueue(ctx context.Context, n MatchNotification) error {
	task, err := NewMatchNotificationTask(n)
	if err != nil {
		return err
	}

	info, err := p.client.EnqueueContext(ctx, task,
		asynq.Queue(p.queue),
		asynq.TaskID(n.taskID()),
		asynq.MaxRetry(defaultMaxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue match notification for %s: %w", n.Recipient, err)
	}

	telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "enqueue_match_notification",
		"queue":     info.Queue,
		"task_id":   info.ID,
	}).Debug("Match notification queued")
	return nil
}

// Fanout publishes every event to all publishers and joins their errors.
type Fanout []matching.EventPublisher

func (f Fanout) PublishMatchCreated(ctx context.Context, event matching.MatchCreated) error {
	var errs []error
	for _, publisher := range f {
		if err := publisher.PublishMatchCreated(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
