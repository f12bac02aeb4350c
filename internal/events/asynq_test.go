package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetsmatch/matchengine/internal/matching"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	ids   map[string]bool
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	info := &asynq.TaskInfo{Type: task.Type(), Payload: task.Payload()}
	for _, opt := range opts {
		switch opt.Type() {
		case asynq.QueueOpt:
			info.Queue = opt.Value().(string)
		case asynq.TaskIDOpt:
			info.ID = opt.Value().(string)
		}
	}
	if f.ids == nil {
		f.ids = make(map[string]bool)
	}
	if f.ids[info.ID] {
		return nil, asynq.ErrTaskIDConflict
	}
	f.ids[info.ID] = true
	f.tasks = append(f.tasks, task)
	return info, nil
}

type recordingHandler struct {
	mu       sync.Mutex
	received []MatchNotification
	err      error
}

func (h *recordingHandler) HandleMatchNotification(_ context.Context, n MatchNotification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.received = append(h.received, n)
	return h.err
}

func (h *recordingHandler) notifications() []MatchNotification {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]MatchNotification(nil), h.received...)
}

func sampleEvent() matching.MatchCreated {
	return matching.MatchCreated{
		MatchID:   "match-1",
		ChannelID: "channel-1",
		PairKey:   matching.Normalize("alice", "bob"),
		PartyA:    "alice",
		PartyB:    "bob",
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAsynqPublisher_EnqueuesOncePerRecipient(t *testing.T) {
	ctx := context.Background()
	enqueuer := &fakeEnqueuer{}
	publisher := NewAsynqPublisher(enqueuer, "")

	require.NoError(t, publisher.PublishMatchCreated(ctx, sampleEvent()))
	require.NoError(t, publisher.PublishMatchCreated(ctx, sampleEvent()))

	require.Len(t, enqueuer.tasks, 2)
	var recipients []string
	for _, task := range enqueuer.tasks {
		n, err := ParseMatchNotificationTask(task)
		require.NoError(t, err)
		assert.Equal(t, sampleEvent(), n.MatchCreated)
		recipients = append(recipients, n.Recipient)
	}
	assert.ElementsMatch(t, []string{"alice", "bob"}, recipients)
	assert.True(t, enqueuer.ids["match-1/alice"])
	assert.True(t, enqueuer.ids["match-1/bob"])
}

func TestMatchNotification_Counterpart(t *testing.T) {
	event := sampleEvent()
	assert.Equal(t, "bob", MatchNotification{MatchCreated: event, Recipient: "alice"}.Counterpart())
	assert.Equal(t, "alice", MatchNotification{MatchCreated: event, Recipient: "bob"}.Counterpart())
}

func TestAsynqPublisher_EnqueueFailure(t *testing.T) {
	publisher := NewAsynqPublisher(&fakeEnqueuer{err: errors.New("redis down")}, "critical")

	err := publisher.PublishMatchCreated(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestParseMatchNotificationTask_Rejects(t *testing.T) {
	tests := []struct {
		name string
		task *asynq.Task
	}{
		{name: "wrong type", task: asynq.NewTask("match:deleted", []byte(`{"match_id":"m","recipient":"alice"}`))},
		{name: "bad json", task: asynq.NewTask(TypeMatchNotification, []byte(`{`))},
		{name: "no match id", task: asynq.NewTask(TypeMatchNotification, []byte(`{"recipient":"alice"}`))},
		{name: "no recipient", task: asynq.NewTask(TypeMatchNotification, []byte(`{"match_id":"m"}`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMatchNotificationTask(tt.task)
			assert.Error(t, err)
		})
	}
}

func TestMatchNotificationTaskHandler(t *testing.T) {
	ctx := context.Background()
	handler := &recordingHandler{}
	process := MatchNotificationTaskHandler(handler)

	want := MatchNotification{MatchCreated: sampleEvent(), Recipient: "alice"}
	task, err := NewMatchNotificationTask(want)
	require.NoError(t, err)
	require.NoError(t, process(ctx, task))
	assert.Equal(t, []MatchNotification{want}, handler.notifications())

	err = process(ctx, asynq.NewTask(TypeMatchNotification, []byte(`not json`)))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	handler.err = errors.New("telegram unavailable")
	err = process(ctx, task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

type failingPublisher struct{ err error }

func (p failingPublisher) PublishMatchCreated(context.Context, matching.MatchCreated) error {
	return p.err
}

func TestFanout(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	fanout := Fanout{
		failingPublisher{err: errors.New("nats down")},
		NewAsynqPublisher(enqueuer, "default"),
	}

	err := fanout.PublishMatchCreated(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats down")
	assert.Len(t, enqueuer.tasks, 2, "a failing publisher does not stop the others")

	assert.NoError(t, Fanout{}.PublishMatchCreated(context.Background(), sampleEvent()))
}

func TestNewWorker_BadURI(t *testing.T) {
	_, err := NewWorker("ftp://nowhere", "", 0, &recordingHandler{})
	assert.Error(t, err)
}
