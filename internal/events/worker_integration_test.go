package events

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func TestWorkerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	redisURI := startRedis(t)
	redisOpt, err := asynq.ParseRedisURI(redisURI)
	require.NoError(t, err)

	client := asynq.NewClient(redisOpt)
	defer client.Close()
	publisher := NewAsynqPublisher(client, "notifications")

	handler := &recordingHandler{}
	worker, err := NewWorker(redisURI, "notifications", 2, handler)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	require.NoError(t, publisher.PublishMatchCreated(ctx, sampleEvent()))
	require.NoError(t, publisher.PublishMatchCreated(ctx, sampleEvent()))

	require.Eventually(t, func() bool { return len(handler.notifications()) == 2 }, 10*time.Second, 50*time.Millisecond)
	assert.NoError(t, worker.Healthy(ctx))
	var recipients []string
	for _, n := range handler.notifications() {
		assert.Equal(t, sampleEvent().MatchID, n.MatchID)
		recipients = append(recipients, n.Recipient)
	}
	assert.ElementsMatch(t, []string{"alice", "bob"}, recipients)

	cancel()
	require.NoError(t, <-done)
	assert.Error(t, worker.Healthy(context.Background()))
}
