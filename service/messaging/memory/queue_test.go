package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type testPayload struct {
	ID     string
	Topic  string
	Amount int
}

func TestQueue(t *testing.T) {
	config := DefaultConfig()
	config.RetryDelay = 10 * time.Millisecond
	queue := NewQueue[testPayload](config)

	ctx := context.Background()
	payload := testPayload{ID: "evt-1", Topic: "decision.created", Amount: 1}

	err := queue.Publish(ctx, &payload)
	assert.NoError(t, err)
	assert.Equal(t, 1, queue.Size())

	message, err := queue.Consume(ctx)
	assert.NoError(t, err)
	assert.NotNil(t, message)
	assert.Equal(t, 0, queue.Size())

	data := message.T()
	assert.Equal(t, payload.ID, data.ID)
	assert.Equal(t, payload.Topic, data.Topic)
	assert.Equal(t, payload.Amount, data.Amount)

	assert.NoError(t, message.Ack())
	// Double ack is rejected.
	assert.Error(t, message.Ack())
}

func TestQueueNackRetries(t *testing.T) {
	config := Config{MaxRetries: 2, RetryDelay: 5 * time.Millisecond, QueueBuffer: 10}
	queue := NewQueue[testPayload](config)
	ctx := context.Background()

	assert.NoError(t, queue.Publish(ctx, &testPayload{ID: "evt-1"}))

	// Nack through every retry until the message parks on the DLQ.
	for i := 0; i <= config.MaxRetries; i++ {
		consumeCtx, cancel := context.WithTimeout(ctx, time.Second)
		message, err := queue.Consume(consumeCtx)
		cancel()
		assert.NoError(t, err)
		assert.NoError(t, message.Nack(fmt.Errorf("processing failed")))
	}

	assert.Eventually(t, func() bool { return queue.DLQSize() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, queue.Size())
}

func TestQueueConsumeCancelled(t *testing.T) {
	queue := NewQueue[testPayload](DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := queue.Consume(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
