package memqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neurobridge-backend/orcaengine/internal/engine/message"
	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
)

func TestQueue_PushPoll(t *testing.T) {
	q := New(time.Minute)
	ctx := context.Background()

	msg := message.For(message.KindStartStage, model.ExecutionTypePipeline, mustUUID(), "orca")
	require.NoError(t, q.Push(ctx, msg))

	d, ok, err := q.Poll(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, message.KindStartStage, d.Message.Kind)

	_, ok, err = q.Poll(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestQueue_DelayNotYetVisible(t *testing.T) {
	q := New(time.Minute)
	ctx := context.Background()

	msg := message.For(message.KindRunTask, model.ExecutionTypePipeline, mustUUID(), "orca")
	require.NoError(t, q.PushDelay(ctx, msg, 50*time.Millisecond))

	_, ok, err := q.Poll(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok, err = q.Poll(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestQueue_NackRedelivers(t *testing.T) {
	q := New(time.Minute)
	ctx := context.Background()

	msg := message.For(message.KindStartTask, model.ExecutionTypePipeline, mustUUID(), "orca")
	require.NoError(t, q.Push(ctx, msg))

	d, ok, err := q.Poll(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, q.Nack(ctx, d.Token))

	d2, ok, err := q.Poll(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, msg.Kind, d2.Message.Kind)
}

func TestQueue_AckRemoves(t *testing.T) {
	q := New(time.Minute)
	ctx := context.Background()

	msg := message.For(message.KindCompleteTask, model.ExecutionTypePipeline, mustUUID(), "orca")
	require.NoError(t, q.Push(ctx, msg))
	d, ok, _ := q.Poll(ctx)
	require.True(t, ok)
	require.NoError(t, q.Ack(ctx, d.Token))

	_, ok, err := q.Poll(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestQueue_VisibilityTimeoutRedelivers(t *testing.T) {
	q := New(30 * time.Millisecond)
	ctx := context.Background()

	msg := message.For(message.KindRunTask, model.ExecutionTypePipeline, mustUUID(), "orca")
	require.NoError(t, q.Push(ctx, msg))
	_, ok, _ := q.Poll(ctx)
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok, err := q.Poll(ctx)
	require.NoError(t, err)
	require.True(t, ok, "message should be redelivered after visibility timeout without an ack")
}

func TestQueue_CloseRejects(t *testing.T) {
	q := New(time.Minute)
	ctx := context.Background()
	require.NoError(t, q.Close())

	err := q.Push(ctx, message.For(message.KindStartStage, model.ExecutionTypePipeline, mustUUID(), "orca"))
	require.Error(t, err)
}
