package realtime

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisBroker(t *testing.T) *RedisBroker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisBroker(client, nil)
}

func TestRedisBroker_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	b := newRedisBroker(t)
	ch := UserChannel(uuid.New())

	sub, err := b.Subscribe(ctx, ch)
	require.NoError(t, err)
	defer sub.Close()

	evt, err := NewEvent(EventNewNotification, map[string]string{"title": "Listing approved"})
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, ch, evt))

	got := receive(t, sub)
	assert.Equal(t, EventNewNotification, got.Type)
	assert.Equal(t, ch, got.Channel)
	assert.JSONEq(t, `{"title":"Listing approved"}`, string(got.Data))
}

func TestRedisBroker_CloseEndsEvents(t *testing.T) {
	ctx := context.Background()
	b := newRedisBroker(t)

	sub, err := b.Subscribe(ctx, ThreadChannel(uuid.New()))
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	for range sub.Events() {
	}
}
