package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MemoryBroker fans events out inside one process. It backs single-node
// deployments without Redis.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{}
	logger *zap.Logger
}

func NewMemoryBroker(logger *zap.Logger) *MemoryBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryBroker{
		subs:   make(map[string]map[*memorySubscription]struct{}),
		logger: logger,
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	evt.Channel = channel

	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs[channel] {
		select {
		case s.events <- evt:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				zap.String("channel", channel),
				zap.String("type", string(evt.Type)))
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &memorySubscription{
		broker:   b,
		channels: channels,
		events:   make(chan Event, subscriberBuffer),
		done:     make(chan struct{}),
	}

	b.mu.Lock()
	for _, ch := range channels {
		if _, ok := b.subs[ch]; !ok {
			b.subs[ch] = make(map[*memorySubscription]struct{})
		}
		b.subs[ch][s] = struct{}{}
	}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()

	return s, nil
}

// Subscribers returns how many subscriptions listen on channel.
func (b *MemoryBroker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

func (b *MemoryBroker) remove(s *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range s.channels {
		if set, ok := b.subs[ch]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(b.subs, ch)
			}
		}
	}
	// Publish sends under the read lock, so closing here cannot race a send.
	close(s.events)
}

type memorySubscription struct {
	broker   *MemoryBroker
	channels []string
	events   chan Event
	done     chan struct{}
	once     sync.Once
}

func (s *memorySubscription) Events() <-chan Event {
	return s.events
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.broker.remove(s)
	})
	return nil
}
