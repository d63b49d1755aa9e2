package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisBus publishes note events on one Redis channel and fans received
// messages out to local subscribers.
type RedisBus struct {
	client  *redis.Client
	channel string

	mu     sync.Mutex
	pubsub *redis.PubSub
	local  *LocalBus
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRedisBus(client *redis.Client, channel string) *RedisBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBus{
		client:  client,
		channel: channel,
		local:   NewLocalBus(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *RedisBus) Publish(ctx context.Context, e NoteSaved) error {
	data, err := Encode(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	log.Debug().Str("module", "events.redis").Str("channel", b.channel).Uint("note_id", e.NoteID).Msg("published")
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context) (<-chan NoteSaved, error) {
	b.mu.Lock()
	if b.pubsub == nil {
		ps := b.client.Subscribe(b.ctx, b.channel)
		if _, err := ps.Receive(ctx); err != nil {
			b.mu.Unlock()
			_ = ps.Close()
			return nil, fmt.Errorf("subscribe %s: %w", b.channel, err)
		}
		b.pubsub = ps
		go b.receive(ps)
	}
	b.mu.Unlock()
	return b.local.Subscribe(ctx)
}

func (b *RedisBus) receive(ps *redis.PubSub) {
	ch := ps.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			e, err := Decode([]byte(msg.Payload))
			if err != nil {
				log.Warn().Err(err).Str("module", "events.redis").Str("channel", b.channel).Msg("bad event dropped")
				continue
			}
			_ = b.local.Publish(b.ctx, e)
		}
	}
}

func (b *RedisBus) Close() error {
	b.cancel()
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.pubsub != nil {
		err = b.pubsub.Close()
		b.pubsub = nil
	}
	_ = b.local.Close()
	if cerr := b.client.Close(); err == nil {
		err = cerr
	}
	return err
}
