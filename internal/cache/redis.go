package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/isdelr/postkeep-be/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultInvalidationChannel is the pub/sub channel replicas share.
const DefaultInvalidationChannel = "postkeep:cache:invalidate"

const (
	listenBackoffMin = time.Second
	listenBackoffMax = 30 * time.Second
)

var errSubscriptionClosed = errors.New("subscription channel closed")

type invalidation struct {
	Origin  string `json:"origin"`
	OwnerID string `json:"ownerId"`
}

// RedisBroadcaster wraps a local PostCache and fans invalidations out to
// every other replica over Redis pub/sub. Local invalidation always happens
// first and synchronously; a failed publish is logged, not returned.
type RedisBroadcaster struct {
	local      *PostCache
	client     *redis.Client
	channel    string
	instanceID string

	backoffMin time.Duration
	backoffMax time.Duration
	failures   atomic.Int64
}

// NewRedisClient creates a client for addr.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// NewRedisBroadcaster creates a broadcaster publishing on channel.
func NewRedisBroadcaster(local *PostCache, client *redis.Client, channel string) *RedisBroadcaster {
	if channel == "" {
		channel = DefaultInvalidationChannel
	}
	return &RedisBroadcaster{
		local:      local,
		client:     client,
		channel:    channel,
		instanceID: uuid.New().String(),
		backoffMin: listenBackoffMin,
		backoffMax: listenBackoffMax,
	}
}

// Get reads through the local cache.
func (b *RedisBroadcaster) Get(ctx context.Context, ownerID string, fetch FetchFunc) ([]models.Post, error) {
	return b.local.Get(ctx, ownerID, fetch)
}

// Invalidate drops the local entry and tells the other replicas to do the same.
func (b *RedisBroadcaster) Invalidate(ctx context.Context, ownerID string) {
	b.local.Invalidate(ctx, ownerID)

	payload, err := json.Marshal(invalidation{Origin: b.instanceID, OwnerID: ownerID})
	if err != nil {
		log.Error().Err(err).Str("owner_id", ownerID).Msg("Failed to encode cache invalidation")
		return
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		log.Warn().Err(err).Str("owner_id", ownerID).Msg("Failed to publish cache invalidation")
	}
}

// Listen applies invalidations published by other replicas until ctx is
// done. A failed or dropped subscription is retried with exponential
// backoff, so a Redis outage at startup only delays cross-replica
// invalidation. It returns nil once ctx is done.
func (b *RedisBroadcaster) Listen(ctx context.Context) error {
	delay := b.backoffMin
	for {
		subscribed, err := b.listenOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if subscribed {
			delay = b.backoffMin
		}
		b.failures.Add(1)
		log.Warn().Err(err).Str("channel", b.channel).Dur("retry_in", delay).
			Msg("Cache invalidation subscription failed")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		delay = min(delay*2, b.backoffMax)
	}
}

// listenOnce runs a single subscription. subscribed reports whether the
// subscription was confirmed before it failed.
func (b *RedisBroadcaster) listenOnce(ctx context.Context) (subscribed bool, err error) {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return false, err
	}
	log.Info().Str("channel", b.channel).Msg("Listening for cache invalidations")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return true, errSubscriptionClosed
			}
			b.apply(ctx, msg.Payload)
		}
	}
}

func (b *RedisBroadcaster) apply(ctx context.Context, payload string) {
	var inv invalidation
	if err := json.Unmarshal([]byte(payload), &inv); err != nil {
		log.Warn().Err(err).Str("payload", payload).Msg("Ignoring malformed cache invalidation")
		return
	}
	if inv.Origin == b.instanceID || inv.OwnerID == "" {
		return
	}
	b.local.Invalidate(ctx, inv.OwnerID)
}
