/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus distributes events.Bus traffic across Verdandi instances.
// Each backend wraps the in-process bus for local fan-out and forwards
// publishes to the other nodes.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/verdandi/internal/events"
)

// channelPrefix namespaces Verdandi traffic on a shared Redis.
const channelPrefix = "verdandi:events:"

func channelFor(eventType events.EventType) string {
	return channelPrefix + string(eventType)
}

// RedisBus implements a Redis-backed event bus for multi-instance deployments.
type RedisBus struct {
	client   *redis.Client
	logger   zerolog.Logger
	fallback *events.Bus
	nodeID   string

	mu       sync.RWMutex
	subs     map[events.EventType][]events.Subscriber
	channels map[events.EventType]*redis.PubSub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Circuit breaker state
	useFallback bool
	failCount   int
	maxFails    int
	lastCheck   time.Time
}

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Circuit breaker
	MaxFailures   int
	CheckInterval time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		PoolSize:      10,
		MinIdleConns:  2,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxFailures:   5,
		CheckInterval: 30 * time.Second,
	}
}

// NewRedisBus creates a Redis-backed event bus. Falls back to the in-memory
// bus when Redis is unavailable; the process keeps working single-node.
func NewRedisBus(cfg RedisConfig, nodeID string, logger zerolog.Logger) (*RedisBus, error) {
	ctx, cancel := context.WithCancel(context.Background())

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	rb := &RedisBus{
		client:   client,
		logger:   logger.With().Str("component", "eventbus").Logger(),
		fallback: events.NewBus(),
		nodeID:   nodeID,
		maxFails: cfg.MaxFailures,
		subs:     make(map[events.EventType][]events.Subscriber),
		channels: make(map[events.EventType]*redis.PubSub),
		ctx:      ctx,
		cancel:   cancel,
	}

	if err := client.Ping(pingCtx).Err(); err != nil {
		rb.logger.Warn().Err(err).Msg("Redis connection failed, using in-memory fallback")
		rb.useFallback = true
		rb.lastCheck = time.Now()
		return rb, nil
	}

	rb.logger.Info().Str("addr", cfg.Addr).Str("node_id", nodeID).Msg("Redis event bus initialized")

	return rb, nil
}

// Subscribe registers a subscriber for an event type. The returned channel
// receives both local publishes and events from other nodes.
func (rb *RedisBus) Subscribe(eventType events.EventType) events.Subscriber {
	// The in-process bus owns local delivery and channel lifecycle.
	sub := rb.fallback.Subscribe(eventType)

	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.subs[eventType] = append(rb.subs[eventType], sub)

	if !rb.useFallback {
		if _, exists := rb.channels[eventType]; !exists {
			pubsub := rb.client.Subscribe(rb.ctx, channelFor(eventType))
			rb.channels[eventType] = pubsub

			rb.wg.Add(1)
			go rb.receiveMessages(eventType, pubsub)
		}
	}

	return sub
}

// receiveMessages handles incoming Redis pub/sub messages.
func (rb *RedisBus) receiveMessages(eventType events.EventType, pubsub *redis.PubSub) {
	defer rb.wg.Done()

	ch := pubsub.Channel()

	rb.logger.Debug().Str("event_type", string(eventType)).Msg("started Redis message receiver")

	for {
		select {
		case <-rb.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				rb.logger.Warn().Str("event_type", string(eventType)).Msg("Redis channel closed")
				rb.handleFailure()
				return
			}

			envelope, err := unmarshalEnvelope([]byte(msg.Payload))
			if err != nil {
				rb.logger.Error().Err(err).Msg("failed to unmarshal Redis envelope")
				continue
			}

			// Our own publishes already went through the local bus.
			if envelope.NodeID == rb.nodeID {
				continue
			}

			event := events.Event{
				Type:      envelope.EventType,
				Payload:   envelope.Payload,
				CreatedAt: envelope.Timestamp,
			}

			rb.mu.RLock()
			subs := append([]events.Subscriber(nil), rb.subs[eventType]...)
			rb.mu.RUnlock()

			for _, sub := range subs {
				select {
				case sub <- event:
				default:
					rb.logger.Warn().Str("event_type", string(eventType)).Msg("subscriber channel full, dropping event")
				}
			}
		}
	}
}

// Publish sends an event payload to all subscribers, local and remote.
func (rb *RedisBus) Publish(eventType events.EventType, payload events.Payload) {
	rb.fallback.Publish(eventType, payload)

	rb.mu.RLock()
	degraded := rb.useFallback
	rb.mu.RUnlock()
	if degraded {
		return
	}

	data, err := marshalEnvelope(eventType, payload, rb.nodeID)
	if err != nil {
		rb.logger.Error().Err(err).Msg("failed to marshal Redis envelope")
		return
	}

	ctx, cancel := context.WithTimeout(rb.ctx, 2*time.Second)
	defer cancel()

	if err := rb.client.Publish(ctx, channelFor(eventType), data).Err(); err != nil {
		rb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to Redis")
		rb.handleFailure()
		return
	}

	rb.mu.Lock()
	rb.failCount = 0
	rb.mu.Unlock()
}

// Unsubscribe removes a subscriber and closes its channel.
func (rb *RedisBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	rb.mu.Lock()
	subs := rb.subs[eventType]
	for i, s := range subs {
		if s == sub {
			rb.subs[eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}

	var pubsub *redis.PubSub
	if len(rb.subs[eventType]) == 0 {
		pubsub = rb.channels[eventType]
		delete(rb.channels, eventType)
	}
	rb.mu.Unlock()

	// The fallback bus closes the channel; it owns it.
	rb.fallback.Unsubscribe(eventType, sub)

	if pubsub != nil {
		pubsub.Close()
		rb.logger.Debug().Str("event_type", string(eventType)).Msg("closed Redis subscription")
	}
}

// Close closes the Redis connection and all subscriptions.
func (rb *RedisBus) Close() error {
	rb.logger.Info().Msg("closing Redis event bus")

	if rb.cancel != nil {
		rb.cancel()
	}

	rb.mu.Lock()
	for _, pubsub := range rb.channels {
		pubsub.Close()
	}
	rb.channels = make(map[events.EventType]*redis.PubSub)
	rb.mu.Unlock()

	rb.wg.Wait()

	if rb.client != nil {
		if err := rb.client.Close(); err != nil {
			return err
		}
	}

	return nil
}

// handleFailure implements circuit breaker logic.
func (rb *RedisBus) handleFailure() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.failCount++

	if rb.failCount >= rb.maxFails && !rb.useFallback {
		rb.logger.Warn().
			Int("fail_count", rb.failCount).
			Msg("Redis failure threshold reached, switching to in-memory fallback")

		rb.useFallback = true
		rb.lastCheck = time.Now()
	}
}

// tryReconnect attempts to leave fallback mode. Called from the server's
// background loop; new subscriptions after a successful reconnect pick up
// Redis channels again.
func (rb *RedisBus) tryReconnect() error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if !rb.useFallback {
		return nil
	}

	if time.Since(rb.lastCheck) < 30*time.Second {
		return fmt.Errorf("too soon to retry")
	}

	rb.lastCheck = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rb.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redis still unavailable: %w", err)
	}

	rb.useFallback = false
	rb.failCount = 0

	rb.logger.Info().Msg("reconnected to Redis, disabling fallback")

	return nil
}

// TryReconnect is the exported hook for periodic reconnect attempts.
func (rb *RedisBus) TryReconnect() error {
	return rb.tryReconnect()
}

// envelope is the wire format shared by the Redis and NATS backends.
type envelope struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
}

func marshalEnvelope(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(envelope{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
	})
}

func unmarshalEnvelope(data []byte) (*envelope, error) {
	var msg envelope
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	return &msg, nil
}
