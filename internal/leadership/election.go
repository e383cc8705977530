/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership elects a single export coordinator across Verdandi
// instances using a Redis lease.
package leadership

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/verdandi/internal/telemetry"
)

const (
	// Redis key the current export coordinator holds.
	defaultElectionKey = "verdandi:leader:exports"

	// Lease the leader must renew before it expires.
	defaultLeaseDuration = 30 * time.Second

	// Leaders renew at half the lease so one missed beat is survivable.
	defaultRenewalInterval = 15 * time.Second

	// Followers poll for a vacant lease at this interval.
	defaultRetryInterval = 5 * time.Second
)

// Election manages distributed leader election over a Redis lease. A
// standalone election (no Redis) treats the local instance as the permanent
// leader so single-instance deployments keep the same wiring.
type Election struct {
	client     *redis.Client
	logger     zerolog.Logger
	config     ElectionConfig
	instanceID string
	standalone bool

	mu         sync.RWMutex
	isLeader   bool
	cancelFunc context.CancelFunc
	stopOnce   sync.Once
	stopCh     chan struct{}
	leaderCh   chan bool
}

// ElectionConfig configures leader election behavior.
type ElectionConfig struct {
	// RedisAddr is the Redis server address.
	RedisAddr string

	// RedisPassword is the Redis password (optional).
	RedisPassword string

	// RedisDB is the Redis database number.
	RedisDB int

	// ElectionKey is the Redis key used for the leader lease.
	ElectionKey string

	// LeaseDuration is how long the leader lease is valid.
	LeaseDuration time.Duration

	// RenewalInterval is how often the leader renews its lease.
	RenewalInterval time.Duration

	// RetryInterval is how often followers attempt to become leader.
	RetryInterval time.Duration

	// InstanceID uniquely identifies this instance.
	InstanceID string
}

// DefaultConfig returns default election configuration.
func DefaultConfig() ElectionConfig {
	return ElectionConfig{
		RedisAddr:       "localhost:6379",
		RedisPassword:   "",
		RedisDB:         0,
		ElectionKey:     defaultElectionKey,
		LeaseDuration:   defaultLeaseDuration,
		RenewalInterval: defaultRenewalInterval,
		RetryInterval:   defaultRetryInterval,
		InstanceID:      uuid.New().String(),
	}
}

// NewElection creates a new leader election manager backed by Redis.
func NewElection(config ElectionConfig, logger zerolog.Logger) (*Election, error) {
	if config.ElectionKey == "" {
		config.ElectionKey = defaultElectionKey
	}
	if config.LeaseDuration == 0 {
		config.LeaseDuration = defaultLeaseDuration
	}
	if config.RenewalInterval == 0 {
		config.RenewalInterval = config.LeaseDuration / 2
	}
	if config.RetryInterval == 0 {
		config.RetryInterval = defaultRetryInterval
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.New().String()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to Redis: %w", err)
	}

	logger.Info().
		Str("redis_addr", config.RedisAddr).
		Str("instance_id", config.InstanceID).
		Msg("connected to Redis for leader election")

	return &Election{
		client:     client,
		logger:     logger.With().Str("component", "leader_election").Logger(),
		config:     config,
		instanceID: config.InstanceID,
		stopCh:     make(chan struct{}),
		leaderCh:   make(chan bool, 1),
	}, nil
}

// NewStandalone returns an election whose instance is the permanent leader.
// Used when election is disabled or Redis is absent.
func NewStandalone(instanceID string, logger zerolog.Logger) *Election {
	if instanceID == "" {
		instanceID = uuid.New().String()
	}
	return &Election{
		logger:     logger.With().Str("component", "leader_election").Logger(),
		config:     ElectionConfig{InstanceID: instanceID},
		instanceID: instanceID,
		standalone: true,
		stopCh:     make(chan struct{}),
		leaderCh:   make(chan bool, 1),
	}
}

// Start begins the leader election process.
func (e *Election) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancelFunc = cancel

	if e.standalone {
		e.logger.Info().
			Str("instance_id", e.instanceID).
			Msg("leader election disabled, assuming leadership")
		e.updateLeadershipStatus(true)
		return nil
	}

	e.logger.Info().
		Str("instance_id", e.instanceID).
		Dur("lease_duration", e.config.LeaseDuration).
		Msg("starting leader election")

	go e.campaignLoop(ctx)

	return nil
}

// Stop stops the leader election and releases leadership if held. Safe to
// call more than once.
func (e *Election) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		e.logger.Info().Msg("stopping leader election")

		close(e.stopCh)

		if e.cancelFunc != nil {
			e.cancelFunc()
		}

		if e.client == nil {
			return
		}

		if e.IsLeader() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if releaseErr := e.releaseLock(ctx); releaseErr != nil {
				e.logger.Error().Err(releaseErr).Msg("failed to release leadership lock")
			}
		}

		err = e.client.Close()
	})
	return err
}

// IsLeader returns whether this instance currently holds the lease.
func (e *Election) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isLeader
}

// LeaderCh returns a channel that receives leadership status changes.
func (e *Election) LeaderCh() <-chan bool {
	return e.leaderCh
}

// GetLeader returns the current leader instance ID, or empty when the lease
// is vacant.
func (e *Election) GetLeader(ctx context.Context) (string, error) {
	if e.client == nil {
		return e.instanceID, nil
	}

	leaderID, err := e.client.Get(ctx, e.config.ElectionKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get leader: %w", err)
	}
	return leaderID, nil
}

// campaignLoop continuously attempts to become or remain leader.
func (e *Election) campaignLoop(ctx context.Context) {
	// Campaign immediately so a fresh instance does not idle a full retry
	// interval before its first attempt.
	e.attemptLeadership(ctx)

	ticker := time.NewTicker(e.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.attemptLeadership(ctx)
			ticker.Reset(e.tickInterval())
		}
	}
}

// tickInterval returns the next campaign delay. Leaders renew at half the
// lease, followers poll faster so a vacant lease is picked up quickly.
func (e *Election) tickInterval() time.Duration {
	if e.IsLeader() {
		return e.config.RenewalInterval
	}
	return e.config.RetryInterval
}

// attemptLeadership attempts to acquire or renew leadership.
func (e *Election) attemptLeadership(ctx context.Context) {
	acquired, err := e.acquireLock(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to acquire leadership lock")
		e.updateLeadershipStatus(false)
		return
	}

	if acquired {
		if !e.IsLeader() {
			e.logger.Info().
				Str("instance_id", e.instanceID).
				Msg("acquired leadership")
			e.updateLeadershipStatus(true)
		}
	} else {
		if e.IsLeader() {
			e.logger.Warn().
				Str("instance_id", e.instanceID).
				Msg("lost leadership")
			e.updateLeadershipStatus(false)
		}
	}
}

// acquireLock attempts to acquire the leadership lease in Redis.
func (e *Election) acquireLock(ctx context.Context) (bool, error) {
	// SET NX doubles as acquisition and, when we already hold the key,
	// a no-op that falls through to the renewal path below.
	result, err := e.client.SetNX(ctx, e.config.ElectionKey, e.instanceID, e.config.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("set lock: %w", err)
	}

	if result {
		return true, nil
	}

	// Lease exists, check if we own it.
	currentLeader, err := e.client.Get(ctx, e.config.ElectionKey).Result()
	if err == redis.Nil {
		// Lease expired between SETNX and GET, try again next tick.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get current leader: %w", err)
	}

	if currentLeader == e.instanceID {
		if err := e.client.Expire(ctx, e.config.ElectionKey, e.config.LeaseDuration).Err(); err != nil {
			return false, fmt.Errorf("renew lock: %w", err)
		}
		return true, nil
	}

	// Someone else holds the lease.
	return false, nil
}

// releaseLock releases the leadership lease. The compare-and-delete script
// keeps us from deleting a lease another instance acquired after ours
// expired.
func (e *Election) releaseLock(ctx context.Context) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`

	if err := e.client.Eval(ctx, script, []string{e.config.ElectionKey}, e.instanceID).Err(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}

	e.logger.Info().Msg("released leadership lock")
	return nil
}

// updateLeadershipStatus records a transition and notifies listeners.
func (e *Election) updateLeadershipStatus(isLeader bool) {
	e.mu.Lock()
	if e.isLeader == isLeader {
		e.mu.Unlock()
		return
	}
	e.isLeader = isLeader
	e.mu.Unlock()

	if isLeader {
		telemetry.LeaderElectionStatus.WithLabelValues(e.instanceID).Set(1)
		telemetry.LeaderElectionChanges.WithLabelValues(e.instanceID, "acquired").Inc()
	} else {
		telemetry.LeaderElectionStatus.WithLabelValues(e.instanceID).Set(0)
		telemetry.LeaderElectionChanges.WithLabelValues(e.instanceID, "lost").Inc()
	}

	// Listeners that lag miss intermediate transitions, never block us.
	select {
	case e.leaderCh <- isLeader:
	default:
	}
}
