/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/verdandi/internal/config"
	"github.com/friendsincode/verdandi/internal/events"
)

// Bus is the pub/sub surface shared by every backend.
type Bus interface {
	Subscribe(eventType events.EventType) events.Subscriber
	Publish(eventType events.EventType, payload events.Payload)
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
	Close() error
}

// New selects the event bus backend from configuration.
func New(cfg *config.Config, logger zerolog.Logger) (Bus, error) {
	switch cfg.EventBus {
	case config.EventBusMemory:
		return NewMemoryBus(), nil

	case config.EventBusRedis:
		redisCfg := DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		return NewRedisBus(redisCfg, cfg.InstanceID, logger)

	case config.EventBusNATS:
		natsCfg := DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		return NewNATSBus(natsCfg, cfg.InstanceID, logger)

	default:
		return nil, fmt.Errorf("unknown event bus backend: %s", cfg.EventBus)
	}
}

// MemoryBus adapts the in-process bus to the backend interface for
// single-node deployments.
type MemoryBus struct {
	*events.Bus
}

// NewMemoryBus creates a single-node bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{Bus: events.NewBus()}
}

// Close satisfies the Bus interface; nothing to release.
func (mb *MemoryBus) Close() error { return nil }
