/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"sync"
	"time"
)

// EventType enumerates event categories.
type EventType string

const (
	EventPresetCreated EventType = "preset.created"
	EventPresetUpdated EventType = "preset.updated"
	EventPresetDeleted EventType = "preset.deleted"

	EventIntervalsGenerated EventType = "intervals.generated"

	EventExportCompleted EventType = "export.completed"
	EventExportFailed    EventType = "export.failed"

	EventAPIKeyCreated EventType = "apikey.created"
	EventAPIKeyRevoked EventType = "apikey.revoked"
)

// AllTypes lists every event type, for subscribers that want the firehose.
func AllTypes() []EventType {
	return []EventType{
		EventPresetCreated,
		EventPresetUpdated,
		EventPresetDeleted,
		EventIntervalsGenerated,
		EventExportCompleted,
		EventExportFailed,
		EventAPIKeyCreated,
		EventAPIKeyRevoked,
	}
}

// Payload generic event payload.
type Payload map[string]any

// Event is what subscribers receive.
type Event struct {
	Type      EventType `json:"type"`
	Payload   Payload   `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Subscriber receives events.
type Subscriber chan Event

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Slow subscribers are skipped rather
// than blocking the publisher.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	event := Event{
		Type:      eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub <- event:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.subs[eventType] = subs
	close(sub)
}
