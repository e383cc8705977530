package eventbus

import (
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/verdandi/internal/events"
)

// subjectPrefix namespaces Verdandi traffic on a shared NATS cluster.
const subjectPrefix = "verdandi.events."

func subjectFor(eventType events.EventType) string {
	return subjectPrefix + string(eventType)
}

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // reconnect forever
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSBus implements a NATS-backed event bus.
type NATSBus struct {
	conn     *nats.Conn
	logger   zerolog.Logger
	fallback *events.Bus
	nodeID   string

	mu     sync.RWMutex
	subs   map[events.EventType][]events.Subscriber
	remote map[events.EventType]*nats.Subscription

	useFallback bool
}

// NewNATSBus creates a NATS-backed event bus. Falls back to the in-memory
// bus when the server is unreachable; the client keeps reconnecting in the
// background and remote delivery resumes on its own.
func NewNATSBus(cfg NATSConfig, nodeID string, logger zerolog.Logger) (*NATSBus, error) {
	log := logger.With().Str("component", "eventbus").Logger()

	nb := &NATSBus{
		logger:   log,
		fallback: events.NewBus(),
		nodeID:   nodeID,
		subs:     make(map[events.EventType][]events.Subscriber),
		remote:   make(map[events.EventType]*nats.Subscription),
	}

	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		log.Warn().Err(err).Str("url", cfg.URL).Msg("NATS connection failed, using in-memory fallback")
		nb.useFallback = true
		return nb, nil
	}

	nb.conn = conn
	log.Info().Str("url", cfg.URL).Str("node_id", nodeID).Msg("NATS event bus initialized")

	return nb, nil
}

// Subscribe registers a subscriber for an event type. The returned channel
// receives both local publishes and events from other nodes.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := nb.fallback.Subscribe(eventType)

	nb.mu.Lock()
	defer nb.mu.Unlock()

	nb.subs[eventType] = append(nb.subs[eventType], sub)

	if !nb.useFallback {
		if _, exists := nb.remote[eventType]; !exists {
			natsSub, err := nb.conn.Subscribe(subjectFor(eventType), nb.handleMessage(eventType))
			if err != nil {
				nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("NATS subscribe failed")
			} else {
				nb.remote[eventType] = natsSub
			}
		}
	}

	return sub
}

// handleMessage delivers a remote event to the local subscribers for one type.
func (nb *NATSBus) handleMessage(eventType events.EventType) nats.MsgHandler {
	return func(msg *nats.Msg) {
		env, err := unmarshalEnvelope(msg.Data)
		if err != nil {
			nb.logger.Error().Err(err).Msg("failed to unmarshal NATS envelope")
			return
		}

		// Our own publishes already went through the local bus.
		if env.NodeID == nb.nodeID {
			return
		}

		event := events.Event{
			Type:      env.EventType,
			Payload:   env.Payload,
			CreatedAt: env.Timestamp,
		}

		nb.mu.RLock()
		subs := append([]events.Subscriber(nil), nb.subs[eventType]...)
		nb.mu.RUnlock()

		for _, sub := range subs {
			select {
			case sub <- event:
			default:
				nb.logger.Warn().Str("event_type", string(eventType)).Msg("subscriber channel full, dropping event")
			}
		}
	}
}

// Publish sends an event payload to all subscribers, local and remote.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.fallback.Publish(eventType, payload)

	nb.mu.RLock()
	degraded := nb.useFallback
	nb.mu.RUnlock()
	if degraded {
		return
	}

	data, err := marshalEnvelope(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to marshal NATS envelope")
		return
	}

	if err := nb.conn.Publish(subjectFor(eventType), data); err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to NATS")
	}
}

// Unsubscribe removes a subscriber and closes its channel.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.mu.Lock()
	subs := nb.subs[eventType]
	for i, s := range subs {
		if s == sub {
			nb.subs[eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}

	var natsSub *nats.Subscription
	if len(nb.subs[eventType]) == 0 {
		natsSub = nb.remote[eventType]
		delete(nb.remote, eventType)
	}
	nb.mu.Unlock()

	nb.fallback.Unsubscribe(eventType, sub)

	if natsSub != nil {
		if err := natsSub.Unsubscribe(); err != nil {
			nb.logger.Debug().Err(err).Str("event_type", string(eventType)).Msg("NATS unsubscribe failed")
		}
	}
}

// Close drains the NATS connection.
func (nb *NATSBus) Close() error {
	if nb.conn == nil {
		return nil
	}

	nb.logger.Info().Msg("closing NATS event bus")

	// Drain flushes in-flight messages before closing.
	if err := nb.conn.Drain(); err != nil {
		nb.conn.Close()
		return err
	}
	return nil
}
