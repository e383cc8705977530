/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/verdandi/internal/events"
	"github.com/friendsincode/verdandi/internal/telemetry"
	"github.com/friendsincode/verdandi/interval"
)

// handleEvents streams bus events over a websocket, filtered by the
// comma-separated ?types= parameter. Without a filter the client gets the
// firehose.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	eventTypes := parseEventTypes(r.URL.Query().Get("types"))
	if len(eventTypes) == 0 {
		eventTypes = events.AllTypes()
	}

	subscribers := make([]events.Subscriber, 0, len(eventTypes))
	for _, eventType := range eventTypes {
		subscribers = append(subscribers, a.bus.Subscribe(eventType))
	}
	defer func() {
		for i, eventType := range eventTypes {
			a.bus.Unsubscribe(eventType, subscribers[i])
		}
	}()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}
		default:
			sent := false
			for _, sub := range subscribers {
				select {
				case event := <-sub:
					if err := a.writeEvent(ctx, conn, event); err != nil {
						a.logger.Error().Err(err).Msg("websocket write failed")
						conn.Close(ws.StatusInternalError, "write failed")
						return
					}
					sent = true
				default:
				}
			}
			if !sent {
				time.Sleep(100 * time.Millisecond)
			}
		}
	}
}

func (a *API) writeEvent(ctx context.Context, conn *ws.Conn, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, data)
}

// boundaryTick is one watch notification: the boundary just crossed and
// the one after it.
type boundaryTick struct {
	Type     string    `json:"type"`
	Grouping string    `json:"grouping"`
	Boundary time.Time `json:"boundary"`
	Next     time.Time `json:"next"`
}

// handleIntervalsWatch streams a JSON tick at each upcoming grouping
// boundary for the requested grouping and offset.
func (a *API) handleIntervalsWatch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	groupingParam := q.Get("grouping")
	if groupingParam == "" {
		groupingParam = "per_day"
	}
	grouping, err := interval.ParseGrouping(groupingParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_grouping")
		return
	}

	offsetWest := 0
	if raw := q.Get("offset_west_seconds"); raw != "" {
		offsetWest, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_offset")
			return
		}
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	ctx := r.Context()
	next := nextBoundary(time.Now().UTC(), grouping, offsetWest)

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()
	pings := time.NewTicker(15 * time.Second)
	defer pings.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case <-pings.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}
		case <-timer.C:
			crossed := next
			next = nextBoundary(crossed, grouping, offsetWest)

			tick := boundaryTick{
				Type:     "boundary",
				Grouping: grouping.String(),
				Boundary: crossed,
				Next:     next,
			}
			data, err := json.Marshal(tick)
			if err == nil {
				err = conn.Write(ctx, ws.MessageText, data)
			}
			if err != nil {
				a.logger.Error().Err(err).Msg("websocket write failed")
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}
			timer.Reset(time.Until(next))
		}
	}
}

// nextBoundary returns the first grouping boundary strictly after t. A 70
// day window always spans at least two boundaries, even across the longest
// months.
func nextBoundary(t time.Time, grouping interval.Grouping, offsetWestSeconds int) time.Time {
	window := t.Add(70 * 24 * time.Hour)
	ivs := interval.UTCIntervals(t, window, grouping, offsetWestSeconds, interval.DefaultPrecision, true, true)
	for _, iv := range ivs {
		if iv.Begin.After(t) {
			return iv.Begin
		}
	}
	return window
}
