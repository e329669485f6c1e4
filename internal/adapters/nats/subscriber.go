package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/osmfj/MapComplete/internal/core/domain"
	"github.com/osmfj/MapComplete/internal/pkg/geospatial"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// ViewportMessage is the wire form of a viewport report. Clients that do not
// know their bounds send center, zoom and pixel size instead.
type ViewportMessage struct {
	Center domain.GeoPoint `json:"center"`
	Zoom   float64         `json:"zoom"`
	Bounds *domain.Bounds  `json:"bounds,omitempty"`
	Width  int             `json:"width,omitempty"`
	Height int             `json:"height,omitempty"`
}

// Viewport converts the message, deriving bounds from center, zoom and size
// when they are missing.
func (m ViewportMessage) Viewport() (domain.Viewport, bool) {
	vp := domain.Viewport{Center: m.Center, Zoom: m.Zoom}
	switch {
	case m.Bounds != nil:
		vp.Bounds = *m.Bounds
	case m.Width > 0 && m.Height > 0:
		vp.Bounds = domain.BoundsFromOrb(geospatial.ViewportBound(m.Center.Lat, m.Center.Lon, m.Zoom, m.Width, m.Height))
	default:
		return domain.Viewport{}, false
	}
	return vp, true
}

// SubscribeViewports consumes mapsync.viewport.> and hands each decoded
// viewport to handler. Malformed messages are terminated, handler errors
// are redelivered up to three times.
func (s *Subscriber) SubscribeViewports(ctx context.Context, handler func(ctx context.Context, vp *domain.Viewport) error) error {
	sub, err := s.js.Subscribe(SubjectViewport+".>", func(msg *nats.Msg) {
		var m ViewportMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			slog.Debug("dropping viewport message", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		vp, ok := m.Viewport()
		if !ok {
			slog.Debug("viewport message without bounds or size", "subject", msg.Subject)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &vp); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("viewport-consumer"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
