package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/osmfj/MapComplete/internal/core/domain"
)

// Subjects used by the loader.
const (
	SubjectCommitted = "mapsync.features.committed"
	SubjectFailed    = "mapsync.query.failed"
	SubjectState     = "mapsync.state"
	SubjectViewport  = "mapsync.viewport" // clients publish to mapsync.viewport.<client>
	SubjectAll       = "mapsync.>"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:       "MAPSYNC_FETCHES",
			Subjects:   []string{SubjectCommitted, SubjectFailed},
			Retention:  nats.LimitsPolicy,
			MaxAge:     24 * time.Hour,
			Storage:    nats.FileStorage,
			Duplicates: 2 * time.Minute,
		},
		{
			Name:      "MAPSYNC_VIEWPORTS",
			Subjects:  []string{SubjectViewport + ".>"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    10 * time.Minute,
			Storage:   nats.MemoryStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishFeaturesCommitted persists the record in the fetch stream. The
// record ID doubles as the JetStream message ID.
func (p *Publisher) PublishFeaturesCommitted(ctx context.Context, rec *domain.FetchRecord) error {
	return p.publishRecord(ctx, SubjectCommitted, rec)
}

func (p *Publisher) PublishQueryFailed(ctx context.Context, rec *domain.FetchRecord) error {
	return p.publishRecord(ctx, SubjectFailed, rec)
}

func (p *Publisher) publishRecord(ctx context.Context, subject string, rec *domain.FetchRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := p.js.Publish(subject, data, nats.Context(ctx), nats.MsgId(rec.ID)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// PublishState broadcasts the loader state on core NATS; it is not persisted.
func (p *Publisher) PublishState(ctx context.Context, state domain.LoaderState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return p.conn.Publish(SubjectState, data)
}

// Conn exposes the underlying connection, e.g. for the WebSocket relay.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
