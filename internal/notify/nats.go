package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/ordprovider/internal/logfields"
)

const publishTimeout = 5 * time.Second

// NATSSink publishes update events to JetStream subjects
// <prefix>.<event type>, e.g. ord.updates.completed.
type NATSSink struct {
	conn          *nats.Conn
	js            jetstream.JetStream
	subjectPrefix string
}

// NewNATSSink connects to NATS and prepares the JetStream context.
func NewNATSSink(url, subjectPrefix string) (*NATSSink, error) {
	if subjectPrefix == "" {
		subjectPrefix = "ord.updates"
	}

	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	slog.Info("NATS sink initialized for update notifications",
		logfields.URL(url),
		slog.String("subject_prefix", subjectPrefix))

	return &NATSSink{conn: conn, js: js, subjectPrefix: subjectPrefix}, nil
}

// Notify publishes the event to its type-specific subject.
func (s *NATSSink) Notify(ctx context.Context, evt Event) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := s.js.Publish(ctx, subjectFor(s.subjectPrefix, evt.Type), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

func subjectFor(prefix, eventType string) string {
	return prefix + "." + eventType
}

// Close closes the NATS connection.
func (s *NATSSink) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}
