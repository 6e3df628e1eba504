// Package events publishes orchestrator change events to NATS. Entity
// events go to hera.entity.<op>.<type>, transaction events to
// hera.txn.<op>.<type>.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/hera/pkg/orchestrator"
)

// SubjectPrefix is the root of every event subject.
const SubjectPrefix = "hera"

// Compile-time interface check.
var _ orchestrator.Publisher = (*Publisher)(nil)

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher implements orchestrator.Publisher on a NATS connection.
type Publisher struct {
	conn   Conn
	nc     *nats.Conn
	logger *zap.Logger
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn Conn, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Connect dials the NATS server at url.
func Connect(url string, logger *zap.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("hera"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	p := NewPublisher(nc, logger)
	p.nc = nc
	return p, nil
}

// Publish implements orchestrator.Publisher.
func (p *Publisher) Publish(ctx context.Context, ev orchestrator.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := Subject(ev)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("event published", zap.String("subject", subject))
	return nil
}

// Close drains the connection opened by Connect.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

// Subject returns the subject ev is published on.
func Subject(ev orchestrator.Event) string {
	family, op := "entity", string(ev.Op)
	if ev.TransactionID != "" {
		family, op = "txn", strings.TrimPrefix(op, "txn_")
	}
	typ := token(ev.EntityType)
	if typ == "" {
		typ = "unknown"
	}
	return strings.Join([]string{SubjectPrefix, family, token(op), typ}, ".")
}

// token lowercases s and replaces characters that are not valid inside a
// subject token.
func token(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '_'
	}, s)
}

// Decode parses an event payload.
func Decode(data []byte) (orchestrator.Event, error) {
	var ev orchestrator.Event
	err := json.Unmarshal(data, &ev)
	return ev, err
}
