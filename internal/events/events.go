// Package events fans device snapshots out over NATS.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Conn is the subset of *nats.Conn used for publishing.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher writes JSON events under a subject prefix.
type Publisher struct {
	conn   Conn
	prefix string
	log    zerolog.Logger
	close  func()
}

func NewPublisher(conn Conn, prefix string, logger zerolog.Logger) *Publisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "catgenie"
	}
	return &Publisher{
		conn:   conn,
		prefix: prefix,
		log:    logger.With().Str("component", "events").Logger(),
	}
}

// Connect dials NATS and returns a publisher on that connection.
func Connect(url, prefix string, logger zerolog.Logger) (*Publisher, error) {
	log := logger.With().Str("component", "events").Logger()
	nc, err := nats.Connect(url,
		nats.Name("catgenie"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	p := NewPublisher(nc, prefix, logger)
	p.close = func() {
		if err := nc.Drain(); err != nil {
			nc.Close()
		}
	}
	return p, nil
}

// StatusSubject is where deviceID's snapshots are published.
func (p *Publisher) StatusSubject(deviceID string) string {
	return p.prefix + "." + subjectToken(deviceID) + ".status"
}

// PublishStatus publishes v as JSON on deviceID's status subject.
func (p *Publisher) PublishStatus(deviceID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	subject := p.StatusSubject(deviceID)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.close != nil {
		p.close()
	}
}

// subjectToken keeps an id inside one subject token.
func subjectToken(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ':
			return '_'
		}
		return r
	}, id)
}
