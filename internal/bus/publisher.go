package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// TranscriptEvent is published once per new transcript.
type TranscriptEvent struct {
	Text   string    `json:"text"`
	Model  string    `json:"model"`
	Device string    `json:"device"`
	TS     time.Time `json:"ts"`
}

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher fans transcripts out over NATS.
type Publisher struct {
	conn    Conn
	subject string
	log     zerolog.Logger
}

// Connect dials url and returns a publisher for subject.
func Connect(url, subject string, log zerolog.Logger) (*Publisher, error) {
	if url == "" {
		return nil, errors.New("no NATS url configured")
	}
	conn, err := nats.Connect(url,
		nats.Name("livewhisper"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	log.Info().Str("servers", url).Str("subject", subject).Msg("bus: connected to NATS")
	return NewPublisher(conn, subject, log), nil
}

func NewPublisher(conn Conn, subject string, log zerolog.Logger) *Publisher {
	return &Publisher{conn: conn, subject: subject, log: log}
}

// Publish sends ev. Failures are logged and returned.
func (p *Publisher) Publish(ev TranscriptEvent) error {
	if p == nil {
		return nil
	}
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, b); err != nil {
		p.log.Warn().Err(err).Str("subject", p.subject).Msg("bus: publish failed")
		return err
	}
	return nil
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.log.Info().Msg("bus: closing NATS connection")
	return p.conn.Drain()
}
