package notification

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/config"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/model"
)

// EventHandler processes a received progress event.
type EventHandler func(event model.ProgressEvent)

// Subscriber receives progress events from a NATS subject.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	log     logrus.FieldLogger
}

// NewSubscriber connects to the NATS server in cfg.
func NewSubscriber(cfg config.NATSConfig, log logrus.FieldLogger) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("etc-api"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	log.WithField("url", cfg.URL).Info("Connected to NATS server.")
	return &Subscriber{nc: nc, subject: cfg.Subject, log: log}, nil
}

// Start subscribes and hands every decodable event to handler.
func (s *Subscriber) Start(handler EventHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		event, err := Decode(msg.Data)
		if err != nil {
			s.log.WithError(err).Warn("Dropping malformed progress event.")
			return
		}
		handler(event)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to '%s': %w", s.subject, err)
	}
	s.sub = sub
	s.log.WithField("subject", s.subject).Info("Subscribed to progress events.")
	return nil
}

// Close unsubscribes and closes the connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	s.nc.Close()
	s.log.Info("NATS connection closed.")
}
