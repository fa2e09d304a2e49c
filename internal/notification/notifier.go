// Package notification publishes extraction progress events over NATS.
package notification

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/config"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/model"
)

// publisher is the part of *nats.Conn the notifier uses.
type publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSNotifier implements model.Notifier by publishing each event to a subject.
type NATSNotifier struct {
	conn    publisher
	subject string
	log     logrus.FieldLogger
}

// New returns a NATS notifier when cfg enables one, and a no-op otherwise.
func New(cfg config.NATSConfig, log logrus.FieldLogger) (model.Notifier, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	return NewNATSNotifier(cfg, log)
}

// NewNATSNotifier connects to the NATS server in cfg.
func NewNATSNotifier(cfg config.NATSConfig, log logrus.FieldLogger) (*NATSNotifier, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("etc-extract"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	log.WithField("url", cfg.URL).Info("Connected to NATS server.")
	return newNATSNotifier(nc, cfg.Subject, log), nil
}

func newNATSNotifier(conn publisher, subject string, log logrus.FieldLogger) *NATSNotifier {
	return &NATSNotifier{conn: conn, subject: subject, log: log}
}

// Notify encodes event and publishes it.
func (n *NATSNotifier) Notify(event model.ProgressEvent) error {
	data, err := Encode(event)
	if err != nil {
		return err
	}
	return n.conn.Publish(n.subject, data)
}

// Close drains the connection so queued events are delivered.
func (n *NATSNotifier) Close() error {
	if err := n.conn.Drain(); err != nil {
		return fmt.Errorf("failed to drain nats connection: %w", err)
	}
	n.log.Info("NATS connection drained and closed.")
	return nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(model.ProgressEvent) error { return nil }
func (Nop) Close() error                     { return nil }

// Encode serialises event as a protobuf Struct.
func Encode(event model.ProgressEvent) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]interface{}{
		"index":     event.Index,
		"total":     event.Total,
		"path":      event.Path,
		"label":     event.Label,
		"status":    event.Status,
		"rows":      event.Rows,
		"timestamp": event.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build progress event: %w", err)
	}
	return proto.Marshal(s)
}

// Decode parses an event produced by Encode.
func Decode(data []byte) (model.ProgressEvent, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return model.ProgressEvent{}, fmt.Errorf("failed to unmarshal progress event: %w", err)
	}
	f := s.GetFields()
	event := model.ProgressEvent{
		Index:  int(f["index"].GetNumberValue()),
		Total:  int(f["total"].GetNumberValue()),
		Path:   f["path"].GetStringValue(),
		Label:  f["label"].GetStringValue(),
		Status: f["status"].GetStringValue(),
		Rows:   int(f["rows"].GetNumberValue()),
	}
	if ts := f["timestamp"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return model.ProgressEvent{}, fmt.Errorf("invalid progress timestamp %q: %w", ts, err)
		}
		event.Timestamp = t
	}
	return event, nil
}
