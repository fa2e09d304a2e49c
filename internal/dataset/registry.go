package dataset

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/config"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/model"
)

// SinkFactory builds a sink from its config definition.
type SinkFactory func(def config.SinkDef, pipeline config.PipelineConfig, log logrus.FieldLogger) (model.Sink, error)

// registry holds the mapping of sink types to their factory functions.
var registry = make(map[string]SinkFactory)

// Register registers a new sink type with its factory function.
func Register(name string, factory SinkFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("sink type '%s' already registered", name))
	}
	registry[name] = factory
}

// Open creates every enabled sink in cfg. More than one enabled sink is
// returned as a MultiSink.
func Open(cfg *config.Config, log logrus.FieldLogger) (model.Sink, error) {
	var sinks []model.Sink
	for _, def := range cfg.Sinks {
		if !def.Enabled {
			continue
		}
		factory, ok := registry[def.Type]
		if !ok {
			closeAll(sinks)
			return nil, fmt.Errorf("unknown sink type: '%s'", def.Type)
		}
		sink, err := factory(def, cfg.Pipeline, log)
		if err != nil {
			closeAll(sinks)
			return nil, fmt.Errorf("error creating sink type '%s': %w", def.Type, err)
		}
		log.WithField("type", def.Type).Info("Dataset sink opened.")
		sinks = append(sinks, sink)
	}

	switch len(sinks) {
	case 0:
		return nil, fmt.Errorf("no dataset sink enabled")
	case 1:
		return sinks[0], nil
	default:
		return MultiSink(sinks), nil
	}
}

func closeAll(sinks []model.Sink) {
	for _, s := range sinks {
		s.Abort()
	}
}

// MultiSink fans every row out to all of its sinks.
type MultiSink []model.Sink

// WriteRow writes row to each sink, stopping at the first failure.
func (m MultiSink) WriteRow(row model.FeatureRow) error {
	for _, s := range m {
		if err := s.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Abort aborts every sink and joins their errors.
func (m MultiSink) Abort() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Abort())
	}
	return errors.Join(errs...)
}
