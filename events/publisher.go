// Package events publishes order lifecycle notifications to the message brokers.
package events

import (
	"context"
	"encoding/json"

	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// Publisher is the interface used by services to publish events.
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
	Close() error
}

// LogPublisher writes events to the logger only. It is used when no broker is configured.
type LogPublisher struct {
	logger cmtlog.Logger
	name   string
}

func NewLogPublisher(name string, logger cmtlog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger, name: name}
}

func (p *LogPublisher) Publish(_ context.Context, key string, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	p.logger.Info("Event published", "channel", p.name, "key", key, "value", string(b))
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
