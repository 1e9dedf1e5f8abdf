package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-admission/internal/crawler"
	"github.com/JakeFAU/crawl-admission/internal/progress"
)

// QueuedMessage is the payload announced for each newly admitted item.
type QueuedMessage struct {
	Event string            `json:"event"`
	Item  crawler.QueueItem `json:"item"`
}

// PublishSink announces admitted queue items to downstream fetchers.
type PublishSink struct {
	publisher crawler.Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublishSink wires a publisher and topic. A nil publisher disables the sink.
func NewPublishSink(publisher crawler.Publisher, topic string, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes one message per added item. Failures for individual items
// are joined so the hub logs them without blocking the rest of the batch.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if evt.Stage != progress.StageAdmitAdded || evt.Item == nil {
			continue
		}
		msg := QueuedMessage{Event: "queue_item_added", Item: *evt.Item}
		id, err := s.publisher.Publish(ctx, s.topic, msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", evt.Item.ID, err))
			continue
		}
		s.logger.Debug("queue item announced", zap.String("item_id", evt.Item.ID), zap.String("message_id", id))
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
