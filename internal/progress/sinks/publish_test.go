package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawl-admission/internal/crawler"
	"github.com/JakeFAU/crawl-admission/internal/progress"
	"github.com/JakeFAU/crawl-admission/internal/publisher/memory"
)

func TestPublishSinkAnnouncesAddedItems(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewPublishSink(pub, "queue-items", nil)
	item := crawler.QueueItem{ID: "q1", Protocol: "http", Host: "example.com", Port: 80, Path: "/"}

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{Stage: progress.StageAdmitAdded, TS: time.Now(), URL: item.URL(), Item: &item},
		{Stage: progress.StageAdmitDuplicate, TS: time.Now(), URL: item.URL()},
	}))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "queue-items", msgs[0].Topic)
	var payload QueuedMessage
	require.NoError(t, msgs[0].Decode(&payload))
	require.Equal(t, "queue_item_added", payload.Event)
	require.Equal(t, "q1", payload.Item.ID)
}

func TestPublishSinkJoinsErrors(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	pub.Err = errors.New("broker down")
	sink := NewPublishSink(pub, "queue-items", nil)
	a := crawler.QueueItem{ID: "a"}
	b := crawler.QueueItem{ID: "b"}

	err := sink.Consume(context.Background(), []progress.Event{
		{Stage: progress.StageAdmitAdded, Item: &a},
		{Stage: progress.StageAdmitAdded, Item: &b},
	})
	require.ErrorContains(t, err, "publish a: broker down")
	require.ErrorContains(t, err, "publish b: broker down")
}

func TestPublishSinkDisabled(t *testing.T) {
	t.Parallel()

	sink := NewPublishSink(nil, "", nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{{Stage: progress.StageAdmitAdded}}))
}
