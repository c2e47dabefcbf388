package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/medimage-insight/internal/domain/analysis"
)

type recordingChannel struct {
	exchange, key string
	msgs          []amqp.Publishing
	err           error
	closed        bool
}

func (c *recordingChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.exchange, c.key = exchange, key
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *recordingChannel) Close() error {
	c.closed = true
	return nil
}

func TestPublishCompleted(t *testing.T) {
	ch := &recordingChannel{}
	p := &Publisher{ch: ch, exchange: "analysis", routingKey: "analysis.completed"}

	ev := analysis.Completed{
		RecordID:  "rec-1",
		UserID:    "alice",
		ImageType: "image/png",
		Shape:     analysis.ShapeStructured,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishCompleted(context.Background(), ev))

	require.Len(t, ch.msgs, 1)
	assert.Equal(t, "analysis", ch.exchange)
	assert.Equal(t, "analysis.completed", ch.key)
	msg := ch.msgs[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "rec-1", msg.MessageId)

	var got analysis.Completed
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, ev, got)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestPublishCompletedErrors(t *testing.T) {
	p := &Publisher{ch: &recordingChannel{err: amqp.ErrClosed}}
	err := p.PublishCompleted(context.Background(), analysis.Completed{RecordID: "x"})
	assert.True(t, errors.Is(err, amqp.ErrClosed))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = (&Publisher{ch: &recordingChannel{}}).PublishCompleted(ctx, analysis.Completed{})
	assert.ErrorIs(t, err, context.Canceled)
}
