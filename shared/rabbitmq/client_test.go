package rabbitmq

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDisconnectedClient() *Client {
	return &Client{
		config: &Config{ExchangeName: "partitions", QueueName: "partition.maintenance"},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_NotConnected(t *testing.T) {
	c := newDisconnectedClient()

	assert.False(t, c.IsConnected())

	err := c.PublishJSON(context.Background(), map[string]string{"start_date": "2025-03-10"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")

	assert.Error(t, c.Qos(2))

	deliveries, err := c.Consume("worker-1")
	assert.Error(t, err)
	assert.Nil(t, deliveries)

	assert.NoError(t, c.Close())
}

func TestClient_PublishJSONRejectsUnencodableValue(t *testing.T) {
	c := newDisconnectedClient()

	err := c.PublishJSON(context.Background(), make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal")
}

func TestClient_WatchCloseMarksDisconnected(t *testing.T) {
	c := newDisconnectedClient()
	c.isConnected.Store(true)

	closed := make(chan *amqp.Error, 1)
	done := make(chan struct{})
	go func() {
		c.watchClose(closed)
		close(done)
	}()

	closed <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "broker shutdown"}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchClose did not return")
	}
	assert.False(t, c.isConnected.Load())
}
