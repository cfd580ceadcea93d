package sinks

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/dbstation/internal/audiocore"
)

type publishedMessage struct {
	topic   string
	payload []byte
}

type fakeMQTTClient struct {
	mu          sync.Mutex
	connected   bool
	connectErr  error
	publishErr  error
	connects    int
	disconnects int
	messages    []publishedMessage
}

func (c *fakeMQTTClient) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if c.connectErr != nil {
		return c.connectErr
	}
	c.connected = true
	return nil
}

func (c *fakeMQTTClient) Publish(_ context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.messages = append(c.messages, publishedMessage{topic: topic, payload: payload})
	return nil
}

func (c *fakeMQTTClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeMQTTClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
}

func TestMQTTSinkPublishesPerSourceTopic(t *testing.T) {
	t.Parallel()

	client := &fakeMQTTClient{}
	sink, err := NewMQTTSink(client, "station/level/")
	require.NoError(t, err)

	require.NoError(t, sink.Open(t.Context()))
	require.NoError(t, sink.Accept(t.Context(), reading(0, 0, 50)))
	require.NoError(t, sink.Accept(t.Context(), reading(3, 0, 51)))
	require.NoError(t, sink.Close())

	require.Len(t, client.messages, 2)
	assert.Equal(t, "station/level/0", client.messages[0].topic)
	assert.Equal(t, "station/level/3", client.messages[1].topic)

	var rec audiocore.Record
	require.NoError(t, json.Unmarshal(client.messages[1].payload, &rec))
	assert.Equal(t, reading(3, 0, 51).Record(), rec)
	assert.Equal(t, 1, client.disconnects)
}

func TestMQTTSinkBrokerDownDoesNotBlockStart(t *testing.T) {
	t.Parallel()

	client := &fakeMQTTClient{connectErr: assert.AnError}
	sink, err := NewMQTTSink(client, "")
	require.NoError(t, err)

	require.NoError(t, sink.Open(t.Context()))

	err = sink.Accept(t.Context(), reading(0, 1, 10))
	require.Error(t, err)
	assert.ErrorIs(t, err, audiocore.ErrSinkDelivery)
	assert.Equal(t, 2, client.connects, "accept retries the connection")
	assert.Equal(t, "dbstation/level/1", sink.Topic(1))
}

func TestMQTTSinkPublishFailure(t *testing.T) {
	t.Parallel()

	client := &fakeMQTTClient{connected: true, publishErr: assert.AnError}
	sink, err := NewMQTTSink(client, "t")
	require.NoError(t, err)

	err = sink.Accept(t.Context(), reading(0, 0, 1))
	require.ErrorIs(t, err, audiocore.ErrSinkDelivery)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestNewMQTTSinkRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := NewMQTTSink(nil, "t")
	assert.Error(t, err)
}
