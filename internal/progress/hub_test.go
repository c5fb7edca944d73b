package progress

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	payload := EpochProgressPayload{Epoch: 3, EpochCount: 10, Loss: 0.25, LossValid: true}

	msg, err := NewEnvelope(TypeEpochProgress, payload)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	assert.Equal(t, TypeEpochProgress, env.Type)

	var parsed EpochProgressPayload
	require.NoError(t, json.Unmarshal(env.Payload, &parsed))
	assert.Equal(t, payload, parsed)
}

func TestNewEnvelopeNoPayload(t *testing.T) {
	msg, err := NewEnvelope(TypeCheckpointSave, nil)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	assert.Equal(t, TypeCheckpointSave, env.Type)
	assert.Nil(t, env.Payload)
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub()
	c := &Client{hub: hub, send: make(chan []byte, 16)}

	hub.Register(c)
	assert.Equal(t, 1, hub.ClientCount())

	hub.Unregister(c)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	c1 := &Client{hub: hub, send: make(chan []byte, 16)}
	c2 := &Client{hub: hub, send: make(chan []byte, 16)}

	hub.Register(c1)
	hub.Register(c2)

	msg := []byte(`{"type":"test"}`)
	hub.Broadcast(msg)

	assert.Equal(t, msg, <-c1.send)
	assert.Equal(t, msg, <-c2.send)
}

func TestHubBroadcastDropsOnFullBuffer(t *testing.T) {
	hub := NewHub()
	c := &Client{hub: hub, send: make(chan []byte, 1)}
	hub.Register(c)

	hub.Broadcast([]byte("first"))
	hub.Broadcast([]byte("second")) // dropped, buffer already full

	assert.Equal(t, []byte("first"), <-c.send)
	assert.Len(t, c.send, 0)
}
