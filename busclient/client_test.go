package busclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yodamaster/bundy/errors"
)

func TestConnectionStatus_String(t *testing.T) {
	tests := []struct {
		status   ConnectionStatus
		expected string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{ConnectionStatus(99), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.status.String())
		})
	}
}

func TestNewClient_Defaults(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
	assert.Equal(t, DefaultSubjectPrefix+".ConfigManager", client.GroupSubject("ConfigManager"))
}

func TestNewClient_Options(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithSubjectPrefix("testbus"),
		WithName("test-client"),
		WithTimeout(time.Second),
		WithMaxReconnects(3),
		WithReconnectWait(time.Millisecond),
	)
	require.NoError(t, err)

	assert.Equal(t, "testbus.Init", client.GroupSubject("Init"))
	assert.Equal(t, "test-client", client.clientName)
	assert.Equal(t, time.Second, client.timeout)
	assert.Equal(t, 3, client.maxReconnects)
}

func TestNewClient_EmptyPrefixFallsBack(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithSubjectPrefix(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultSubjectPrefix+".Init", client.GroupSubject("Init"))
}

func TestClient_OperationsRequireConnection(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.ErrorIs(t, client.Subscribe("ConfigManager", ""), errors.ErrNotConnected)
	assert.ErrorIs(t, client.Send("Init", map[string]any{}), errors.ErrNotConnected)

	_, err = client.Request("Auth", map[string]any{}, time.Millisecond)
	assert.ErrorIs(t, err, errors.ErrNotConnected)

	// Replying without a reply subject is always a no-op
	assert.NoError(t, client.Reply(nil, map[string]any{}))
	assert.NoError(t, client.Reply(&Envelope{}, map[string]any{}))
}

func TestClient_ReceiveHonorsContext(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, _, err = client.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_CloseWithoutConnect(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.NoError(t, client.Close(context.Background()))
	// A second close is a no-op
	assert.NoError(t, client.Close(context.Background()))
}
