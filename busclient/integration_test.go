package busclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yodamaster/bundy/errors"
)

func TestIntegration_SendReceive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	tc := NewTestClient(t)
	receiver := tc.NewSession(t, WithName("receiver"))
	sender := tc.NewSession(t, WithName("sender"))

	require.NoError(t, receiver.Subscribe("TestGroup", ""))
	time.Sleep(100 * time.Millisecond)

	msg := map[string]any{"hello": "world"}
	require.NoError(t, sender.Send("TestGroup", msg))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, env, err := receiver.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, "world", got["hello"])
	assert.Equal(t, receiver.GroupSubject("TestGroup"), env.Subject)
	assert.Empty(t, env.Reply)
}

func TestIntegration_RequestReply(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	tc := NewTestClient(t)
	responder := tc.NewSession(t, WithName("responder"))
	requester := tc.NewSession(t, WithName("requester"))

	require.NoError(t, responder.Subscribe("Echo", ""))
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go func() {
		msg, env, err := responder.Receive(ctx)
		if err != nil {
			return
		}
		_ = responder.Reply(env, map[string]any{"echo": msg["ping"]})
	}()

	resp, err := requester.Request("Echo", map[string]any{"ping": "pong"}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "pong", resp["echo"])
}

func TestIntegration_RequestNoResponder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	tc := NewTestClient(t)
	requester := tc.NewSession(t, WithName("requester"))

	_, err := requester.Request("Nobody", map[string]any{"x": 1}, 500*time.Millisecond)
	assert.ErrorIs(t, err, errors.ErrCommitTimeout)
}

func TestIntegration_GroupInstanceSubscription(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	tc := NewTestClient(t)
	member := tc.NewSession(t, WithName("member"))
	sender := tc.NewSession(t, WithName("sender"))

	require.NoError(t, member.Subscribe("Init", "ConfigManager"))
	time.Sleep(100 * time.Millisecond)

	// Addressing the named instance inside the group must reach the member
	require.NoError(t, sender.Send("Init.ConfigManager", map[string]any{"direct": true}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, _, err := member.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, got["direct"])
}
