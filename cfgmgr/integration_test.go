package cfgmgr_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yodamaster/bundy/busclient"
	"github.com/yodamaster/bundy/cfgmgr"
	"github.com/yodamaster/bundy/protocol"
)

// TestIntegration_CoordinatorOverBus exercises the full path: a client
// session registers a module spec, a module endpoint acknowledges config
// updates, and the coordinator serves queries and commits over a real
// bus.
func TestIntegration_CoordinatorOverBus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	tc := busclient.NewTestClient(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	coordinator, err := cfgmgr.New(t.TempDir(), "b10-config.db",
		tc.NewSession(t, busclient.WithName("cfgmgr")),
		cfgmgr.WithLogger(logger),
		cfgmgr.WithModuleTimeout(3*time.Second))
	require.NoError(t, err)
	require.NoError(t, coordinator.ReadConfig())
	require.NoError(t, coordinator.Subscribe())
	time.Sleep(100 * time.Millisecond)

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	runDone := make(chan error, 1)
	go func() { runDone <- coordinator.Run(runCtx) }()

	client := tc.NewSession(t, busclient.WithName("client"))

	// A module announces itself
	spec := map[string]any{
		"module_name": "Auth",
		"config_data": []any{
			map[string]any{"item_name": "item1", "item_type": "integer"},
		},
	}
	answer := request(t, client, protocol.CommandModuleSpec, spec)
	require.True(t, answer.OK(), "module_spec failed: %v", answer.Value)

	// The module endpoint acknowledges config updates
	module := tc.NewSession(t, busclient.WithName("auth"))
	require.NoError(t, module.Subscribe("Auth", ""))
	time.Sleep(100 * time.Millisecond)

	moduleCtx, cancelModule := context.WithCancel(context.Background())
	defer cancelModule()
	go func() {
		for {
			msg, env, err := module.Receive(moduleCtx)
			if err != nil {
				return
			}
			if name, _, err := protocol.ParseCommand(msg); err == nil && name == protocol.CommandConfigUpdate {
				_ = module.Reply(env, protocol.NewAnswer(0).Payload())
			}
		}
	}()

	// A targeted change round-trips through the module
	answer = request(t, client, protocol.CommandSetConfig, []any{"Auth", map[string]any{"item1": 5}})
	require.True(t, answer.OK(), "set_config failed: %v", answer.Value)

	// The committed value is visible to queries
	answer = request(t, client, protocol.CommandGetConfig, map[string]any{"module_name": "Auth"})
	require.True(t, answer.OK())
	sub, ok := answer.Value.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 5, sub["item1"])

	// Shutdown stops the run loop cleanly
	answer = request(t, client, protocol.CommandShutdown, nil)
	require.True(t, answer.OK())

	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop after shutdown command")
	}
}

func request(t *testing.T, client *busclient.Client, command string, arg any) protocol.Answer {
	t.Helper()
	resp, err := client.Request(cfgmgr.GroupConfigManager, protocol.NewCommand(command, arg), 5*time.Second)
	require.NoError(t, err)
	answer, err := protocol.ParseAnswer(resp)
	require.NoError(t, err)
	return answer
}
