package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswer_WireShape(t *testing.T) {
	tests := []struct {
		name     string
		answer   Answer
		expected string
	}{
		{"bare success", NewAnswer(0), `{"result":[0]}`},
		{"success with payload", NewAnswerValue(0, map[string]any{"version": 3}), `{"result":[0,{"version":3}]}`},
		{"failure", NewErrorAnswer("no such module"), `{"result":[1,"no such module"]}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data, err := test.answer.Encode()
			require.NoError(t, err)
			assert.JSONEq(t, test.expected, string(data))
		})
	}
}

func TestParseAnswer_RoundTrip(t *testing.T) {
	original := NewAnswerValue(0, "all good")
	data, err := original.Encode()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))

	parsed, err := ParseAnswer(msg)
	require.NoError(t, err)
	assert.True(t, parsed.OK())
	assert.Equal(t, "all good", parsed.Value)
}

func TestParseAnswer_Malformed(t *testing.T) {
	tests := []struct {
		name string
		msg  map[string]any
	}{
		{"missing result", map[string]any{"command": []any{"x"}}},
		{"result not a list", map[string]any{"result": "nope"}},
		{"empty result list", map[string]any{"result": []any{}}},
		{"non-integer code", map[string]any{"result": []any{"zero"}}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParseAnswer(test.msg)
			assert.Error(t, err)
		})
	}
}

func TestParseAnswer_FailureMessage(t *testing.T) {
	answer, err := ParseAnswer(map[string]any{"result": []any{float64(1), "Timeout waiting for answer from Auth"}})
	require.NoError(t, err)
	assert.False(t, answer.OK())
	assert.Equal(t, "Timeout waiting for answer from Auth", answer.ErrorMessage())
}

func TestCommand_RoundTrip(t *testing.T) {
	msg := NewCommand(CommandGetConfig, map[string]any{"module_name": "Auth"})

	name, arg, err := ParseCommand(msg)
	require.NoError(t, err)
	assert.Equal(t, CommandGetConfig, name)
	assert.Equal(t, map[string]any{"module_name": "Auth"}, arg)
}

func TestCommand_NoArgument(t *testing.T) {
	msg := NewCommand(CommandShutdown, nil)

	name, arg, err := ParseCommand(msg)
	require.NoError(t, err)
	assert.Equal(t, CommandShutdown, name)
	assert.Nil(t, arg)
}

func TestParseCommand_Malformed(t *testing.T) {
	tests := []struct {
		name string
		msg  map[string]any
	}{
		{"missing command", map[string]any{"result": []any{float64(0)}}},
		{"command not a list", map[string]any{"command": "shutdown"}},
		{"empty command list", map[string]any{"command": []any{}}},
		{"name not a string", map[string]any{"command": []any{float64(1)}}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, _, err := ParseCommand(test.msg)
			assert.Error(t, err)
		})
	}
}

func TestIsResult(t *testing.T) {
	assert.True(t, IsResult(map[string]any{"result": []any{float64(0)}}))
	assert.False(t, IsResult(NewCommand(CommandShutdown, nil)))
}
