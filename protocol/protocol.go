// Package protocol implements the command/answer envelope format spoken
// over the message bus.
//
// Every inbound unit is either a command, {"command": [name]} or
// {"command": [name, argument]}, or a bare result payload, which the
// coordinator ignores outside an explicit round trip. Every outbound
// answer has the shape {"result": [code]} or {"result": [code, payload]},
// where code 0 means success.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/yodamaster/bundy/errors"
)

// Reserved payload keys.
const (
	KeyCommand = "command"
	KeyResult  = "result"
)

// Commands handled by the coordinator.
const (
	CommandGetCommandsSpec   = "get_commands_spec"
	CommandGetStatisticsSpec = "get_statistics_spec"
	CommandGetModuleSpec     = "get_module_spec"
	CommandGetConfig         = "get_config"
	CommandSetConfig         = "set_config"
	CommandModuleSpec        = "module_spec"
	CommandModuleStopping    = "module_stopping"
	CommandShutdown          = "shutdown"
)

// Commands issued by the coordinator to its collaborators.
const (
	// CommandConfigUpdate carries a merged sub-document to the module
	// owning it.
	CommandConfigUpdate = "config_update"
	// CommandModuleSpecUpdate forwards [name, spec-or-null] to the
	// spec-subscriber channel.
	CommandModuleSpecUpdate = "module_specification_update"
)

// Answer is the universal return value of every command handler: a result
// code (0 for success) plus an optional payload. For failures the payload
// is a human-readable reason.
type Answer struct {
	Code  int
	Value any

	hasValue bool
}

// NewAnswer creates a success answer with no payload when code is 0, or a
// bare failure code otherwise.
func NewAnswer(code int) Answer {
	return Answer{Code: code}
}

// NewAnswerValue creates an answer carrying a payload.
func NewAnswerValue(code int, value any) Answer {
	return Answer{Code: code, Value: value, hasValue: true}
}

// NewErrorAnswer creates a failure answer with the given reason, formatted
// fmt.Sprintf style.
func NewErrorAnswer(format string, args ...any) Answer {
	return Answer{Code: 1, Value: fmt.Sprintf(format, args...), hasValue: true}
}

// OK reports whether the answer signals success.
func (a Answer) OK() bool {
	return a.Code == 0
}

// ErrorMessage returns the payload as a failure reason string.
func (a Answer) ErrorMessage() string {
	if s, ok := a.Value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", a.Value)
}

// Payload encodes the answer into its wire shape.
func (a Answer) Payload() map[string]any {
	result := []any{a.Code}
	if a.hasValue {
		result = append(result, a.Value)
	}
	return map[string]any{KeyResult: result}
}

// Encode serializes the answer to JSON.
func (a Answer) Encode() ([]byte, error) {
	return json.Marshal(a.Payload())
}

// ParseAnswer extracts the result code and optional payload from a decoded
// answer message.
func ParseAnswer(msg map[string]any) (Answer, error) {
	raw, ok := msg[KeyResult]
	if !ok {
		return Answer{}, errors.WrapInvalid(
			fmt.Errorf("answer has no %q key", KeyResult),
			"protocol", "ParseAnswer", "shape check")
	}
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return Answer{}, errors.WrapInvalid(
			fmt.Errorf("%q is not a non-empty list", KeyResult),
			"protocol", "ParseAnswer", "shape check")
	}

	code, ok := asInt(items[0])
	if !ok {
		return Answer{}, errors.WrapInvalid(
			fmt.Errorf("result code %v is not an integer", items[0]),
			"protocol", "ParseAnswer", "shape check")
	}

	answer := Answer{Code: code}
	if len(items) > 1 {
		answer.Value = items[1]
		answer.hasValue = true
	}
	return answer, nil
}

// NewCommand encodes a command with an argument into its wire shape.
func NewCommand(name string, arg any) map[string]any {
	if arg == nil {
		return map[string]any{KeyCommand: []any{name}}
	}
	return map[string]any{KeyCommand: []any{name, arg}}
}

// ParseCommand extracts the command name and argument from a decoded
// message. The argument is nil when the command carries none.
func ParseCommand(msg map[string]any) (string, any, error) {
	raw, ok := msg[KeyCommand]
	if !ok {
		return "", nil, errors.WrapInvalid(
			fmt.Errorf("message has no %q key", KeyCommand),
			"protocol", "ParseCommand", "shape check")
	}
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return "", nil, errors.WrapInvalid(
			fmt.Errorf("%q is not a non-empty list", KeyCommand),
			"protocol", "ParseCommand", "shape check")
	}
	name, ok := items[0].(string)
	if !ok {
		return "", nil, errors.WrapInvalid(
			fmt.Errorf("command name %v is not a string", items[0]),
			"protocol", "ParseCommand", "shape check")
	}

	var arg any
	if len(items) > 1 {
		arg = items[1]
	}
	return name, arg, nil
}

// IsResult reports whether a decoded message is a bare result payload, an
// answer to a question the coordinator did not ask. The run loop drops
// these.
func IsResult(msg map[string]any) bool {
	_, ok := msg[KeyResult]
	return ok
}

// asInt accepts the numeric representations a JSON decoder may produce.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
