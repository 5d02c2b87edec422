package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authSpec(t *testing.T) *ModuleSpec {
	t.Helper()
	spec, err := ParseModuleSpec(map[string]any{
		"module_name": "Auth",
		"config_data": []any{
			map[string]any{"item_name": "listen_port", "item_type": "integer"},
		},
		"commands": []any{
			map[string]any{"command_name": "loadzone"},
		},
		"statistics": []any{
			map[string]any{"item_name": "queries.tcp"},
		},
	})
	require.NoError(t, err)
	return spec
}

func TestParseModuleSpec(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		wantErr bool
	}{
		{
			name:  "minimal valid spec",
			value: map[string]any{"module_name": "Resolver"},
		},
		{
			name: "full valid spec",
			value: map[string]any{
				"module_name":        "Auth",
				"module_description": "authoritative server",
				"config_data":        []any{},
				"commands":           []any{},
				"statistics":         []any{},
			},
		},
		{
			name:    "missing module_name",
			value:   map[string]any{"config_data": []any{}},
			wantErr: true,
		},
		{
			name:    "empty module_name",
			value:   map[string]any{"module_name": ""},
			wantErr: true,
		},
		{
			name:    "module_name not a string",
			value:   map[string]any{"module_name": 42},
			wantErr: true,
		},
		{
			name:    "config_data not an array",
			value:   map[string]any{"module_name": "Auth", "config_data": "oops"},
			wantErr: true,
		},
		{
			name:    "not an object",
			value:   []any{"module_name"},
			wantErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			spec, err := ParseModuleSpec(test.value)
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, spec.Name())
		})
	}
}

func TestParseModuleSpecJSON(t *testing.T) {
	spec, err := ParseModuleSpecJSON([]byte(`{"module_name": "Zonemgr"}`))
	require.NoError(t, err)
	assert.Equal(t, "Zonemgr", spec.Name())

	_, err = ParseModuleSpecJSON([]byte(`{not json`))
	assert.Error(t, err)
}

func TestRegistry_RegisterAndProject(t *testing.T) {
	r := New()
	spec := authSpec(t)
	r.Register(spec)

	assert.True(t, r.Has("Auth"))
	assert.Equal(t, spec.FullSpec(), r.FullSpec("Auth"))

	// Unknown names yield empty results, not errors
	assert.Empty(t, r.FullSpec("Nonexistent"))
	assert.Empty(t, r.ConfigSpecs("Nonexistent"))

	configSpecs := r.ConfigSpecs("Auth")
	require.Contains(t, configSpecs, "Auth")
	assert.Equal(t, spec.ConfigSpec(), configSpecs["Auth"])

	commandsSpecs := r.CommandsSpecs("")
	require.Contains(t, commandsSpecs, "Auth")
	assert.Equal(t, spec.CommandsSpec(), commandsSpecs["Auth"])

	statsSpecs := r.StatisticsSpecs("")
	require.Contains(t, statsSpecs, "Auth")
	assert.Equal(t, spec.StatisticsSpec(), statsSpecs["Auth"])
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	r := New()
	r.Register(authSpec(t))

	replacement, err := ParseModuleSpec(map[string]any{
		"module_name":        "Auth",
		"module_description": "updated",
	})
	require.NoError(t, err)
	r.Register(replacement)

	assert.Equal(t, "updated", r.FullSpec("Auth")["module_description"])
}

func TestRegistry_VirtualModules(t *testing.T) {
	r := New()
	spec, err := ParseModuleSpec(map[string]any{"module_name": "Logging"})
	require.NoError(t, err)

	r.RegisterVirtual(spec, func(value any) error {
		return fmt.Errorf("rejected")
	})

	check, ok := r.Validator("Logging")
	require.True(t, ok)
	assert.Error(t, check(nil))

	// A plain registration has no validator
	r.Register(authSpec(t))
	_, ok = r.Validator("Auth")
	assert.False(t, ok)
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	r := New()
	spec, err := ParseModuleSpec(map[string]any{"module_name": "Logging"})
	require.NoError(t, err)
	r.RegisterVirtual(spec, func(any) error { return nil })

	r.Unregister("Logging")
	assert.False(t, r.Has("Logging"))
	_, ok := r.Validator("Logging")
	assert.False(t, ok)

	// Removing again, or removing the unknown, is fine
	r.Unregister("Logging")
	r.Unregister("NeverRegistered")

	assert.Empty(t, r.AllSpecs())
}
