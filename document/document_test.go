package document

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	doc := New()

	version, ok := doc.Version()
	require.True(t, ok)
	assert.Equal(t, CurrentVersion, version)
	assert.Empty(t, doc.ModuleNames())
}

func TestVersion_NumericRepresentations(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected int
		ok       bool
	}{
		{"int", 3, 3, true},
		{"int64", int64(2), 2, true},
		{"float64 from JSON", float64(1), 1, true},
		{"json.Number", json.Number("3"), 3, true},
		{"string", "3", 0, false},
		{"absent", nil, 0, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			doc := Document{}
			if test.value != nil {
				doc[VersionKey] = test.value
			}
			version, ok := doc.Version()
			assert.Equal(t, test.ok, ok)
			assert.Equal(t, test.expected, version)
		})
	}
}

func TestModuleNames_SortedWithoutVersion(t *testing.T) {
	doc := Document{
		"version": 3,
		"Zones":   map[string]any{},
		"Auth":    map[string]any{},
		"Init":    map[string]any{},
	}

	assert.Equal(t, []string{"Auth", "Init", "Zones"}, doc.ModuleNames())
}

func TestClone_Independence(t *testing.T) {
	doc := Document{
		"version": 3,
		"Auth": map[string]any{
			"listen": map[string]any{"port": 5300},
			"zones":  []any{"example.org"},
		},
	}

	snapshot := doc.Clone()

	// Mutate the original through every container level
	auth := doc["Auth"].(map[string]any)
	auth["listen"].(map[string]any)["port"] = 9999
	auth["zones"] = append(auth["zones"].([]any), "example.com")
	doc["Resolver"] = map[string]any{}

	snapAuth := snapshot["Auth"].(map[string]any)
	assert.Equal(t, 5300, snapAuth["listen"].(map[string]any)["port"])
	assert.Len(t, snapAuth["zones"], 1)
	assert.NotContains(t, snapshot, "Resolver")

	// Version survives the copy with its numeric type intact
	version, ok := snapshot.Version()
	require.True(t, ok)
	assert.Equal(t, 3, version)
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		target   map[string]any
		delta    map[string]any
		expected map[string]any
	}{
		{
			name:     "scalar overwrite",
			target:   map[string]any{"port": 53},
			delta:    map[string]any{"port": 5300},
			expected: map[string]any{"port": 5300},
		},
		{
			name:     "untouched keys survive",
			target:   map[string]any{"port": 53, "verbose": true},
			delta:    map[string]any{"port": 5300},
			expected: map[string]any{"port": 5300, "verbose": true},
		},
		{
			name:   "nested maps merge recursively",
			target: map[string]any{"listen": map[string]any{"address": "::1", "port": 53}},
			delta:  map[string]any{"listen": map[string]any{"port": 5300}},
			expected: map[string]any{
				"listen": map[string]any{"address": "::1", "port": 5300},
			},
		},
		{
			name:     "nil deletes key",
			target:   map[string]any{"port": 53, "verbose": true},
			delta:    map[string]any{"verbose": nil},
			expected: map[string]any{"port": 53},
		},
		{
			name:     "map overwrites scalar",
			target:   map[string]any{"listen": "any"},
			delta:    map[string]any{"listen": map[string]any{"port": 53}},
			expected: map[string]any{"listen": map[string]any{"port": 53}},
		},
		{
			name:     "new keys added",
			target:   map[string]any{},
			delta:    map[string]any{"port": 53},
			expected: map[string]any{"port": 53},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			Merge(test.target, test.delta)
			assert.Equal(t, test.expected, test.target)
		})
	}
}

func TestMerge_DeltaNotAliased(t *testing.T) {
	delta := map[string]any{"listen": map[string]any{"port": 53}}
	target := map[string]any{}
	Merge(target, delta)

	// Mutating the merged result must not reach back into the delta
	target["listen"].(map[string]any)["port"] = 5300
	assert.Equal(t, 53, delta["listen"].(map[string]any)["port"])
}

func TestEqual_AcrossJSONRoundTrip(t *testing.T) {
	doc := Document{
		"version": 3,
		"Auth":    map[string]any{"port": 53},
	}

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var decoded Document
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.True(t, Equal(doc, decoded))

	decoded["Auth"].(map[string]any)["port"] = float64(54)
	assert.False(t, Equal(doc, decoded))
}
