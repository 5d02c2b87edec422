// Package registry provides bookkeeping of registered module schemas for
// the configuration coordinator, distinguishing remote ("real") modules
// from in-process ("virtual") ones.
package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/yodamaster/bundy/errors"
)

// metaSchema is the JSON Schema every inbound module spec must satisfy
// before it is accepted into the registry. It constrains the envelope
// only; the semantics of the item descriptions inside config_data,
// commands, and statistics belong to the schema description language and
// are not interpreted here.
const metaSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["module_name"],
	"properties": {
		"module_name": {"type": "string", "minLength": 1},
		"module_description": {"type": "string"},
		"config_data": {"type": "array"},
		"commands": {"type": "array"},
		"statistics": {"type": "array"}
	}
}`

var metaSchemaLoader = gojsonschema.NewStringLoader(metaSchema)

// ModuleSpec is an immutable-once-registered descriptor of a module: its
// name, configuration shape, supported commands, and exposed statistics.
type ModuleSpec struct {
	full map[string]any
	name string
}

// ParseModuleSpec validates the given value against the module spec
// meta-schema and wraps it. The value is what arrives as the argument of a
// module_spec command.
func ParseModuleSpec(value any) (*ModuleSpec, error) {
	spec, ok := value.(map[string]any)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("module spec must be an object, got %T", value),
			"ModuleSpec", "ParseModuleSpec", "shape check")
	}

	result, err := gojsonschema.Validate(metaSchemaLoader, gojsonschema.NewGoLoader(spec))
	if err != nil {
		return nil, errors.WrapInvalid(err, "ModuleSpec", "ParseModuleSpec", "schema validation")
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return nil, errors.WrapInvalid(
			fmt.Errorf("%s", strings.Join(details, "; ")),
			"ModuleSpec", "ParseModuleSpec", "schema validation")
	}

	name, _ := spec["module_name"].(string)
	return &ModuleSpec{full: spec, name: name}, nil
}

// ParseModuleSpecJSON parses and validates a JSON-encoded module spec.
func ParseModuleSpecJSON(data []byte) (*ModuleSpec, error) {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, errors.WrapInvalid(err, "ModuleSpec", "ParseModuleSpecJSON", "decode")
	}
	return ParseModuleSpec(value)
}

// Name returns the module name the spec was registered under.
func (s *ModuleSpec) Name() string {
	return s.name
}

// FullSpec returns the complete spec document.
func (s *ModuleSpec) FullSpec() map[string]any {
	return s.full
}

// ConfigSpec returns the configuration-shape facet of the spec.
func (s *ModuleSpec) ConfigSpec() any {
	return s.full["config_data"]
}

// CommandsSpec returns the commands facet of the spec.
func (s *ModuleSpec) CommandsSpec() any {
	return s.full["commands"]
}

// StatisticsSpec returns the statistics facet of the spec.
func (s *ModuleSpec) StatisticsSpec() any {
	return s.full["statistics"]
}
