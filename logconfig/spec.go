package logconfig

import "fmt"

// ModuleSpec returns the module specification under which the logging
// configuration is registered. Logging is a virtual module: it has no
// process of its own, so its changes are checked in-process by Validate.
func ModuleSpec() map[string]any {
	return map[string]any{
		"module_name":        ModuleName,
		"module_description": "Process-wide logging configuration",
		"config_data": []any{
			map[string]any{
				"item_name":     "severity",
				"item_type":     "string",
				"item_optional": true,
				"item_default":  "INFO",
			},
		},
	}
}

// Validate is the acceptance check for logging configuration changes. It
// accepts an absent or empty sub-document and rejects a severity that is
// not a string naming a known level.
func Validate(value any) error {
	if value == nil {
		return nil
	}
	cfg, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("logging configuration must be a map, got %T", value)
	}
	raw, present := cfg["severity"]
	if !present {
		return nil
	}
	severity, ok := raw.(string)
	if !ok {
		return fmt.Errorf("logging severity must be a string, got %T", raw)
	}
	if _, known := ParseSeverity(severity); !known {
		return fmt.Errorf("unknown logging severity %q", severity)
	}
	return nil
}
