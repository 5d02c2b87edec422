package cfgmgr

import (
	"time"

	"github.com/yodamaster/bundy/document"
	"github.com/yodamaster/bundy/protocol"
	"github.com/yodamaster/bundy/registry"
)

// handleMsg dispatches one inbound command and returns the answer to
// send, or nil when the command expects none.
func (c *Coordinator) handleMsg(msg map[string]any) *protocol.Answer {
	name, arg, err := protocol.ParseCommand(msg)
	if err != nil {
		c.logger.Warn("Received invalid command", "error", err)
		answer := protocol.NewErrorAnswer("Unknown message format: %v", err)
		c.recordCommand("malformed", answer, time.Time{})
		return &answer
	}

	start := time.Now()
	var answer protocol.Answer
	switch name {
	case protocol.CommandGetCommandsSpec:
		answer = c.handleGetFacetSpec(arg, c.registry.CommandsSpecs)
	case protocol.CommandGetStatisticsSpec:
		answer = c.handleGetFacetSpec(arg, c.registry.StatisticsSpecs)
	case protocol.CommandGetModuleSpec:
		answer = c.handleGetModuleSpec(arg)
	case protocol.CommandGetConfig:
		answer = c.handleGetConfig(arg)
	case protocol.CommandSetConfig:
		answer = c.handleSetConfig(arg)
	case protocol.CommandModuleSpec:
		answer = c.handleModuleSpec(arg)
	case protocol.CommandModuleStopping:
		c.handleModuleStopping(arg)
		c.recordCommand(name, protocol.NewAnswer(0), start)
		return nil
	case protocol.CommandShutdown:
		c.running = false
		answer = protocol.NewAnswer(0)
	default:
		c.logger.Warn("Received unknown command", "command", name)
		answer = protocol.NewErrorAnswer("Unknown command: %s", name)
	}

	c.recordCommand(name, answer, start)
	return &answer
}

// moduleNameArg extracts an optional {"module_name": ...} selector.
// Returns the name (possibly empty for "all modules") or an error answer
// for arguments that are present but unusable.
func moduleNameArg(arg any, command string) (string, *protocol.Answer) {
	if arg == nil {
		return "", nil
	}
	m, ok := arg.(map[string]any)
	if !ok {
		answer := protocol.NewErrorAnswer("Bad argument in %s command", command)
		return "", &answer
	}
	raw, present := m["module_name"]
	if !present {
		return "", nil
	}
	name, ok := raw.(string)
	if !ok || name == "" {
		answer := protocol.NewErrorAnswer("Bad module_name in %s command", command)
		return "", &answer
	}
	return name, nil
}

// handleGetFacetSpec serves get_commands_spec and get_statistics_spec,
// which differ only in the facet projected out of the registry.
func (c *Coordinator) handleGetFacetSpec(arg any, facet func(string) map[string]any) protocol.Answer {
	name, errAnswer := moduleNameArg(arg, "spec request")
	if errAnswer != nil {
		return *errAnswer
	}
	return protocol.NewAnswerValue(0, facet(name))
}

func (c *Coordinator) handleGetModuleSpec(arg any) protocol.Answer {
	name, errAnswer := moduleNameArg(arg, protocol.CommandGetModuleSpec)
	if errAnswer != nil {
		return *errAnswer
	}
	if name == "" {
		return protocol.NewAnswerValue(0, c.registry.AllSpecs())
	}
	return protocol.NewAnswerValue(0, c.registry.FullSpec(name))
}

func (c *Coordinator) handleGetConfig(arg any) protocol.Answer {
	name, errAnswer := moduleNameArg(arg, protocol.CommandGetConfig)
	if errAnswer != nil {
		return *errAnswer
	}
	if name == "" {
		return protocol.NewAnswerValue(0, map[string]any(c.config.Data))
	}
	if value, ok := c.config.Data[name]; ok {
		// The stored value is returned as-is; a non-object here means the
		// file was edited by hand, which is worth noticing but not hiding
		if _, isMap := value.(map[string]any); !isMap {
			c.logger.Warn("Stored configuration for module is not an object", "module", name)
		}
		return protocol.NewAnswerValue(0, value)
	}
	// Unknown module: hand back a document carrying only the format
	// version, so the asker can tell "no config yet" from "no answer"
	return protocol.NewAnswerValue(0, map[string]any{
		document.VersionKey: document.CurrentVersion,
	})
}

// handleSetConfig routes the two shapes of set_config: a two-element
// [module_name, delta] targeted update, and a one-element [document]
// global update.
func (c *Coordinator) handleSetConfig(arg any) protocol.Answer {
	parts, ok := arg.([]any)
	if !ok {
		return protocol.NewErrorAnswer("Wrong argument type for set_config")
	}

	switch len(parts) {
	case 2:
		name, ok := parts[0].(string)
		if !ok || name == "" {
			return protocol.NewErrorAnswer("Bad module_name in set_config command")
		}
		delta, ok := parts[1].(map[string]any)
		if !ok {
			return protocol.NewErrorAnswer("Bad configuration in set_config command")
		}
		return c.commitOne(name, delta, true)
	case 1:
		doc, ok := parts[0].(map[string]any)
		if !ok {
			return protocol.NewErrorAnswer("Bad configuration in set_config command")
		}
		return c.commitAll(doc)
	default:
		return protocol.NewErrorAnswer("Wrong number of arguments")
	}
}

// handleModuleSpec registers a module's self-described specification and
// forwards it to Cmdctl so the command channel learns the new surface.
func (c *Coordinator) handleModuleSpec(arg any) protocol.Answer {
	spec, err := registry.ParseModuleSpec(arg)
	if err != nil {
		c.logger.Warn("Rejected module spec", "error", err)
		return protocol.NewErrorAnswer("Error in module spec: %v", err)
	}

	c.registry.Register(spec)
	c.metrics.setRegisteredModules(float64(c.registry.Len()))
	c.logger.Info("Module registered", "module", spec.Name())
	c.forwardSpecUpdate(spec.Name(), spec.FullSpec())
	return protocol.NewAnswer(0)
}

// handleModuleStopping deregisters a stopping module. The sender is going
// away and will not read an answer, so none is produced.
func (c *Coordinator) handleModuleStopping(arg any) {
	m, ok := arg.(map[string]any)
	if !ok {
		c.logger.Warn("Bad argument in module_stopping command")
		return
	}
	name, ok := m["module_name"].(string)
	if !ok || name == "" {
		c.logger.Warn("Bad module_name in module_stopping command")
		return
	}
	if !c.registry.Has(name) {
		return
	}

	c.registry.Unregister(name)
	c.metrics.setRegisteredModules(float64(c.registry.Len()))
	c.logger.Info("Module deregistered", "module", name)
	c.forwardSpecUpdate(name, nil)
}

// forwardSpecUpdate tells Cmdctl about a registration change. A nil spec
// means the module is gone. Delivery is best effort: a failure is logged
// and the registration change stands.
func (c *Coordinator) forwardSpecUpdate(name string, spec map[string]any) {
	var specValue any
	if spec != nil {
		specValue = spec
	}
	cmd := protocol.NewCommand(protocol.CommandModuleSpecUpdate, []any{name, specValue})
	if err := c.session.Send(GroupCmdctl, cmd); err != nil {
		c.logger.Warn("Failed to forward module spec update",
			"module", name, "error", err)
	}
}

// recordCommand is a nil-safe metrics hook for one dispatched command.
func (c *Coordinator) recordCommand(name string, answer protocol.Answer, start time.Time) {
	status := "ok"
	if !answer.OK() {
		status = "error"
	}
	var elapsed time.Duration
	if !start.IsZero() {
		elapsed = time.Since(start)
	}
	c.metrics.observeCommand(name, status, elapsed)
}
