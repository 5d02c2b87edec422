package cfgmgr

import (
	"fmt"
	"strings"

	"github.com/yodamaster/bundy/document"
	"github.com/yodamaster/bundy/protocol"
	"github.com/yodamaster/bundy/registry"
)

// commitOne applies a delta to one module's sub-document, asks the module
// to accept it, and either persists or rolls back. The module's verdict is
// authoritative: acceptance commits even if the delta is a no-op, and
// rejection rolls back even if the merged value looks fine locally.
//
// persist is false when the caller is a global update, which persists once
// at the end so a later module's rejection never leaves a partial document
// on disk.
func (c *Coordinator) commitOne(name string, delta map[string]any, persist bool) protocol.Answer {
	snapshot := c.config.Data.Clone()

	sub, ok := c.config.Data[name].(map[string]any)
	if !ok {
		sub = map[string]any{}
		c.config.Data[name] = sub
	}
	document.Merge(sub, delta)

	var answer protocol.Answer
	if check, virtual := c.registry.Validator(name); virtual {
		answer = c.commitVirtual(name, check, sub)
	} else {
		answer = c.commitReal(name, sub)
	}

	if answer.OK() {
		if persist {
			c.WriteConfig()
		}
		c.metrics.recordCommit(name, "accepted")
	} else {
		c.config.Data = snapshot
		c.metrics.recordCommit(name, "rejected")
		// A global update restores once at the end; counting here too
		// would tally one logical rollback several times
		if persist {
			c.metrics.recordRollback()
		}
	}
	return answer
}

// commitVirtual runs an in-process validator. A panicking validator is a
// validator fault, reported as a rejection; it must never take the
// coordinator down. On acceptance the module's subscribers are notified
// fire-and-forget, matching how a real module would observe the change.
func (c *Coordinator) commitVirtual(name string, check registry.Validator, value map[string]any) protocol.Answer {
	if err := runValidator(check, value); err != nil {
		c.logger.Warn("Virtual module rejected configuration",
			"module", name, "error", err)
		return protocol.NewErrorAnswer("%v", err)
	}

	update := protocol.NewCommand(protocol.CommandConfigUpdate, value)
	if err := c.session.Send(name, update); err != nil {
		c.logger.Warn("Failed to notify virtual module subscribers",
			"module", name, "error", err)
	}
	return protocol.NewAnswer(0)
}

// commitReal sends the merged sub-document to the module and waits,
// bounded, for its verdict.
func (c *Coordinator) commitReal(name string, value map[string]any) protocol.Answer {
	update := protocol.NewCommand(protocol.CommandConfigUpdate, value)
	resp, err := c.session.Request(name, update, c.moduleTimeout)
	if err != nil {
		c.logger.Warn("No usable answer from module",
			"module", name, "error", err)
		return protocol.NewErrorAnswer("Timeout waiting for answer from %s", name)
	}

	answer, err := protocol.ParseAnswer(resp)
	if err != nil {
		c.logger.Warn("Unparseable answer from module",
			"module", name, "error", err)
		return protocol.NewErrorAnswer("Unable to parse response from %s: %v", name, err)
	}
	return answer
}

// commitAll applies a whole-document update module by module, in sorted
// name order. Any rejection restores the pre-update snapshot for every
// module, including the ones that had already accepted, and reports all
// failures together. Only total success touches disk or the logging
// configuration.
func (c *Coordinator) commitAll(doc map[string]any) protocol.Answer {
	snapshot := c.config.Data.Clone()

	var failures []string
	for _, name := range document.Document(doc).ModuleNames() {
		delta, ok := doc[name].(map[string]any)
		if !ok {
			failures = append(failures, fmt.Sprintf("Bad configuration for module %s", name))
			continue
		}
		if answer := c.commitOne(name, delta, false); !answer.OK() {
			failures = append(failures, answer.ErrorMessage())
		}
	}

	if len(failures) > 0 {
		c.config.Data = snapshot
		c.metrics.recordRollback()
		return protocol.NewErrorAnswer("%s", strings.Join(failures, " "))
	}

	c.checkLoggingConfig(doc)
	c.WriteConfig()
	return protocol.NewAnswer(0)
}

// runValidator converts a validator panic into an error so one faulty
// module cannot crash the coordinator.
func runValidator(check registry.Validator, value map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("validator failure: %v", r)
		}
	}()
	return check(value)
}
