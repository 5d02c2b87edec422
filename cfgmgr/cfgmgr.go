// Package cfgmgr implements the configuration coordinator: the command
// dispatcher that serves the bus protocol, and the distribution/commit
// engine that applies configuration changes atomically across module
// boundaries.
package cfgmgr

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yodamaster/bundy/busclient"
	"github.com/yodamaster/bundy/document"
	"github.com/yodamaster/bundy/errors"
	"github.com/yodamaster/bundy/logconfig"
	"github.com/yodamaster/bundy/metric"
	"github.com/yodamaster/bundy/protocol"
	"github.com/yodamaster/bundy/registry"
	"github.com/yodamaster/bundy/store"
)

// Bus groups the coordinator interacts with.
const (
	// GroupConfigManager is the group the coordinator serves commands on.
	GroupConfigManager = "ConfigManager"
	// GroupInit is notified when the coordinator is up.
	GroupInit = "Init"
	// GroupCmdctl receives module-spec updates, fire-and-forget.
	GroupCmdctl = "Cmdctl"
)

// DefaultModuleTimeout bounds the one round trip of a configuration
// update to a real module. Idle receives are unbounded.
const DefaultModuleTimeout = 10 * time.Second

// LoggingHandler applies the reserved logging sub-document. It is invoked
// on every initial load and every successful global update, with nil when
// no logging configuration is present.
type LoggingHandler interface {
	Apply(value any)
}

// Coordinator is the configuration authority: it owns the canonical
// document, serves spec and config queries, and distributes accepted
// deltas to the affected modules.
//
// All state is confined to the dispatch goroutine running Run; handling
// one command always runs to completion before the next receive begins.
type Coordinator struct {
	dataPath   string
	dbFilename string

	config   *store.ConfigData
	registry *registry.Registry
	session  busclient.Session

	logHandler    LoggingHandler
	logger        *slog.Logger
	metrics       *coordinatorMetrics
	moduleTimeout time.Duration

	running bool
}

// Option is a functional option for configuring the Coordinator
type Option func(*Coordinator) error

// WithLogger sets the coordinator's structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithLoggingHandler sets the handler for the reserved logging
// sub-document
func WithLoggingHandler(h LoggingHandler) Option {
	return func(c *Coordinator) error {
		c.logHandler = h
		return nil
	}
}

// WithModuleTimeout bounds the round trip of a config update to a real
// module
func WithModuleTimeout(d time.Duration) Option {
	return func(c *Coordinator) error {
		if d <= 0 {
			return fmt.Errorf("module timeout must be positive, got %v", d)
		}
		c.moduleTimeout = d
		return nil
	}
}

// WithMetrics enables Prometheus instrumentation using the provided
// registry
func WithMetrics(reg *metric.Registry) Option {
	return func(c *Coordinator) error {
		metrics, err := newCoordinatorMetrics(reg)
		if err != nil {
			return err
		}
		c.metrics = metrics
		return nil
	}
}

// New creates a coordinator persisting to <dataPath>/<dbFilename> (or to
// dbFilename directly when absolute). The session is the bus endpoint to
// serve on; it must already be connected.
func New(dataPath, dbFilename string, session busclient.Session, opts ...Option) (*Coordinator, error) {
	if session == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("session cannot be nil"),
			"Coordinator", "New", "session validation")
	}

	c := &Coordinator{
		dataPath:      dataPath,
		dbFilename:    dbFilename,
		registry:      registry.New(),
		session:       session,
		logger:        slog.Default(),
		moduleTimeout: DefaultModuleTimeout,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Coordinator", "New", "apply option")
		}
	}

	c.config = store.New(dataPath, dbFilename, c.logger)
	return c, nil
}

// Registry exposes the module registry, mainly so the process bootstrap
// can install virtual modules before Run.
func (c *Coordinator) Registry() *registry.Registry {
	return c.registry
}

// Document returns the live configuration document.
func (c *Coordinator) Document() document.Document {
	return c.config.Data
}

// ClearConfig rotates any existing document file to a backup name, so the
// next read starts from an empty current-version document.
func (c *Coordinator) ClearConfig() error {
	return c.config.Backup()
}

// ReadConfig loads the persisted document. A missing file is normal and
// leaves the coordinator with an empty current-version document; corrupt
// content surfaces to the caller and must stop startup. The logging
// handler runs in either case.
func (c *Coordinator) ReadConfig() error {
	loaded, err := store.Read(c.dataPath, c.dbFilename, c.logger)
	switch {
	case err == nil:
		c.config = loaded
	case stderrors.Is(err, errors.ErrDataEmpty):
		c.logger.Info("No configuration file found, starting with defaults")
		c.config = store.New(c.dataPath, c.dbFilename, c.logger)
	default:
		return err
	}

	c.checkLoggingConfig(c.config.Data)
	return nil
}

// WriteConfig persists the current document. Failures are logged and the
// operation abandoned; the in-memory document stays authoritative until
// the next successful write.
func (c *Coordinator) WriteConfig() {
	if err := c.config.Write(); err != nil {
		c.logger.Error("Error writing configuration file", "error", err)
	}
}

// checkLoggingConfig routes the reserved logging sub-document to the
// logging handler. The handler runs even when the value is absent; its
// contract includes flushing records buffered before it was first invoked.
func (c *Coordinator) checkLoggingConfig(doc map[string]any) {
	if c.logHandler == nil {
		return
	}
	c.logHandler.Apply(doc[logconfig.ModuleName])
}

// Subscribe joins the coordinator's command groups.
func (c *Coordinator) Subscribe() error {
	if err := c.session.Subscribe(GroupConfigManager, ""); err != nil {
		return err
	}
	return c.session.Subscribe(GroupInit, GroupConfigManager)
}

// NotifyInit announces to the Init group that the coordinator is running.
// No reply is expected.
func (c *Coordinator) NotifyInit() {
	if err := c.session.Send(GroupInit, map[string]any{"running": GroupConfigManager}); err != nil {
		c.logger.Warn("Failed to notify Init group", "error", err)
	}
}

// Run serves commands until a shutdown command arrives or ctx is done.
// The loop blocks on exactly one receive at a time; a command already
// being handled always completes before shutdown takes effect.
func (c *Coordinator) Run(ctx context.Context) error {
	c.running = true
	for c.running {
		msg, env, err := c.session.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if stderrors.Is(err, errors.ErrProtocolMalformed) && env != nil {
				// Still addressable: tell the sender instead of dropping
				c.logger.Warn("Received malformed message", "error", err, "envelope", env.ID)
				answer := protocol.NewErrorAnswer("Unknown message format")
				c.reply(env, answer)
				continue
			}
			return errors.WrapTransient(err, "Coordinator", "Run", "receive message")
		}
		if msg == nil {
			continue
		}
		// Answers to questions we did not ask are dropped; the engine
		// collects its own answers inside an explicit round trip
		if protocol.IsResult(msg) {
			continue
		}

		if answer := c.handleMsg(msg); answer != nil {
			c.reply(env, *answer)
		}
	}

	c.logger.Info("Stopped by shutdown command")
	return nil
}

func (c *Coordinator) reply(env *busclient.Envelope, answer protocol.Answer) {
	if err := c.session.Reply(env, answer.Payload()); err != nil {
		c.logger.Warn("Failed to send answer", "error", err)
	}
}
