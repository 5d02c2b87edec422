// Package busclient provides the message-bus endpoint of the configuration
// coordinator, backed by NATS. Groups map to subjects under a common
// prefix; request/reply round trips use NATS inboxes, which scope the
// bounded timeout to the one exchange that needs it.
package busclient

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/yodamaster/bundy/errors"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// DefaultSubjectPrefix namespaces all group subjects on the bus.
const DefaultSubjectPrefix = "bundy"

// receiveBuffer bounds how many inbound messages may queue while the
// dispatch loop is busy with the previous command.
const receiveBuffer = 64

// Client is the NATS-backed Session implementation.
type Client struct {
	url    string
	status atomic.Value // stores ConnectionStatus
	logger Logger

	conn *nats.Conn
	subs []*nats.Subscription

	// All subscriptions funnel into one channel so the dispatch loop
	// blocks on exactly one receive at a time
	inbox chan *nats.Msg

	// Connection options
	subjectPrefix string
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	// Authentication
	username string
	password string
	token    string

	// TLS
	tlsEnabled  bool
	tlsCertFile string
	tlsKeyFile  string
	tlsCAFile   string

	clientName string

	mu     sync.RWMutex
	closed atomic.Bool
}

// NewClient creates a new bus client with optional configuration. The
// client is not connected until Connect is called.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:           url,
		logger:        &defaultLogger{},
		inbox:         make(chan *nats.Msg, receiveBuffer),
		subjectPrefix: DefaultSubjectPrefix,
		maxReconnects: -1, // infinite by default
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  30 * time.Second,
		clientName:    "bundy-cfgmgr-" + uuid.NewString()[:8],
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	c.status.Store(StatusDisconnected)

	c.logger.Debugf("Created bus client for %s", url)

	return c, nil
}

// URL returns the NATS server URL
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	val := c.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

// IsHealthy returns true if the connection is healthy
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// Connect establishes the NATS connection.
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}

	c.status.Store(StatusConnecting)

	conn, err := nats.Connect(c.url, c.buildConnectionOptions()...)
	if err != nil {
		c.status.Store(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "connect to NATS")
	}

	c.conn = conn
	c.status.Store(StatusConnected)
	c.logger.Printf("Connected to %s as %s", c.url, c.clientName)

	return nil
}

// buildConnectionOptions builds NATS connection options from client configuration
func (c *Client) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.Name(c.clientName),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
	}

	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}

	if c.tlsEnabled {
		if c.tlsCertFile != "" && c.tlsKeyFile != "" {
			opts = append(opts, nats.ClientCert(c.tlsCertFile, c.tlsKeyFile))
		}
		if c.tlsCAFile != "" {
			opts = append(opts, nats.RootCAs(c.tlsCAFile))
		}
	}

	return opts
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	c.status.Store(StatusReconnecting)
	if err != nil {
		c.logger.Errorf("Disconnected from bus: %v", err)
	}
}

func (c *Client) handleReconnect(conn *nats.Conn) {
	c.status.Store(StatusConnected)
	c.logger.Printf("Reconnected to bus at %s", conn.ConnectedUrl())
}

func (c *Client) handleClosed(_ *nats.Conn) {
	c.status.Store(StatusDisconnected)
}

// GroupSubject returns the bus subject a group maps to.
func (c *Client) GroupSubject(group string) string {
	return c.subjectPrefix + "." + group
}

// Subscribe joins a group. Messages from every subscription are funneled
// into the client's single receive channel. A non-empty instance also
// subscribes the member-specific subject <prefix>.<group>.<instance>.
func (c *Client) Subscribe(group, instance string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return errors.ErrNotConnected
	}

	subjects := []string{c.GroupSubject(group)}
	if instance != "" {
		subjects = append(subjects, c.GroupSubject(group)+"."+instance)
	}

	for _, subject := range subjects {
		sub, err := c.conn.ChanSubscribe(subject, c.inbox)
		if err != nil {
			return errors.WrapTransient(
				fmt.Errorf("%w: %s: %v", errors.ErrSubscriptionFailed, subject, err),
				"Client", "Subscribe", "subscribe group")
		}
		c.subs = append(c.subs, sub)
		c.logger.Debugf("Subscribed to %s", subject)
	}

	return nil
}

// Send publishes a message to a group without awaiting an answer.
func (c *Client) Send(target string, msg map[string]any) error {
	conn := c.connection()
	if conn == nil {
		return errors.ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return errors.WrapInvalid(err, "Client", "Send", "encode message")
	}
	if err := conn.Publish(c.GroupSubject(target), data); err != nil {
		return errors.WrapTransient(err, "Client", "Send", "publish message")
	}
	return nil
}

// Request publishes a message to a group and blocks for a single answer
// under the given timeout. A missing answer within the window yields
// errors.ErrCommitTimeout; an answer that does not decode yields
// errors.ErrProtocolMalformed.
func (c *Client) Request(target string, msg map[string]any, timeout time.Duration) (map[string]any, error) {
	conn := c.connection()
	if conn == nil {
		return nil, errors.ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "Request", "encode message")
	}

	reply, err := conn.Request(c.GroupSubject(target), data, timeout)
	if err != nil {
		if stderrors.Is(err, nats.ErrTimeout) || stderrors.Is(err, nats.ErrNoResponders) {
			return nil, errors.ErrCommitTimeout
		}
		return nil, errors.WrapTransient(err, "Client", "Request", "round trip")
	}

	var decoded map[string]any
	if err := json.Unmarshal(reply.Data, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrProtocolMalformed, err)
	}
	return decoded, nil
}

// Receive blocks until the next inbound message arrives or ctx is done.
// There is no receive timeout; bounded waits exist only inside Request.
func (c *Client) Receive(ctx context.Context) (map[string]any, *Envelope, error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case m, ok := <-c.inbox:
		if !ok {
			return nil, nil, errors.ErrNotConnected
		}
		env := &Envelope{
			ID:      uuid.NewString(),
			Subject: m.Subject,
			Reply:   m.Reply,
		}
		var decoded map[string]any
		if err := json.Unmarshal(m.Data, &decoded); err != nil {
			return nil, env, fmt.Errorf("%w: %v", errors.ErrProtocolMalformed, err)
		}
		return decoded, env, nil
	}
}

// Reply sends an answer to the sender of the enveloped message.
func (c *Client) Reply(env *Envelope, msg map[string]any) error {
	if env == nil || env.Reply == "" {
		return nil
	}
	conn := c.connection()
	if conn == nil {
		return errors.ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return errors.WrapInvalid(err, "Client", "Reply", "encode answer")
	}
	if err := conn.Publish(env.Reply, data); err != nil {
		return errors.WrapTransient(err, "Client", "Reply", "publish answer")
	}
	return nil
}

// Close drains the subscriptions and closes the connection.
func (c *Client) Close(_ context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	for _, sub := range c.subs {
		_ = sub.Unsubscribe() // Best effort during shutdown
	}
	c.subs = nil

	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
	c.conn = nil
	c.status.Store(StatusDisconnected)
	c.token = ""
	c.password = ""

	return nil
}

func (c *Client) connection() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}
