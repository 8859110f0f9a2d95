// Package gateway maintains the websocket connection to the chat gateway and
// provides the delivery primitives built on it: direct messages with delivery
// acknowledgement, channel broadcasts, fire-and-forget audit events, and the
// role management passthrough. The connection is redialed automatically when
// it drops, and all writes are serialized and rate-limited so a burst of
// notifications can't flood the chat platform.
package gateway // import "github.com/shellboxhq/shellbox/gateway"

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	logger "github.com/shellboxhq/shellbox/shellboxlogger"
	"github.com/shellboxhq/shellbox/types"
	"github.com/shellboxhq/shellbox/utils"
)

// Wire message types. The gateway answers a direct_message with an ack (or an
// error), answers role.* with a result carrying lines, and never answers
// broadcast or audit.
const (
	typeDirectMessage = "direct_message"
	typeBroadcast     = "broadcast"
	typeAudit         = "audit"
	typeAck           = "ack"
	typeResult        = "result"
	typeError         = "error"
)

// redialInterval is how long we wait between reconnection attempts after the
// gateway connection drops.
const redialInterval = 5 * time.Second

// auditTimeout bounds the fire-and-forget audit sends so they can't pile up
// forever behind a dead connection.
const auditTimeout = 10 * time.Second

// Writes are paced so a sweep over many expired consoles doesn't trip the
// chat platform's own rate limits.
const (
	writesPerSecond = 4
	writeBurst      = 8
)

// An envelope is the single JSON message shape exchanged with the gateway in
// both directions.
type envelope struct {
	ID     types.RequestID `json:"id"`
	Type   string          `json:"type"`
	Target string          `json:"target,omitempty"`
	Lines  []string        `json:"lines,omitempty"`
}

// A Sender delivers messages to chat users. The console service business
// logic depends on this interface so tests can substitute a fake, and so a
// deployment without a gateway configured can run with a no-op.
type Sender interface {
	// DirectMessage delivers lines to a single user and waits for the
	// gateway's acknowledgement. A missing or negative acknowledgement is
	// reported as a *DeliveryError.
	DirectMessage(ctx context.Context, target types.Owner, lines []string) error

	// Broadcast posts lines to the shared channel. No acknowledgement is
	// expected.
	Broadcast(ctx context.Context, lines []string) error

	// Audit sends lines to the configured audit log channels without waiting
	// for the result.
	Audit(lines []string)

	// Role performs a role management operation ("add", "remove" or "list")
	// against the chat platform and returns the gateway's response lines.
	Role(ctx context.Context, op string, user string, role string) ([]string, error)

	// Close tears down the connection.
	Close()
}

// Client is the production Sender, backed by a persistent websocket.
type Client struct {
	url        string
	ackTimeout time.Duration

	limiter   *rate.Limiter
	writeLock sync.Mutex

	connLock sync.Mutex
	conn     *websocket.Conn

	pendingLock sync.Mutex
	pending     map[string]chan envelope

	closeOnce sync.Once
	closed    chan struct{}
}

// New dials the gateway and starts the read loop. gatewayURL may use an
// http(s) or ws(s) scheme; ackTimeout bounds the wait for direct message
// acknowledgements.
func New(gatewayURL string, ackTimeout time.Duration) (*Client, error) {
	parsed, err := url.Parse(gatewayURL)
	if err != nil {
		return nil, utils.MakeError("couldn't parse gateway URL %s: %s", gatewayURL, err)
	}

	scheme := "ws"
	if parsed.Scheme == "https" || parsed.Scheme == "wss" {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: parsed.Host, Path: parsed.Path}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, utils.MakeError("couldn't connect to gateway at %s: %s", u.String(), err)
	}

	c := &Client{
		url:        u.String(),
		ackTimeout: ackTimeout,
		limiter:    rate.NewLimiter(rate.Limit(writesPerSecond), writeBurst),
		conn:       conn,
		pending:    make(map[string]chan envelope),
		closed:     make(chan struct{}),
	}
	go c.readLoop()

	logger.Infof("Connected to chat gateway at %s.", c.url)
	return c, nil
}

// Close shuts the client down. In-flight round trips fail with a closed-
// connection error.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.connLock.Lock()
		defer c.connLock.Unlock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
	})
}

// readLoop consumes inbound envelopes and routes acknowledgements and results
// to the round trips waiting for them. When the connection drops it redials
// until it succeeds or the client is closed.
func (c *Client) readLoop() {
	for {
		c.connLock.Lock()
		conn := c.conn
		c.connLock.Unlock()

		if conn == nil {
			if !c.redial() {
				return
			}
			continue
		}

		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			select {
			case <-c.closed:
				return
			default:
			}

			// This error fires when the connection is closed out from under
			// the read, so it carries no information worth logging.
			// See: https://github.com/gorilla/websocket/issues/439
			if !strings.Contains(err.Error(), "use of closed network connection") {
				logger.Warningf("Gateway connection lost: %s", err)
			}

			conn.Close()
			c.connLock.Lock()
			c.conn = nil
			c.connLock.Unlock()
			continue
		}

		c.dispatch(env)
	}
}

// redial reconnects after a dropped connection. It returns false once the
// client has been closed.
func (c *Client) redial() bool {
	for {
		select {
		case <-c.closed:
			return false
		case <-time.After(redialInterval):
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			logger.Warningf("Couldn't reconnect to gateway at %s: %s", c.url, err)
			continue
		}

		c.connLock.Lock()
		c.conn = conn
		c.connLock.Unlock()

		logger.Infof("Reconnected to chat gateway at %s.", c.url)
		return true
	}
}

// dispatch hands an inbound envelope to the round trip waiting on its ID.
func (c *Client) dispatch(env envelope) {
	c.pendingLock.Lock()
	ch, ok := c.pending[env.ID.String()]
	c.pendingLock.Unlock()

	if !ok {
		logger.Infof("Dropping unsolicited gateway message of type %s (id %s).", env.Type, env.ID)
		return
	}

	// The waiter may have timed out and gone away already.
	select {
	case ch <- env:
	default:
	}
}

// send writes one envelope, paced by the rate limiter and serialized with
// other writers.
func (c *Client) send(ctx context.Context, env envelope) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return utils.MakeError("gave up waiting to send %s to gateway: %s", env.Type, err)
	}

	c.connLock.Lock()
	conn := c.conn
	c.connLock.Unlock()
	if conn == nil {
		return utils.MakeError("not connected to the gateway")
	}

	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	if err := conn.WriteJSON(env); err != nil {
		return utils.MakeError("couldn't send %s to gateway: %s", env.Type, err)
	}
	return nil
}

// roundTrip sends an envelope and waits up to timeout for the reply carrying
// the same ID.
func (c *Client) roundTrip(ctx context.Context, env envelope, timeout time.Duration) (envelope, error) {
	reply := make(chan envelope, 1)
	key := env.ID.String()

	c.pendingLock.Lock()
	c.pending[key] = reply
	c.pendingLock.Unlock()
	defer func() {
		c.pendingLock.Lock()
		delete(c.pending, key)
		c.pendingLock.Unlock()
	}()

	if err := c.send(ctx, env); err != nil {
		return envelope{}, err
	}

	timer := time.NewTimer(timeout)
	defer utils.StopAndDrainTimer(timer)

	select {
	case r := <-reply:
		return r, nil
	case <-timer.C:
		return envelope{}, utils.MakeError("no reply from gateway within %s", timeout)
	case <-ctx.Done():
		return envelope{}, ctx.Err()
	case <-c.closed:
		return envelope{}, utils.MakeError("gateway connection closed")
	}
}

func newEnvelope(msgType string, target string, lines []string) envelope {
	return envelope{
		ID:     types.RequestID(uuid.New()),
		Type:   msgType,
		Target: target,
		Lines:  lines,
	}
}

// DirectMessage implements Sender.
func (c *Client) DirectMessage(ctx context.Context, target types.Owner, lines []string) error {
	env := newEnvelope(typeDirectMessage, string(target), lines)
	reply, err := c.roundTrip(ctx, env, c.ackTimeout)
	if err != nil {
		return &DeliveryError{Target: target, Reason: err}
	}
	if reply.Type != typeAck {
		return &DeliveryError{
			Target: target,
			Reason: utils.MakeError("gateway answered %s: %s", reply.Type, strings.Join(reply.Lines, "; ")),
		}
	}
	return nil
}

// Broadcast implements Sender.
func (c *Client) Broadcast(ctx context.Context, lines []string) error {
	return c.send(ctx, newEnvelope(typeBroadcast, "", lines))
}

// Audit implements Sender. Audit events must never slow down or fail the
// operation that produced them, so delivery happens in the background and
// failures are only logged.
func (c *Client) Audit(lines []string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := c.send(ctx, newEnvelope(typeAudit, "", lines)); err != nil {
			logger.Warningf("Couldn't deliver audit event to gateway: %s", err)
		}
	}()
}

// Role implements Sender. The heavy lifting (creating missing roles on add,
// deleting unused ones on remove) happens on the gateway side; we just relay
// the operation and return the response lines.
func (c *Client) Role(ctx context.Context, op string, user string, role string) ([]string, error) {
	var lines []string
	if role != "" {
		lines = []string{role}
	}

	env := newEnvelope("role."+op, user, lines)
	reply, err := c.roundTrip(ctx, env, c.ackTimeout)
	if err != nil {
		return nil, err
	}
	switch reply.Type {
	case typeResult, typeAck:
		return reply.Lines, nil
	default:
		return nil, utils.MakeError("role %s failed: %s", op, strings.Join(reply.Lines, "; "))
	}
}

// A DeliveryError means a direct message could not be confirmed delivered.
// Callers fall back to a broadcast instead of failing their operation.
type DeliveryError struct {
	Target types.Owner
	Reason error
}

func (e *DeliveryError) Error() string {
	return utils.Sprintf("couldn't deliver direct message to %s: %s", e.Target, e.Reason)
}

func (e *DeliveryError) Unwrap() error {
	return e.Reason
}

// NotifyOwner delivers lines to an owner, preferring a direct message and
// falling back to a channel broadcast that mentions them when the direct
// message can't be confirmed. Any remaining failure is logged, never
// returned: notification problems must not fail the operation they report.
func NotifyOwner(ctx context.Context, sender Sender, target types.Owner, lines []string) {
	err := sender.DirectMessage(ctx, target, lines)
	if err == nil {
		return
	}

	var deliveryErr *DeliveryError
	if !errors.As(err, &deliveryErr) {
		logger.Errorf("Unexpected error notifying %s: %s", target, err)
		return
	}
	logger.Warningf("Falling back to broadcast for %s: %s", target, err)

	mention := utils.Sprintf("@%s:", target)
	if err := sender.Broadcast(ctx, append([]string{mention}, lines...)); err != nil {
		logger.Errorf("Couldn't broadcast notification for %s: %s", target, err)
	}
}

// NopSender is a Sender that drops everything. It stands in for the real
// client when no gateway URL is configured.
type NopSender struct{}

// DirectMessage implements Sender.
func (NopSender) DirectMessage(ctx context.Context, target types.Owner, lines []string) error {
	return nil
}

// Broadcast implements Sender.
func (NopSender) Broadcast(ctx context.Context, lines []string) error { return nil }

// Audit implements Sender.
func (NopSender) Audit(lines []string) {}

// Role implements Sender.
func (NopSender) Role(ctx context.Context, op string, user string, role string) ([]string, error) {
	return nil, utils.MakeError("role management requires a gateway connection")
}

// Close implements Sender.
func (NopSender) Close() {}
