package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"go.uber.org/zap"

	"github.com/crewdesk/relay/protocol"
)

var (
	// ErrNotConnected is returned by emits that cannot be queued while the
	// transport is down.
	ErrNotConnected = errors.New("client: not connected")

	// ErrRetriesExhausted terminates the reconnect loop after the configured
	// number of attempts.
	ErrRetriesExhausted = errors.New("client: retries exhausted")

	// ErrRejected terminates the reconnect loop when the server refuses the
	// handshake. Retrying with the same credential cannot succeed.
	ErrRejected = errors.New("client: handshake rejected")

	// ErrAlreadyStarted is returned by Connect while a previous session is
	// still running.
	ErrAlreadyStarted = errors.New("client: already started")
)

// Options configures a Client. Zero-value durations fall back to the
// defaults below.
type Options struct {
	URL   string
	Token string

	DialTimeout  time.Duration
	PingInterval time.Duration
	PongTimeout  time.Duration

	Backoff  Backoff
	QueueCap int

	Handlers      Handlers
	OnStateChange func(from, to State)
	OnTerminal    func(err error)

	Logger *zap.Logger
}

func (o *Options) fill() {
	if o.DialTimeout == 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.PingInterval == 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.PongTimeout == 0 {
		o.PongTimeout = o.PingInterval + 10*time.Second
	}
	if o.Backoff.Base == 0 {
		o.Backoff = DefaultBackoff()
	}
	if o.QueueCap == 0 {
		o.QueueCap = 100
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Client maintains one server connection, reconnecting with jittered
// exponential backoff when the transport drops. Messages sent while
// offline are queued and flushed in order before new traffic.
type Client struct {
	opts Options

	machine *machine
	log     *zap.Logger

	mu            sync.Mutex
	conn          *conn
	queue         *sendQueue
	manual        bool
	cancel        context.CancelFunc
	done          chan struct{}
	lastConnected time.Time

	// sleep is swapped in tests to skip real backoff waits.
	sleep func(ctx context.Context, d time.Duration) bool
}

// New builds a disconnected Client. Call Connect to start it.
func New(opts Options) *Client {
	opts.fill()
	c := &Client{
		opts:  opts,
		queue: newSendQueue(opts.QueueCap),
		log:   opts.Logger,
		sleep: sleepCtx,
	}
	c.machine = newMachine(func(from, to State) {
		c.log.Debug("connection state changed",
			zap.String("from", string(from)),
			zap.String("to", string(to)))
		if opts.OnStateChange != nil {
			opts.OnStateChange(from, to)
		}
	})
	return c
}

// State reports the current connection state.
func (c *Client) State() State { return c.machine.Current() }

// Queued reports how many messages are waiting for the next connection.
func (c *Client) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.len()
}

// LastConnected reports when the current or most recent connection was
// established. Zero before the first successful connect.
func (c *Client) LastConnected() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastConnected
}

// Connect starts the connection loop. It returns once the loop is
// running; connection progress is reported through OnStateChange.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return ErrAlreadyStarted
	}
	if err := c.machine.Transition(StateConnecting); err != nil {
		return err
	}
	c.manual = false
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, c.done)
	return nil
}

// Disconnect closes the connection and suppresses reconnection until the
// next Connect. It blocks until the loop has fully stopped.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manual = true
	conn := c.conn
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.close()
	}
	if done != nil {
		<-done
	}
}

// SendMessage delivers the message now, or queues it when offline. The
// queue is bounded; when full the oldest queued message is dropped and
// the number of dropped messages is returned.
func (c *Client) SendMessage(msg protocol.MessageSend) (dropped int, err error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		dropped = c.queue.push(msg)
		c.mu.Unlock()
		if dropped > 0 {
			c.log.Warn("offline queue full, dropped oldest", zap.Int("dropped", dropped))
		}
		return dropped, nil
	}
	c.mu.Unlock()
	return 0, conn.writeEvent(protocol.KindMessageSend, msg)
}

// JoinConversation subscribes to a conversation room.
func (c *Client) JoinConversation(conversationID string) error {
	return c.emit(protocol.KindConversationJoin, protocol.ConversationJoin{ConversationID: conversationID})
}

// LeaveConversation unsubscribes from a conversation room.
func (c *Client) LeaveConversation(conversationID string) error {
	return c.emit(protocol.KindConversationLeave, protocol.ConversationLeave{ConversationID: conversationID})
}

// OpenConversation asks for a direct conversation with peerID, creating
// one if none exists. The result arrives as a conversation:joined event.
func (c *Client) OpenConversation(peerID string) error {
	return c.emit(protocol.KindConversationOpen, protocol.ConversationOpen{PeerID: peerID})
}

// MarkRead reports that a message has been read.
func (c *Client) MarkRead(messageID, conversationID string) error {
	return c.emit(protocol.KindMessageRead, protocol.MessageRead{
		MessageID:      messageID,
		ConversationID: conversationID,
	})
}

// React adds or removes an emoji reaction on a message.
func (c *Client) React(messageID, emoji, action string) error {
	return c.emit(protocol.KindMessageReact, protocol.MessageReact{
		MessageID: messageID,
		Emoji:     emoji,
		Action:    action,
	})
}

// DeleteMessage soft-deletes one of the caller's own messages.
func (c *Client) DeleteMessage(messageID, conversationID string) error {
	return c.emit(protocol.KindMessageDelete, protocol.MessageDelete{
		MessageID:      messageID,
		ConversationID: conversationID,
	})
}

// StartTyping signals a typing indicator to the conversation.
func (c *Client) StartTyping(conversationID string) error {
	return c.emit(protocol.KindTypingStart, protocol.Typing{ConversationID: conversationID})
}

// StopTyping clears the typing indicator.
func (c *Client) StopTyping(conversationID string) error {
	return c.emit(protocol.KindTypingStop, protocol.Typing{ConversationID: conversationID})
}

// emit writes a frame on the live connection. Unlike SendMessage,
// control events are not queued while offline.
func (c *Client) emit(kind protocol.Kind, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.writeEvent(kind, payload)
}

// run owns the connect/read/reconnect cycle until manual disconnect,
// handshake rejection, or backoff exhaustion.
func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.done = nil
		c.cancel = nil
		c.mu.Unlock()
		close(done)
	}()

	attempt := 0
	for {
		conn, err := dialConn(c.opts.URL, c.opts.Token, c.opts.DialTimeout)
		if err != nil {
			if isRejected(err) {
				c.terminate(fmt.Errorf("%w: %v", ErrRejected, err))
				return
			}
			c.log.Warn("dial failed", zap.Error(err))
			if !c.waitRetry(ctx, &attempt, false) {
				return
			}
			continue
		}

		if err := c.activate(conn); err != nil {
			conn.close()
			if errors.Is(err, errStopped) {
				_ = c.machine.Transition(StateDisconnected)
				return
			}
			c.log.Warn("queue flush failed", zap.Error(err))
			if !c.waitRetry(ctx, &attempt, false) {
				return
			}
			continue
		}
		attempt = 0

		hbCtx, hbCancel := context.WithCancel(ctx)
		go c.heartbeat(hbCtx, conn)
		readErr := conn.readLoop(c.opts.Handlers, c.opts.PongTimeout)
		hbCancel()
		c.deactivate(conn)

		if c.isManual() {
			_ = c.machine.Transition(StateDisconnected)
			return
		}
		if isRejected(readErr) {
			c.terminate(fmt.Errorf("%w: %v", ErrRejected, readErr))
			return
		}
		serverClose := websocket.IsCloseError(readErr,
			websocket.CloseNormalClosure, websocket.CloseGoingAway)
		c.log.Info("connection lost", zap.Error(readErr), zap.Bool("serverClose", serverClose))
		if !c.waitRetry(ctx, &attempt, serverClose) {
			return
		}
	}
}

// errStopped aborts activation when Disconnect raced the dial.
var errStopped = errors.New("client: stopped")

// activate flushes the offline queue in order and only then exposes the
// connection, so nothing sent live can overtake a queued message.
func (c *Client) activate(conn *conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.manual {
		return errStopped
	}
	pending := c.queue.drain()
	for i, msg := range pending {
		if err := conn.writeEvent(protocol.KindMessageSend, msg); err != nil {
			// Keep the unflushed tail for the next connection.
			for _, m := range pending[i:] {
				c.queue.push(m)
			}
			return err
		}
	}
	c.conn = conn
	c.lastConnected = time.Now()
	_ = c.machine.Transition(StateConnected)
	return nil
}

func (c *Client) deactivate(conn *conn) {
	conn.close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}

// waitRetry sleeps out the backoff for this attempt. It returns false
// when the loop should stop instead of redialing.
func (c *Client) waitRetry(ctx context.Context, attempt *int, serverClose bool) bool {
	if c.machine.Current() != StateReconnecting {
		_ = c.machine.Transition(StateReconnecting)
	}
	if c.opts.Backoff.Exhausted(*attempt) {
		c.terminate(ErrRetriesExhausted)
		return false
	}
	var delay time.Duration
	if serverClose {
		// Clean server closes usually mean a restart, retry promptly.
		delay = c.opts.Backoff.ServerClose
	} else {
		delay = c.opts.Backoff.Delay(*attempt)
	}
	*attempt++
	c.log.Info("reconnecting",
		zap.Int("attempt", *attempt),
		zap.Duration("delay", delay))
	if !c.sleep(ctx, delay) {
		_ = c.machine.Transition(StateDisconnected)
		return false
	}
	_ = c.machine.Transition(StateConnecting)
	return true
}

func (c *Client) terminate(err error) {
	_ = c.machine.Transition(StateDisconnected)
	c.log.Warn("giving up", zap.Error(err))
	if c.opts.OnTerminal != nil {
		c.opts.OnTerminal(err)
	}
}

// heartbeat pings on an interval; pong handling lives in the read loop.
func (c *Client) heartbeat(ctx context.Context, conn *conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}

func (c *Client) isManual() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manual
}

// isRejected reports whether the server refused this credential.
func isRejected(err error) bool {
	return websocket.IsCloseError(err, websocket.ClosePolicyViolation)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
