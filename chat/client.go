package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/streamdash/backend/telemetry"
)

const (
	// DefaultJoinTimeout bounds how long Connect waits for the channel JOIN.
	DefaultJoinTimeout = 15 * time.Second
	defaultBufferSize  = 256
)

var (
	// ErrInvalidChannel is returned by Connect for an empty channel name.
	ErrInvalidChannel = errors.New("channel name is empty")
	// ErrJoinTimeout is wrapped when the server never confirms the JOIN.
	ErrJoinTimeout = errors.New("timed out waiting for channel join")
	// ErrConnectionClosed is wrapped when the connection is torn down while
	// Connect is still waiting, or the transport exits before joining.
	ErrConnectionClosed = errors.New("connection closed")
)

// ConnectionError reports a failed Connect. The client is Disconnected afterwards.
type ConnectionError struct {
	Channel string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("chat connect %s: %v", e.Channel, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// State is the connection state of a Client.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Transport is the subset of *twitch.Client the chat client drives.
type Transport interface {
	OnConnect(func())
	OnPrivateMessage(func(twitch.PrivateMessage))
	OnSelfJoinMessage(func(twitch.UserJoinMessage))
	OnSelfPartMessage(func(twitch.UserPartMessage))
	OnReconnectMessage(func(twitch.ReconnectMessage))
	Join(channels ...string)
	Connect() error
	Disconnect() error
}

// NewTwitchTransport returns a go-twitch-irc client. Without credentials it
// connects anonymously (read-only).
func NewTwitchTransport(username, oauthToken string) Transport {
	if username == "" || oauthToken == "" {
		return twitch.NewAnonymousClient()
	}
	return twitch.NewClient(username, "oauth:"+strings.TrimPrefix(oauthToken, "oauth:"))
}

// Options configures a Client.
type Options struct {
	Username    string // bot login; empty for anonymous
	OAuthToken  string
	JoinTimeout time.Duration
	BufferSize  int // inbound queue between transport and dispatch
	// NewTransport defaults to NewTwitchTransport.
	NewTransport func(username, oauthToken string) Transport
}

// Subscription is a registered callback. Unsubscribe is idempotent.
type Subscription struct {
	id     uint64
	fn     func(ChatMessage)
	active atomic.Bool
	done   chan struct{}
	client *Client
}

func (s *Subscription) deactivate() bool {
	if !s.active.Swap(false) {
		return false
	}
	close(s.done)
	return true
}

// Unsubscribe removes the callback. Once it returns no new invocation starts.
func (s *Subscription) Unsubscribe() {
	if s == nil || !s.deactivate() {
		return
	}
	s.client.remove(s.id)
}

// Done is closed when the subscription ends, either through Unsubscribe or
// because the client disconnected or switched channels.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Client maintains one chat connection and fans parsed messages out to
// subscribers. A new Connect tears down the previous connection and its
// subscribers first.
type Client struct {
	username     string
	token        string
	joinTimeout  time.Duration
	bufferSize   int
	newTransport func(username, oauthToken string) Transport
	now          func() time.Time

	mu      sync.Mutex
	state   State
	channel string
	conn    *connection
	subs    []*Subscription
	nextID  uint64
}

// NewClient returns a disconnected client.
func NewClient(opts Options) *Client {
	c := &Client{
		username:     strings.ToLower(opts.Username),
		token:        opts.OAuthToken,
		joinTimeout:  opts.JoinTimeout,
		bufferSize:   opts.BufferSize,
		newTransport: opts.NewTransport,
		now:          time.Now,
	}
	if c.joinTimeout <= 0 {
		c.joinTimeout = DefaultJoinTimeout
	}
	if c.bufferSize <= 0 {
		c.bufferSize = defaultBufferSize
	}
	if c.newTransport == nil {
		c.newTransport = NewTwitchTransport
	}
	return c
}

type connection struct {
	tr      Transport
	channel string
	msgs    chan ChatMessage
	done    chan struct{}
	joined  chan struct{}
	exited  chan error

	joinOnce  sync.Once
	closeOnce sync.Once
}

func (conn *connection) close() {
	conn.closeOnce.Do(func() {
		close(conn.done)
		if err := conn.tr.Disconnect(); err != nil && !errors.Is(err, twitch.ErrConnectionIsNotOpen) {
			slog.Debug("chat transport disconnect", slog.Any("err", err), slog.String("channel", conn.channel))
		}
	})
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Channel returns the normalized channel of the current connection, or "".
func (c *Client) Channel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// SubscriberCount returns the number of live subscriptions.
func (c *Client) SubscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Client) setStateLocked(s State) {
	c.state = s
	telemetry.SetGauge(telemetry.ChatStateGauge, float64(s))
}

// Connect joins channel and returns once the server confirms the JOIN.
// Any previous connection is torn down first, including its subscribers.
// subscribers are registered on the new connection in the same step, so a
// concurrent Connect can never leave them attached twice. They are removed
// again if the join fails.
func (c *Client) Connect(ctx context.Context, channel string, subscribers ...func(ChatMessage)) error {
	name := NormalizeChannel(channel)
	if name == "#" {
		return &ConnectionError{Channel: channel, Err: ErrInvalidChannel}
	}

	conn := &connection{
		tr:      c.newTransport(c.username, c.token),
		channel: name,
		msgs:    make(chan ChatMessage, c.bufferSize),
		done:    make(chan struct{}),
		joined:  make(chan struct{}),
		exited:  make(chan error, 1),
	}
	c.mu.Lock()
	prev, stale := c.conn, c.subs
	c.conn = conn
	c.channel = name
	c.subs = nil
	initial := make([]*Subscription, 0, len(subscribers))
	for _, fn := range subscribers {
		initial = append(initial, c.subscribeLocked(fn))
	}
	telemetry.SetGauge(telemetry.ChatSubscribersGauge, float64(len(c.subs)))
	c.setStateLocked(Connecting)
	c.mu.Unlock()

	for _, s := range stale {
		s.deactivate()
	}
	if prev != nil {
		prev.close()
		slog.Info("chat disconnected", slog.String("channel", prev.channel))
	}

	c.wire(conn)
	conn.tr.Join(strings.TrimPrefix(name, "#"))
	go func() { conn.exited <- conn.tr.Connect() }()
	go c.dispatch(conn)

	timer := time.NewTimer(c.joinTimeout)
	defer timer.Stop()
	var err error
	select {
	case <-conn.joined:
		c.mu.Lock()
		current := c.conn == conn
		if current {
			c.setStateLocked(Connected)
		}
		c.mu.Unlock()
		if current {
			telemetry.RecordChatConnect("success")
			slog.Info("chat joined", slog.String("channel", name))
			go c.watch(conn)
			return nil
		}
		err = ErrConnectionClosed
	case terr := <-conn.exited:
		err = ErrConnectionClosed
		if terr != nil && !errors.Is(terr, twitch.ErrClientDisconnected) {
			err = terr
		}
	case <-conn.done:
		err = ErrConnectionClosed
	case <-ctx.Done():
		err = ctx.Err()
	case <-timer.C:
		err = ErrJoinTimeout
	}
	c.abort(conn)
	for _, sub := range initial {
		sub.Unsubscribe()
	}
	telemetry.RecordChatConnect("failure")
	slog.Warn("chat connect failed", slog.String("channel", name), slog.Any("err", err))
	return &ConnectionError{Channel: name, Err: err}
}

// watch notices the transport giving up after a successful join.
func (c *Client) watch(conn *connection) {
	select {
	case <-conn.done:
	case err := <-conn.exited:
		select {
		case <-conn.done:
			return
		default:
		}
		slog.Warn("chat transport stopped", slog.String("channel", conn.channel), slog.Any("err", err))
		c.abort(conn)
	}
}

// abort drops conn if it is still current, leaving subscribers in place.
func (c *Client) abort(conn *connection) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.channel = ""
		c.setStateLocked(Disconnected)
	}
	c.mu.Unlock()
	conn.close()
}

// Disconnect closes the connection and clears all subscribers. Calling it
// when already disconnected is a no-op.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	subs := c.subs
	c.conn = nil
	c.channel = ""
	c.subs = nil
	c.setStateLocked(Disconnected)
	c.mu.Unlock()

	for _, s := range subs {
		s.deactivate()
	}
	telemetry.SetGauge(telemetry.ChatSubscribersGauge, 0)
	if conn != nil {
		conn.close()
		slog.Info("chat disconnected", slog.String("channel", conn.channel))
	}
}

// Subscribe registers fn to receive every subsequent message of the current
// connection. Each call receives its own copy of the message.
func (c *Client) Subscribe(fn func(ChatMessage)) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribeLocked(fn)
}

func (c *Client) subscribeLocked(fn func(ChatMessage)) *Subscription {
	c.nextID++
	s := &Subscription{id: c.nextID, fn: fn, done: make(chan struct{}), client: c}
	s.active.Store(true)
	c.subs = append(c.subs, s)
	telemetry.SetGauge(telemetry.ChatSubscribersGauge, float64(len(c.subs)))
	return s
}

func (c *Client) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s.id == id {
			c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
			break
		}
	}
	telemetry.SetGauge(telemetry.ChatSubscribersGauge, float64(len(c.subs)))
}

func (c *Client) wire(conn *connection) {
	tr := conn.tr
	tr.OnConnect(func() {
		select {
		case <-conn.done:
			// Closed before the welcome arrived, when Disconnect was still a
			// no-op. Hang up now that the connection is active.
			slog.Debug("chat transport connected after close", slog.String("channel", conn.channel))
			_ = tr.Disconnect()
			return
		default:
		}
		slog.Info("chat transport connected", slog.String("channel", conn.channel))
	})
	tr.OnSelfJoinMessage(func(m twitch.UserJoinMessage) {
		if NormalizeChannel(m.Channel) != conn.channel {
			return
		}
		conn.joinOnce.Do(func() { close(conn.joined) })
		slog.Debug("chat join", slog.String("channel", conn.channel), slog.String("user", m.User))
	})
	tr.OnSelfPartMessage(func(m twitch.UserPartMessage) {
		slog.Info("chat part", slog.String("channel", NormalizeChannel(m.Channel)))
	})
	tr.OnReconnectMessage(func(twitch.ReconnectMessage) {
		slog.Info("chat server requested reconnect", slog.String("channel", conn.channel))
	})
	tr.OnPrivateMessage(func(m twitch.PrivateMessage) {
		if c.isSelf(m) {
			telemetry.IncCounter(telemetry.ChatMessagesSelf)
			return
		}
		msg := parseMessage(m, c.now())
		select {
		case conn.msgs <- msg:
		case <-conn.done:
		}
	})
}

func (c *Client) isSelf(m twitch.PrivateMessage) bool {
	if c.username == "" {
		return false
	}
	login := m.User.Name
	if login == "" {
		login = m.Tags["login"]
	}
	return strings.EqualFold(login, c.username)
}

// dispatch delivers queued messages in arrival order until conn is closed.
func (c *Client) dispatch(conn *connection) {
	for {
		select {
		case <-conn.done:
			return
		case msg := <-conn.msgs:
			c.fanOut(conn, msg)
		}
	}
}

func (c *Client) fanOut(conn *connection, msg ChatMessage) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	subs := append([]*Subscription(nil), c.subs...)
	c.mu.Unlock()

	telemetry.IncCounter(telemetry.ChatMessagesReceived)
	for _, s := range subs {
		if !s.active.Load() {
			continue
		}
		deliver(s, msg.Clone())
	}
}

func deliver(s *Subscription, msg ChatMessage) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.IncCounter(telemetry.ChatSubscriberPanics)
			slog.Error("chat subscriber panicked", slog.Any("panic", r), slog.Uint64("subscription", s.id), slog.String("msg_id", msg.ID))
		}
	}()
	s.fn(msg)
}
