package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by Send when there is no open connection.
// The event is dropped, not queued.
var ErrNotConnected = errors.New("realtime channel not connected")

const DefaultPingInterval = 20 * time.Second

// State is the channel's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateClosed       State = "closed"
)

// TokenSource supplies the bearer token used at connect time.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Recorder receives channel metrics.
type Recorder interface {
	IncReconnect()
	IncEvent(eventType string)
	IncMalformed()
}

type nopRecorder struct{}

func (nopRecorder) IncReconnect()   {}
func (nopRecorder) IncEvent(string) {}
func (nopRecorder) IncMalformed()   {}

// Options configures a Channel.
type Options struct {
	URL    string
	Tokens TokenSource
	Dialer Dialer
	// OnEvent is called from the read loop, one event at a time, in
	// arrival order.
	OnEvent func(Event)
	OnState func(State)

	PingInterval   time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Logger  *zap.Logger
	Metrics Recorder
}

// Channel is one room's long-lived websocket. It reconnects with capped
// exponential backoff until Disconnect.
type Channel struct {
	opts    Options
	logger  *zap.Logger
	metrics Recorder
	backoff *Backoff
	wait    func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	state  State
	conn   Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// NewChannel creates a disconnected Channel.
func NewChannel(opts Options) *Channel {
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var rec Recorder = nopRecorder{}
	if opts.Metrics != nil {
		rec = opts.Metrics
	}
	return &Channel{
		opts:    opts,
		logger:  logger.With(zap.String("url", opts.URL)),
		metrics: rec,
		backoff: NewBackoff(opts.InitialBackoff, opts.MaxBackoff),
		wait:    sleep,
		state:   StateDisconnected,
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the connect/read/retry loop bound to ctx. It returns
// immediately; calling it on a running channel is a no-op.
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.run(ctx, done)
}

// Disconnect closes the connection and stops reconnecting. It waits for the
// loop to exit and is safe to call more than once. Connect stays a no-op
// until the old loop has exited.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		c.mu.Lock()
		if c.done == done {
			c.cancel, c.done = nil, nil
		}
		c.mu.Unlock()
	}
	c.setState(StateClosed)
}

// Send writes evt on the open connection.
func (c *Channel) Send(ctx context.Context, evt Event) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	data, err := Encode(evt)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("send %s: %w", evt.Type, err)
	}
	return nil
}

func (c *Channel) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		c.setState(StateConnecting)
		err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}

		c.setState(StateDisconnected)
		delay := c.backoff.Next()
		c.metrics.IncReconnect()
		c.logger.Warn("realtime connection lost, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", delay),
		)
		if err := c.wait(ctx, delay); err != nil {
			return
		}
	}
}

// session dials once and reads until the connection fails.
func (c *Channel) session(ctx context.Context) error {
	token, err := c.opts.Tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}
	conn, err := c.opts.Dialer.Dial(ctx, c.opts.URL, token)
	if err != nil {
		return err
	}
	c.backoff.Reset()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.setState(StateConnected)
	c.logger.Info("realtime connected")

	go c.keepAlive(connCtx, conn, cancel)

	for {
		typ, data, err := conn.Read(connCtx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if typ != websocket.MessageText {
			c.logger.Debug("ignoring binary frame", zap.Int("bytes", len(data)))
			continue
		}
		evt, err := Decode(data)
		if err != nil {
			c.metrics.IncMalformed()
			c.logger.Warn("dropping realtime frame", zap.Error(err))
			continue
		}
		c.metrics.IncEvent(string(evt.Type))
		if c.opts.OnEvent != nil {
			c.opts.OnEvent(evt)
		}
	}
}

// keepAlive pings on an interval and tears the connection down when a
// ping goes unanswered.
func (c *Channel) keepAlive(ctx context.Context, conn Conn, cancel context.CancelFunc) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, c.opts.PingInterval)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("realtime ping failed", zap.Error(err))
				}
				cancel()
				return
			}
		}
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
