package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

func wsServer(t *testing.T, handle func(ctx context.Context, conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		handle(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/chatsocket/r1"
}

func waitState(t *testing.T, states <-chan State, want State) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-states:
			if s == want {
				return
			}
		case <-timeout:
			t.Fatalf("timeout waiting for state %s", want)
		}
	}
}

func TestChannelDeliversEventsInOrderAndDropsMalformed(t *testing.T) {
	url := wsServer(t, func(ctx context.Context, conn *websocket.Conn) {
		frames := []string{
			`{"id":"a","type":"typing","user":{"id":"u1"}}`,
			`not json`,
			`{"id":"b","type":"wave"}`,
			`{"id":"c","type":"chat","obj":{"id":"srv-1","message":"hi"}}`,
			`{"id":"d","type":"read","obj":{"id":"srv-1"}}`,
		}
		for _, f := range frames {
			if err := conn.Write(ctx, websocket.MessageText, []byte(f)); err != nil {
				return
			}
		}
		_, _, _ = conn.Read(ctx)
	})

	events := make(chan Event, 8)
	ch := NewChannel(Options{
		URL:     url,
		Tokens:  staticToken("tok"),
		OnEvent: func(e Event) { events <- e },
	})
	ch.Connect(context.Background())
	defer ch.Disconnect()

	var got []string
	for len(got) < 3 {
		select {
		case e := <-events:
			got = append(got, e.ID)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout, got %v", got)
		}
	}
	if strings.Join(got, ",") != "a,c,d" {
		t.Errorf("events = %v, want a,c,d", got)
	}
}

func TestChannelSend(t *testing.T) {
	received := make(chan string, 1)
	url := wsServer(t, func(ctx context.Context, conn *websocket.Conn) {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		received <- string(data)
		_, _, _ = conn.Read(ctx)
	})

	states := make(chan State, 8)
	ch := NewChannel(Options{
		URL:     url,
		Tokens:  staticToken("tok"),
		OnState: func(s State) { states <- s },
	})
	ch.Connect(context.Background())
	defer ch.Disconnect()
	waitState(t, states, StateConnected)

	if err := ch.Send(context.Background(), Event{ID: "corr-1", Type: Chat, Obj: &ChatObj{Message: "hello"}}); err != nil {
		t.Fatal(err)
	}
	select {
	case data := <-received:
		evt, err := Decode([]byte(data))
		if err != nil {
			t.Fatal(err)
		}
		if evt.ID != "corr-1" || evt.Obj == nil || evt.Obj.Message != "hello" {
			t.Errorf("server got %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive frame")
	}
}

func TestSendWhileDisconnectedIsDropped(t *testing.T) {
	ch := NewChannel(Options{URL: "ws://unused", Tokens: staticToken("tok")})
	err := ch.Send(context.Background(), Event{Type: Typing})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
}

type failingConn struct{}

func (failingConn) Read(context.Context) (websocket.MessageType, []byte, error) {
	return 0, nil, errors.New("connection reset")
}
func (failingConn) Write(context.Context, websocket.MessageType, []byte) error { return nil }
func (failingConn) Ping(context.Context) error                                 { return nil }
func (failingConn) Close(websocket.StatusCode, string) error                   { return nil }

type scriptedDialer struct {
	mu       sync.Mutex
	failures int
	calls    int
	conn     func() Conn
}

func (d *scriptedDialer) Dial(ctx context.Context, url, token string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.calls <= d.failures {
		return nil, errors.New("connection refused")
	}
	return d.conn(), nil
}

func TestReconnectBackoffSequenceAndReset(t *testing.T) {
	dialer := &scriptedDialer{failures: 6, conn: func() Conn { return failingConn{} }}
	ch := NewChannel(Options{URL: "ws://test", Tokens: staticToken("tok"), Dialer: dialer})

	delays := make(chan time.Duration, 1)
	ch.wait = func(ctx context.Context, d time.Duration) error {
		select {
		case delays <- d:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ch.Connect(context.Background())
	defer ch.Disconnect()

	want := []time.Duration{1, 2, 4, 8, 16, 16, 1}
	for i, w := range want {
		select {
		case d := <-delays:
			if d != w*time.Second {
				t.Errorf("retry %d delay = %v, want %v", i, d, w*time.Second)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for retry %d", i)
		}
	}
}

type deadConn struct{ failingConn }

func (deadConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	<-ctx.Done()
	return 0, nil, ctx.Err()
}
func (deadConn) Ping(context.Context) error { return errors.New("no pong") }

func TestUnansweredPingReconnects(t *testing.T) {
	dialer := &scriptedDialer{conn: func() Conn { return deadConn{} }}
	ch := NewChannel(Options{
		URL:          "ws://test",
		Tokens:       staticToken("tok"),
		Dialer:       dialer,
		PingInterval: 10 * time.Millisecond,
	})
	retried := make(chan struct{}, 1)
	ch.wait = func(ctx context.Context, d time.Duration) error {
		select {
		case retried <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}
	ch.Connect(context.Background())
	defer ch.Disconnect()

	select {
	case <-retried:
	case <-time.After(2 * time.Second):
		t.Fatal("failed ping did not tear the connection down")
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	dialer := &scriptedDialer{conn: func() Conn { return deadConn{} }}
	states := make(chan State, 16)
	ch := NewChannel(Options{
		URL:          "ws://test",
		Tokens:       staticToken("tok"),
		Dialer:       dialer,
		PingInterval: time.Hour,
		OnState:      func(s State) { states <- s },
	})
	ch.Connect(context.Background())
	waitState(t, states, StateConnected)

	ch.Disconnect()
	ch.Disconnect()
	if got := ch.State(); got != StateClosed {
		t.Errorf("State() = %s, want %s", got, StateClosed)
	}
	if err := ch.Send(context.Background(), Event{Type: Typing}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after Disconnect = %v, want ErrNotConnected", err)
	}
}

// stallingDialer blocks its first dial past cancellation until released.
type stallingDialer struct {
	mu        sync.Mutex
	calls     int
	cancelled chan struct{}
	release   chan struct{}
}

func (d *stallingDialer) Dial(ctx context.Context, url, token string) (Conn, error) {
	d.mu.Lock()
	d.calls++
	first := d.calls == 1
	d.mu.Unlock()
	if first {
		<-ctx.Done()
		close(d.cancelled)
		<-d.release
	}
	return nil, errors.New("connection refused")
}

func (d *stallingDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func TestConnectWhileDisconnectingStartsNoSecondLoop(t *testing.T) {
	dialer := &stallingDialer{cancelled: make(chan struct{}), release: make(chan struct{})}
	ch := NewChannel(Options{URL: "ws://test", Tokens: staticToken("tok"), Dialer: dialer})
	ch.wait = func(ctx context.Context, d time.Duration) error {
		<-ctx.Done()
		return ctx.Err()
	}
	ch.Connect(context.Background())

	stopped := make(chan struct{})
	go func() {
		ch.Disconnect()
		close(stopped)
	}()

	select {
	case <-dialer.cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect did not cancel the loop")
	}
	ch.Connect(context.Background())
	close(dialer.release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect did not return")
	}
	time.Sleep(20 * time.Millisecond)
	if n := dialer.count(); n != 1 {
		t.Errorf("dials = %d, want 1: Connect during Disconnect started another loop", n)
	}
	if got := ch.State(); got != StateClosed {
		t.Errorf("State() = %s, want %s", got, StateClosed)
	}

	ch.Connect(context.Background())
	defer ch.Disconnect()
	deadline := time.After(2 * time.Second)
	for dialer.count() < 2 {
		select {
		case <-deadline:
			t.Fatal("Connect after Disconnect did not start a new loop")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
