package sync

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/raptchat/rapt/internal/auth"
	"github.com/raptchat/rapt/internal/bus"
	"github.com/raptchat/rapt/internal/raptapi"
	"github.com/raptchat/rapt/internal/realtime"
	"github.com/raptchat/rapt/internal/store"
)

const (
	selfID    = "u-me"
	selfPhone = "254700000000"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fakeAuth struct {
	cred *store.Credential
}

func loggedIn() *fakeAuth {
	return &fakeAuth{cred: &store.Credential{AccessToken: "tok", Phone: selfPhone, UserID: selfID, ExpiresAt: 1 << 62}}
}

func (f *fakeAuth) Require(context.Context) (*store.Credential, error) {
	if f.cred == nil {
		return nil, auth.ErrAuthenticationMissing
	}
	c := *f.cred
	return &c, nil
}

func (f *fakeAuth) Token(ctx context.Context) (string, error) {
	c, err := f.Require(ctx)
	if err != nil {
		return "", err
	}
	return c.AccessToken, nil
}

type fakeContactsAPI struct {
	remote   []raptapi.Contact
	err      error
	uploaded [][]raptapi.ContactUpload
}

func (f *fakeContactsAPI) Contacts(ctx context.Context, token, userID string) ([]raptapi.Contact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]raptapi.Contact(nil), f.remote...), nil
}

func (f *fakeContactsAPI) AddContacts(ctx context.Context, token, userID string, batch []raptapi.ContactUpload) ([]raptapi.Contact, error) {
	f.uploaded = append(f.uploaded, batch)
	out := make([]raptapi.Contact, 0, len(batch))
	for _, b := range batch {
		rc := raptapi.Contact{UserID: userID, Phone: b.Phone, Name: b.Name}
		f.remote = append(f.remote, rc)
		out = append(out, rc)
	}
	return out, nil
}

func (f *fakeContactsAPI) UpdateContact(ctx context.Context, token, userID string, upd raptapi.ContactUpdate) (*raptapi.Contact, error) {
	for i := range f.remote {
		if upd.ContactID != nil && f.remote[i].ContactID == *upd.ContactID {
			if upd.Name != nil {
				f.remote[i].Name = *upd.Name
			}
			rc := f.remote[i]
			return &rc, nil
		}
	}
	return nil, &raptapi.Error{Status: 404, Message: "Not Found"}
}

type fakeRoomsAPI struct {
	rooms   []raptapi.Room
	err     error
	created [][]string
	// createAs, when set, is the id CreateRoom answers with.
	createAs string
}

func (f *fakeRoomsAPI) Rooms(ctx context.Context, token string) ([]raptapi.Room, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]raptapi.Room(nil), f.rooms...), nil
}

func (f *fakeRoomsAPI) CreateRoom(ctx context.Context, token string, memberIDs []string) (*raptapi.Room, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, memberIDs)
	room := raptapi.Room{ID: f.createAs}
	for _, id := range memberIDs {
		room.Members = append(room.Members, raptapi.User{ID: id, Phone: "phone-" + id, Name: "name-" + id})
	}
	f.rooms = append(f.rooms, room)
	return &room, nil
}

// pipeConn is an in-memory realtime.Conn.
type pipeConn struct {
	in   chan []byte
	out  chan []byte
	once sync.Once
	done chan struct{}
}

func newPipeConn() *pipeConn {
	return &pipeConn{in: make(chan []byte, 16), out: make(chan []byte, 16), done: make(chan struct{})}
}

func (c *pipeConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case data := <-c.in:
		return websocket.MessageText, data, nil
	case <-c.done:
		return 0, nil, context.Canceled
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (c *pipeConn) Write(ctx context.Context, typ websocket.MessageType, p []byte) error {
	c.out <- p
	return nil
}

func (c *pipeConn) Ping(context.Context) error { return nil }

func (c *pipeConn) Close(websocket.StatusCode, string) error {
	c.once.Do(func() { close(c.done) })
	return nil
}

type pipeDialer struct {
	conn *pipeConn
	urls chan string
}

func (d *pipeDialer) Dial(ctx context.Context, url, token string) (realtime.Conn, error) {
	d.urls <- url
	return d.conn, nil
}

func waitKind(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s", kind)
			return bus.Event{}
		}
	}
}
