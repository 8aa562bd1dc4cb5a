package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestSchemaVersion(t *testing.T) {
	fresh, err := Open(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer fresh.Close()
	if v, dirty, err := fresh.SchemaVersion(); err != nil || v != 0 || dirty {
		t.Errorf("fresh SchemaVersion() = %d, %v, %v; want 0, false, nil", v, dirty, err)
	}

	db := testDB(t)
	v, dirty, err := db.SchemaVersion()
	if err != nil {
		t.Fatal(err)
	}
	if v != 1 || dirty {
		t.Errorf("SchemaVersion() = %d, %v; want 1, false", v, dirty)
	}
}

func TestMigrateRefusesDirtySchema(t *testing.T) {
	db := testDB(t)
	if _, err := db.Exec(`UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); !errors.Is(err, ErrDirtySchema) {
		t.Errorf("Migrate() error = %v, want ErrDirtySchema", err)
	}
}

func TestCredentialRoundTrip(t *testing.T) {
	db := testDB(t)

	c, err := db.GetCredential()
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Fatalf("expected no credential on fresh db, got %+v", c)
	}

	want := &Credential{AccessToken: "tok", Phone: "254700000000", UserID: "u1", ExpiresAt: 42}
	if err := db.SaveCredential(want); err != nil {
		t.Fatal(err)
	}
	want.AccessToken = "tok2"
	if err := db.SaveCredential(want); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetCredential()
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || *got != *want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	if err := db.DeleteCredential(); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetCredential()
	if got != nil {
		t.Errorf("credential still present after delete: %+v", got)
	}
}

func TestCredentialWithoutTokenIsAbsent(t *testing.T) {
	db := testDB(t)

	if err := db.SaveCredential(&Credential{Phone: "1", UserID: "u", ExpiresAt: 99}); err != nil {
		t.Fatal(err)
	}
	c, err := db.GetCredential()
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Errorf("credential without token should be absent, got %+v", c)
	}
}

func TestCredentialValid(t *testing.T) {
	now := time.UnixMilli(1000)
	if !(&Credential{ExpiresAt: 1001}).Valid(now) {
		t.Error("credential expiring after now should be valid")
	}
	if (&Credential{ExpiresAt: 1000}).Valid(now) {
		t.Error("credential expiring at now should not be valid")
	}
}

func TestContactInsertUpdateSearch(t *testing.T) {
	db := testDB(t)

	alice := &Contact{Name: "Alice", Phone: "254700000001", ContactID: "u-alice", UserID: "me"}
	if err := db.InsertContact(alice); err != nil {
		t.Fatal(err)
	}
	if alice.ID == 0 {
		t.Fatal("InsertContact did not set ID")
	}
	if err := db.InsertContact(&Contact{Name: "Bob", Phone: "254700000002"}); err != nil {
		t.Fatal(err)
	}

	alice.Name = "Alice W"
	alice.IsActive = true
	if err := db.UpdateContact(alice); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetContactByPhone("254700000001")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Name != "Alice W" || !got.IsActive {
		t.Errorf("got %+v, want updated Alice", got)
	}

	tests := []struct {
		query string
		want  int
	}{
		{"alice", 1},
		{"2547000000", 2},
		{"0002", 1},
		{"carol", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res, err := db.SearchContacts(tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if len(res) != tt.want {
				t.Errorf("SearchContacts(%q) = %d results, want %d", tt.query, len(res), tt.want)
			}
		})
	}

	list, err := db.ListContacts()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Phone != "254700000001" {
		t.Errorf("ListContacts order = %+v", list)
	}
}

func TestMarkContactOnline(t *testing.T) {
	db := testDB(t)

	if err := db.InsertContact(&Contact{Name: "A", Phone: "1", ContactID: "u1"}); err != nil {
		t.Fatal(err)
	}
	ok, err := db.MarkContactOnline("u1", 5000)
	if err != nil || !ok {
		t.Fatalf("MarkContactOnline = %v, %v", ok, err)
	}
	c, _ := db.GetContactByContactID("u1")
	if c == nil || !c.IsOnline || c.LastSeen != 5000 {
		t.Errorf("got %+v, want online with last_seen=5000", c)
	}

	ok, err = db.MarkContactOnline("missing", 1)
	if err != nil || ok {
		t.Errorf("MarkContactOnline(missing) = %v, %v; want false, nil", ok, err)
	}
}

func TestRoomMembershipIdempotent(t *testing.T) {
	db := testDB(t)

	for i := 0; i < 2; i++ {
		if err := db.UpsertRoomWithMembers("r1", []string{"u1", "u2"}); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := db.RoomMemberIDs("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Errorf("got %d members, want 2", len(ids))
	}

	added, err := db.AddMember("r1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Error("AddMember of existing link should report false")
	}
}

func TestRoomViewsExcludeSelf(t *testing.T) {
	db := testDB(t)

	if err := db.InsertContact(&Contact{Name: "Me", Phone: "100", ContactID: "me"}); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertContact(&Contact{Name: "Friend", Phone: "200", ContactID: "friend"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertRoomWithMembers("r1", []string{"me", "friend"}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertMessage(&Message{MsgID: "m2", RoomID: "r1", Body: "second", Timestamp: 20}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertMessage(&Message{MsgID: "m1", RoomID: "r1", Body: "first", Timestamp: 10}); err != nil {
		t.Fatal(err)
	}

	views, err := db.RoomViews("100")
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 {
		t.Fatalf("got %d views, want 1", len(views))
	}
	v := views[0]
	if len(v.Members) != 1 || v.Members[0].Name != "Friend" {
		t.Errorf("members = %+v, want only Friend", v.Members)
	}
	if len(v.Messages) != 2 || v.Messages[0].MsgID != "m1" {
		t.Errorf("messages not ordered by timestamp: %+v", v.Messages)
	}
}

func TestInsertMessageNeverDuplicates(t *testing.T) {
	db := testDB(t)

	m := &Message{MsgID: "srv-1", RoomID: "r1", Body: "hello", Timestamp: 1}
	inserted, err := db.InsertMessage(m)
	if err != nil || !inserted {
		t.Fatalf("first insert = %v, %v", inserted, err)
	}
	inserted, err = db.InsertMessage(&Message{MsgID: "srv-1", RoomID: "r1", Body: "again", Timestamp: 2})
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("second insert with same server id should be skipped")
	}
	msgs, _ := db.ListRoomMessages("r1")
	if len(msgs) != 1 || msgs[0].Body != "hello" {
		t.Errorf("got %+v, want single original message", msgs)
	}
}

func TestConfirmMessageReplacesPlaceholder(t *testing.T) {
	db := testDB(t)

	if _, err := db.InsertMessage(&Message{MsgID: "temp_1", SocketMessageID: "corr-1", RoomID: "r1", Body: "hi", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	if err := db.ConfirmMessage("corr-1", "srv-9"); err != nil {
		t.Fatal(err)
	}

	msgs, _ := db.ListRoomMessages("r1")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].MsgID != "srv-9" || msgs[0].SocketMessageID != "corr-1" {
		t.Errorf("got %+v, want msg_id=srv-9 socket=corr-1", msgs[0])
	}
}

func TestConfirmMessageWhenServerCopyExists(t *testing.T) {
	db := testDB(t)

	if _, err := db.InsertMessage(&Message{MsgID: "temp_1", SocketMessageID: "corr-1", RoomID: "r1", Body: "hi", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	// A sync pass pulled the server copy before the echo arrived.
	if _, err := db.InsertMessage(&Message{MsgID: "srv-9", RoomID: "r1", Body: "hi", Timestamp: 2}); err != nil {
		t.Fatal(err)
	}
	if err := db.ConfirmMessage("corr-1", "srv-9"); err != nil {
		t.Fatal(err)
	}

	msgs, _ := db.ListRoomMessages("r1")
	if len(msgs) != 1 || msgs[0].MsgID != "srv-9" {
		t.Errorf("got %+v, want only srv-9", msgs)
	}
}

func TestMarkMessageRead(t *testing.T) {
	db := testDB(t)

	if _, err := db.InsertMessage(&Message{MsgID: "msg-42", RoomID: "r1"}); err != nil {
		t.Fatal(err)
	}
	ok, err := db.MarkMessageRead("msg-42")
	if err != nil || !ok {
		t.Fatalf("MarkMessageRead = %v, %v", ok, err)
	}
	m, _ := db.GetMessage("msg-42")
	if m == nil || !m.IsRead {
		t.Errorf("got %+v, want is_read", m)
	}
}

func TestCheckpoint(t *testing.T) {
	db := testDB(t)

	v, err := db.Checkpoint(CheckpointChatsSync)
	if err != nil || v != "" {
		t.Fatalf("unset checkpoint = %q, %v", v, err)
	}
	if err := db.SetCheckpoint(CheckpointChatsSync, "123"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetCheckpoint(CheckpointChatsSync, "456"); err != nil {
		t.Fatal(err)
	}
	v, _ = db.Checkpoint(CheckpointChatsSync)
	if v != "456" {
		t.Errorf("checkpoint = %q, want 456", v)
	}
}

func TestRoomViewMissing(t *testing.T) {
	db := testDB(t)

	v, err := db.RoomView("nope", "")
	if err != nil || v != nil {
		t.Errorf("RoomView(missing) = %+v, %v; want nil, nil", v, err)
	}
}

func TestStatsCountsPending(t *testing.T) {
	db := testDB(t)
	if err := db.InsertRoom("r1"); err != nil {
		t.Fatal(err)
	}
	for _, m := range []*Message{
		{MsgID: "srv-1", RoomID: "r1", Body: "hi", Timestamp: 1},
		{MsgID: PlaceholderPrefix + "a", SocketMessageID: "s-a", RoomID: "r1", Body: "yo", Timestamp: 2},
	} {
		if _, err := db.InsertMessage(m); err != nil {
			t.Fatal(err)
		}
	}

	st, err := db.Stats()
	if err != nil {
		t.Fatal(err)
	}
	want := Stats{Contacts: 0, Rooms: 1, Messages: 2, Pending: 1}
	if st != want {
		t.Errorf("Stats() = %+v, want %+v", st, want)
	}

	if err := db.ConfirmMessage("s-a", "srv-2"); err != nil {
		t.Fatal(err)
	}
	if st, _ := db.Stats(); st.Pending != 0 {
		t.Errorf("Pending after confirm = %d, want 0", st.Pending)
	}
}
