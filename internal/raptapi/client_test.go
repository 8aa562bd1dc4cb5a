package raptapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "cid", "secret")
}

func TestVerifySendsFormWithClientCredentials(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/verify" {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		want := map[string]string{
			"phone_verification_code": "1234",
			"phone":                   "254700000000",
			"client_id":               "cid",
			"client_secret":           "secret",
		}
		for k, v := range want {
			if got := r.PostForm.Get(k); got != v {
				t.Errorf("form %s = %q, want %q", k, got, v)
			}
		}
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})

	tok, err := c.Verify(context.Background(), "1234", "254700000000")
	if err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "tok" || tok.ExpiresIn != 3600 {
		t.Errorf("got %+v", tok)
	}
}

func TestBearerHeader(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		_, _ = w.Write([]byte(`{"id":"u1","phone":"254700000000","name":"Me","extra":true}`))
	})

	u, err := c.Me(context.Background(), "tok")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "u1" || u.Phone != "254700000000" {
		t.Errorf("got %+v", u)
	}
}

func TestRemoteErrorParsing(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail object", 401, `{"detail":{"message":"Token expired"}}`, "Token expired"},
		{"detail string", 404, `{"detail":"Not Found"}`, "Not Found"},
		{"no body", 503, ``, "Service Unavailable"},
		{"html body", 500, `<html>oops</html>`, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Rooms(context.Background(), "tok")
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *Error, got %T: %v", err, err)
			}
			if apiErr.Status != tt.status || apiErr.Message != tt.want {
				t.Errorf("got %d %q, want %d %q", apiErr.Status, apiErr.Message, tt.status, tt.want)
			}
			if !IsStatus(err, tt.status) {
				t.Error("IsStatus() = false")
			}
		})
	}
}

func TestNetworkUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, "cid", "secret", WithTimeout(time.Second))
	_, err := c.Rooms(context.Background(), "tok")
	if !errors.Is(err, ErrNetworkUnreachable) {
		t.Errorf("expected ErrNetworkUnreachable, got %v", err)
	}
}

func TestWithTimeoutLeavesCallerClientAlone(t *testing.T) {
	own := &http.Client{Timeout: time.Minute}
	c := New("http://example.test", "cid", "secret", WithHTTPClient(own), WithTimeout(time.Second))

	if own.Timeout != time.Minute {
		t.Errorf("caller client timeout = %v, want 1m", own.Timeout)
	}
	if c.httpClient == own || c.httpClient.Timeout != time.Second {
		t.Errorf("client timeout = %v, want 1s on a copy", c.httpClient.Timeout)
	}
}

func TestCreateRoomSendsMemberRefs(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/rooms" {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Members []Ref `json:"members"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if len(body.Members) != 2 || body.Members[1].ID != "me" {
			t.Errorf("members = %+v", body.Members)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"r1","created_at":"2024-05-01T10:00:00","members":[{"id":"a","phone":"1","name":"A"},{"id":"me","phone":"2","name":"Me"}],"room_chats":[]}`))
	})

	room, err := c.CreateRoom(context.Background(), "tok", []string{"a", "me"})
	if err != nil {
		t.Fatal(err)
	}
	if room.ID != "r1" || len(room.Members) != 2 {
		t.Errorf("got %+v", room)
	}
}

func TestAddContacts(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/users/u1/contacts" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var batch []ContactUpload
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			t.Fatal(err)
		}
		out := make([]Contact, 0, len(batch))
		for _, b := range batch {
			out = append(out, Contact{UserID: "u1", Phone: b.Phone, Name: b.Name})
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(out)
	})

	got, err := c.AddContacts(context.Background(), "tok", "u1", []ContactUpload{{Phone: "1", Name: "A"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Phone != "1" {
		t.Errorf("got %+v", got)
	}
}

func TestDeleteRoomNoContent(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	if err := c.DeleteRoom(context.Background(), "tok", "r1"); err != nil {
		t.Fatal(err)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"2024-05-01T10:00:00Z", 1714557600000, true},
		{"2024-05-01T10:00:00", 1714557600000, true},
		{"2024-05-01T10:00:00.500000", 1714557600500, true},
		{"2024-05-01T13:00:00+03:00", 1714557600000, true},
		{"", 0, false},
		{"yesterday", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseTime(tt.in)
		if ok != tt.ok {
			t.Errorf("ParseTime(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && got.UnixMilli() != tt.want {
			t.Errorf("ParseTime(%q) = %d, want %d", tt.in, got.UnixMilli(), tt.want)
		}
	}
}
