package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raptchat/rapt/internal/bus"
	"github.com/raptchat/rapt/internal/raptapi"
	"github.com/raptchat/rapt/internal/realtime"
	"github.com/raptchat/rapt/internal/store"
)

// PlaceholderPrefix marks message ids that have not been confirmed by the
// server yet.
const PlaceholderPrefix = store.PlaceholderPrefix

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrEmptyMessage = errors.New("message text is empty")
)

// RoomsAPI is the chat room surface of the Rapt API.
type RoomsAPI interface {
	Rooms(ctx context.Context, token string) ([]raptapi.Room, error)
	CreateRoom(ctx context.Context, token string, memberIDs []string) (*raptapi.Room, error)
}

// Auth supplies credentials for REST calls and tokens for realtime dials.
type Auth interface {
	Credentials
	realtime.TokenSource
}

// ChatOptions configures the realtime side of a ChatEngine.
type ChatOptions struct {
	SocketBaseURL string
	Dialer        realtime.Dialer
	PingInterval  time.Duration
}

// ChatReport is the outcome of a chat sync pass. Rooms is always the local
// join view; Err is set when the pass degraded to the cache.
type ChatReport struct {
	Rooms            []store.RoomView
	Pushed           int
	Pulled           int
	MembersLinked    int
	MessagesInserted int
	Err              error
}

// ChatsSynced is the payload of chats.synced.
type ChatsSynced struct {
	Pushed           int `json:"pushed"`
	Pulled           int `json:"pulled"`
	MembersLinked    int `json:"members_linked"`
	MessagesInserted int `json:"messages_inserted"`
	Rooms            int `json:"rooms"`
}

// ChatEngine reconciles rooms and messages with the server and owns one
// realtime channel per open room.
type ChatEngine struct {
	db      *store.DB
	api     RoomsAPI
	auth    Auth
	bus     *bus.Bus
	metrics Metrics
	logger  *zap.Logger
	opts    ChatOptions
	now     func() time.Time

	mu       sync.Mutex
	base     context.Context
	cancel   context.CancelFunc
	channels map[string]*realtime.Channel
}

// NewChatEngine creates a ChatEngine.
func NewChatEngine(db *store.DB, api RoomsAPI, auth Auth, b *bus.Bus, m Metrics, logger *zap.Logger, opts ChatOptions) *ChatEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatEngine{
		db:       db,
		api:      api,
		auth:     auth,
		bus:      b,
		metrics:  orNop(m),
		logger:   logger,
		opts:     opts,
		now:      time.Now,
		base:     context.Background(),
		channels: make(map[string]*realtime.Channel),
	}
}

// Sync runs one pass. It never fails: on error the cached join view is
// returned with Err set.
func (e *ChatEngine) Sync(ctx context.Context) ChatReport {
	start := e.now()
	rep, err := e.sync(ctx)
	e.metrics.ObserveSync(EngineChats, err == nil, e.now().Sub(start))
	if err == nil {
		e.logger.Info("chats synced",
			zap.Int("pushed", rep.Pushed),
			zap.Int("pulled", rep.Pulled),
			zap.Int("members_linked", rep.MembersLinked),
			zap.Int("messages_inserted", rep.MessagesInserted),
		)
		e.bus.Emit(bus.KindChatsSynced, ChatsSynced{
			Pushed: rep.Pushed, Pulled: rep.Pulled, MembersLinked: rep.MembersLinked,
			MessagesInserted: rep.MessagesInserted, Rooms: len(rep.Rooms),
		})
		return rep
	}

	e.logger.Warn("chat sync failed, serving cache", zap.Error(err))
	e.bus.Emit(bus.KindChatsFailed, err.Error())
	views, verr := e.db.RoomViews(e.selfPhone())
	if verr != nil {
		e.logger.Error("load cached rooms", zap.Error(verr))
	}
	return ChatReport{Rooms: views, Err: err}
}

func (e *ChatEngine) sync(ctx context.Context) (ChatReport, error) {
	var rep ChatReport

	cred, err := e.auth.Require(ctx)
	if err != nil {
		return rep, err
	}
	remote, err := e.api.Rooms(ctx, cred.AccessToken)
	if err != nil {
		return rep, fmt.Errorf("fetch rooms: %w", err)
	}
	local, err := e.db.ListRooms()
	if err != nil {
		return rep, fmt.Errorf("list local rooms: %w", err)
	}

	remoteIDs := make(map[string]bool, len(remote))
	for _, r := range remote {
		remoteIDs[r.ID] = true
	}
	localIDs := make(map[string]bool, len(local))
	for _, r := range local {
		localIDs[r.RoomID] = true
		if remoteIDs[r.RoomID] {
			continue
		}
		members, err := e.db.RoomMemberIDs(r.RoomID)
		if err != nil {
			return rep, fmt.Errorf("members of %s: %w", r.RoomID, err)
		}
		created, err := e.api.CreateRoom(ctx, cred.AccessToken, withSelf(members, cred.UserID))
		if err != nil {
			return rep, fmt.Errorf("push room %s: %w", r.RoomID, err)
		}
		rep.Pushed++
		if !remoteIDs[created.ID] {
			remoteIDs[created.ID] = true
			remote = append(remote, *created)
		}
	}

	for _, rr := range remote {
		if !localIDs[rr.ID] {
			if err := e.db.InsertRoom(rr.ID); err != nil {
				return rep, fmt.Errorf("insert room %s: %w", rr.ID, err)
			}
			localIDs[rr.ID] = true
			rep.Pulled++
		}
		linked, err := e.linkMembers(rr, cred.UserID)
		if err != nil {
			return rep, err
		}
		rep.MembersLinked += linked

		for _, c := range rr.Chats {
			inserted, err := e.db.InsertMessage(e.fromChat(c, rr.ID))
			if err != nil {
				return rep, fmt.Errorf("insert message %s: %w", c.ID, err)
			}
			if inserted {
				rep.MessagesInserted++
			}
		}
	}

	if err := e.db.SetCheckpoint(store.CheckpointChatsSync, strconv.FormatInt(e.now().UnixMilli(), 10)); err != nil {
		return rep, fmt.Errorf("checkpoint: %w", err)
	}
	if rep.Rooms, err = e.db.RoomViews(cred.Phone); err != nil {
		return rep, fmt.Errorf("load rooms: %w", err)
	}
	return rep, nil
}

// linkMembers caches unknown members as contacts and links every member to
// the room, which must already be cached. Returns the number of new links.
func (e *ChatEngine) linkMembers(room raptapi.Room, selfID string) (int, error) {
	if err := e.cacheMembers(room, selfID); err != nil {
		return 0, err
	}
	linked := 0
	for _, m := range room.Members {
		if m.ID == "" {
			continue
		}
		added, err := e.db.AddMember(room.ID, m.ID)
		if err != nil {
			return linked, fmt.Errorf("link member %s: %w", m.ID, err)
		}
		if added {
			linked++
		}
	}
	return linked, nil
}

// cacheMembers inserts a contact for every room member not cached yet.
func (e *ChatEngine) cacheMembers(room raptapi.Room, selfID string) error {
	for _, m := range room.Members {
		if m.ID == "" {
			continue
		}
		c, err := e.db.GetContactByContactID(m.ID)
		if err != nil {
			return fmt.Errorf("lookup member %s: %w", m.ID, err)
		}
		if c != nil {
			continue
		}
		if err := e.db.InsertContact(&store.Contact{
			Name:      m.Name,
			Phone:     m.Phone,
			ContactID: m.ID,
			UserID:    selfID,
			IsActive:  true,
		}); err != nil {
			return fmt.Errorf("insert member %s: %w", m.ID, err)
		}
	}
	return nil
}

func (e *ChatEngine) fromChat(c raptapi.Chat, roomID string) *store.Message {
	ts := e.now().UnixMilli()
	if t, ok := raptapi.ParseTime(c.CreatedAt); ok {
		ts = t.UnixMilli()
	}
	return &store.Message{
		MsgID:     c.ID,
		SenderID:  c.Sender.ID,
		RoomID:    roomID,
		Body:      c.Message,
		IsRead:    c.IsRead,
		Timestamp: ts,
	}
}

// CreateChatRoom creates (or finds) the room with the given contacts and
// the current user, then caches it with its memberships. Repeating the call
// for the same room adds no rows.
func (e *ChatEngine) CreateChatRoom(ctx context.Context, contactIDs []string) (*store.RoomView, error) {
	cred, err := e.auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	members := withSelf(contactIDs, cred.UserID)
	room, err := e.api.CreateRoom(ctx, cred.AccessToken, members)
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	if room.ID == "" {
		return nil, errors.New("create room: server returned no room id")
	}

	if len(room.Members) > 0 {
		if err := e.cacheMembers(*room, cred.UserID); err != nil {
			return nil, err
		}
		members = make([]string, 0, len(room.Members))
		for _, m := range room.Members {
			if m.ID != "" {
				members = append(members, m.ID)
			}
		}
	}
	if err := e.db.UpsertRoomWithMembers(room.ID, members); err != nil {
		return nil, fmt.Errorf("cache room %s: %w", room.ID, err)
	}
	e.bus.Emit(bus.KindRoomCreated, room.ID)
	return e.db.RoomView(room.ID, cred.Phone)
}

// SaveChat inserts an unconfirmed message with a placeholder id and a fresh
// correlation id, and returns it for sending.
func (e *ChatEngine) SaveChat(ctx context.Context, text, roomID string) (*store.Message, error) {
	cred, err := e.auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	msg := &store.Message{
		MsgID:           PlaceholderPrefix + uuid.NewString(),
		SocketMessageID: uuid.NewString(),
		SenderID:        cred.UserID,
		RoomID:          roomID,
		Body:            text,
		Timestamp:       e.now().UnixMilli(),
	}
	if _, err := e.db.InsertMessage(msg); err != nil {
		return nil, fmt.Errorf("save chat: %w", err)
	}
	e.bus.Emit(bus.KindMessageUpserted, bus.MessageRef{RoomID: roomID, MsgID: msg.MsgID})
	return msg, nil
}

// Messages lists a room's cached messages, oldest first.
func (e *ChatEngine) Messages(roomID string) ([]store.Message, error) {
	return e.db.ListRoomMessages(roomID)
}

// Rooms returns the cached join view without touching the network.
func (e *ChatEngine) Rooms() ([]store.RoomView, error) {
	return e.db.RoomViews(e.selfPhone())
}

func (e *ChatEngine) selfPhone() string {
	cred, err := e.db.GetCredential()
	if err != nil || cred == nil {
		return ""
	}
	return cred.Phone
}

// withSelf returns ids plus selfID, deduplicated, order preserved.
func withSelf(ids []string, selfID string) []string {
	seen := make(map[string]bool, len(ids)+1)
	out := make([]string, 0, len(ids)+1)
	for _, id := range append(append([]string{}, ids...), selfID) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
