package api

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/raptchat/rapt/internal/auth"
	"github.com/raptchat/rapt/internal/bus"
	"github.com/raptchat/rapt/internal/raptapi"
	"github.com/raptchat/rapt/internal/realtime"
	"github.com/raptchat/rapt/internal/status"
	"github.com/raptchat/rapt/internal/store"
	intsync "github.com/raptchat/rapt/internal/sync"
)

// Service implements ControlServer on top of the daemon components.
type Service struct {
	sessionName string
	startedAt   time.Time
	machine     *status.Machine
	auth        *auth.Provider
	runner      *intsync.Runner
	contacts    *intsync.ContactEngine
	chats       *intsync.ChatEngine
	db          *store.DB
	bus         *bus.Bus
	logger      *zap.Logger
}

// NewService creates the control service.
func NewService(
	sessionName string,
	machine *status.Machine,
	provider *auth.Provider,
	runner *intsync.Runner,
	contacts *intsync.ContactEngine,
	chats *intsync.ChatEngine,
	db *store.DB,
	b *bus.Bus,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sessionName: sessionName,
		startedAt:   time.Now(),
		machine:     machine,
		auth:        provider,
		runner:      runner,
		contacts:    contacts,
		chats:       chats,
		db:          db,
		bus:         b,
		logger:      logger,
	}
}

var _ ControlServer = (*Service)(nil)

// Status reports the session state, identity, cache counts and open rooms.
// It never touches the network.
func (s *Service) Status(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	state, since := s.machine.Since()
	fields := map[string]any{
		"session":         s.sessionName,
		"status":          string(state),
		"status_since_ms": since.UnixMilli(),
		"uptime_ms":       time.Since(s.startedAt).Milliseconds(),
	}
	if cred, err := s.db.GetCredential(); err == nil && cred != nil {
		fields["phone"] = cred.Phone
		fields["user_id"] = cred.UserID
		fields["expires_at"] = cred.ExpiresAt
	}
	if st, err := s.db.Stats(); err == nil {
		fields["contact_count"] = st.Contacts
		fields["room_count"] = st.Rooms
		fields["message_count"] = st.Messages
		fields["pending_count"] = st.Pending
	}
	for key, field := range map[string]string{
		store.CheckpointContactsSync: "contacts_last_sync",
		store.CheckpointChatsSync:    "chats_last_sync",
	} {
		if v, err := s.db.Checkpoint(key); err == nil && v != "" {
			if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
				fields[field] = ms
			}
		}
	}
	if v, dirty, err := s.db.SchemaVersion(); err == nil {
		fields["schema_version"] = v
		fields["schema_dirty"] = dirty
	}
	fields["events_dropped"] = s.bus.Dropped()
	open := map[string]any{}
	for id, st := range s.chats.OpenRooms() {
		open[id] = string(st)
	}
	ids := s.chats.OpenRoomIDs()
	ordered := make([]any, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, id)
	}
	fields["open_rooms"] = open
	fields["open_room_ids"] = ordered
	return reply(fields)
}

// Login requests an OTP. Request: phone.
func (s *Service) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.auth.Login(ctx, str(req, "phone"))
	if err != nil {
		return nil, toStatus("login", err)
	}
	return reply(map[string]any{
		"message": resp.Message,
		"phone":   resp.Phone,
		"success": resp.Success,
	})
}

// Verify exchanges an OTP for a credential. Request: code, phone.
func (s *Service) Verify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	code := str(req, "code")
	if code == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "code is required")
	}
	cred, err := s.auth.Verify(ctx, code, str(req, "phone"))
	if err != nil {
		return nil, toStatus("verify", err)
	}
	return reply(map[string]any{
		"phone":      cred.Phone,
		"user_id":    cred.UserID,
		"expires_at": cred.ExpiresAt,
	})
}

// Logout forgets the credential and closes every room.
func (s *Service) Logout(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.auth.Logout(); err != nil {
		return nil, toStatus("logout", err)
	}
	return reply(map[string]any{"success": true})
}

// Profile returns the user's profile. When name or device_fcm_token is
// present the profile is updated first.
func (s *Service) Profile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	upd := raptapi.ProfileUpdate{
		Name:           optStr(req, "name"),
		DeviceFCMToken: optStr(req, "device_fcm_token"),
	}
	var (
		user *raptapi.User
		err  error
	)
	if upd.Name != nil || upd.DeviceFCMToken != nil {
		user, err = s.auth.UpdateProfile(ctx, upd)
	} else {
		user, err = s.auth.Profile(ctx)
	}
	if err != nil {
		return nil, toStatus("profile", err)
	}
	return reply(map[string]any{"user": userValue(user)})
}

// SyncContacts runs a contact pass. A degraded pass still answers with the
// cached list and sets error.
func (s *Service) SyncContacts(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	rep := s.runner.SyncContacts(ctx)
	return reply(map[string]any{
		"contacts": contactList(rep.Contacts),
		"uploaded": rep.Uploaded,
		"inserted": rep.Inserted,
		"updated":  rep.Updated,
		"error":    errString(rep.Err),
	})
}

// SearchContacts matches cached contacts. Request: query.
func (s *Service) SearchContacts(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.contacts.Search(str(req, "query"))
	if err != nil {
		return nil, toStatus("search contacts", err)
	}
	return reply(map[string]any{"contacts": contactList(res)})
}

// DeleteContact removes a cached contact. Request: id (local id).
func (s *Service) DeleteContact(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := num(req, "id")
	if id <= 0 {
		return nil, grpcstatus.Error(codes.InvalidArgument, "id is required")
	}
	if err := s.contacts.Delete(id); err != nil {
		return nil, toStatus("delete contact", err)
	}
	return reply(map[string]any{"success": true})
}

// SyncChats runs a chat pass. A degraded pass still answers with the
// cached rooms and sets error.
func (s *Service) SyncChats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	rep := s.runner.SyncChats(ctx)
	return reply(map[string]any{
		"rooms":             roomList(rep.Rooms),
		"pushed":            rep.Pushed,
		"pulled":            rep.Pulled,
		"members_linked":    rep.MembersLinked,
		"messages_inserted": rep.MessagesInserted,
		"error":             errString(rep.Err),
	})
}

// ListRooms returns the cached rooms.
func (s *Service) ListRooms(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	views, err := s.chats.Rooms()
	if err != nil {
		return nil, toStatus("list rooms", err)
	}
	return reply(map[string]any{"rooms": roomList(views)})
}

// CreateRoom creates a room with the given users. Request: contact_ids.
func (s *Service) CreateRoom(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ids := strs(req, "contact_ids")
	if len(ids) == 0 {
		return nil, grpcstatus.Error(codes.InvalidArgument, "contact_ids is required")
	}
	view, err := s.chats.CreateChatRoom(ctx, ids)
	if err != nil {
		return nil, toStatus("create room", err)
	}
	return reply(map[string]any{"room": roomValue(*view)})
}

// OpenRoom starts the room's realtime channel. Request: room_id.
func (s *Service) OpenRoom(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	roomID, err := requireRoom(req)
	if err != nil {
		return nil, err
	}
	if err := s.chats.OpenRoom(ctx, roomID); err != nil {
		return nil, toStatus("open room", err)
	}
	return reply(map[string]any{"room_id": roomID, "state": string(s.chats.OpenRooms()[roomID])})
}

// CloseRoom stops the room's realtime channel. Request: room_id.
func (s *Service) CloseRoom(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	roomID, err := requireRoom(req)
	if err != nil {
		return nil, err
	}
	s.chats.CloseRoom(roomID)
	return reply(map[string]any{"room_id": roomID, "state": string(realtime.StateClosed)})
}

// ListMessages lists a room's cached messages, oldest first. Request: room_id.
func (s *Service) ListMessages(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	roomID, err := requireRoom(req)
	if err != nil {
		return nil, err
	}
	msgs, err := s.chats.Messages(roomID)
	if err != nil {
		return nil, toStatus("list messages", err)
	}
	return reply(map[string]any{"messages": messageList(msgs)})
}

// SendText sends a chat message. Request: room_id, text. The message is
// cached as a placeholder even when the room is not connected; that case
// answers FailedPrecondition.
func (s *Service) SendText(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	roomID, err := requireRoom(req)
	if err != nil {
		return nil, err
	}
	msg, err := s.chats.SendMessage(ctx, roomID, str(req, "text"))
	if err != nil {
		if msg != nil {
			s.logger.Info("message cached but not sent", zap.String("room_id", roomID), zap.String("msg_id", msg.MsgID))
		}
		return nil, toStatus("send", err)
	}
	return reply(map[string]any{"message": messageValue(*msg)})
}

// MarkRead sends a read receipt. Request: room_id, message_id.
func (s *Service) MarkRead(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	roomID, err := requireRoom(req)
	if err != nil {
		return nil, err
	}
	msgID := str(req, "message_id")
	if msgID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "message_id is required")
	}
	if err := s.chats.MarkRead(ctx, roomID, msgID); err != nil {
		return nil, toStatus("mark read", err)
	}
	return reply(map[string]any{"success": true})
}

// Signal sends a presence signal. Request: room_id, type.
func (s *Service) Signal(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	roomID, err := requireRoom(req)
	if err != nil {
		return nil, err
	}
	typ := realtime.EventType(str(req, "type"))
	if typ == realtime.Chat || typ == realtime.Read || !typ.Valid() {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%q is not a presence signal", typ)
	}
	if err := s.chats.Signal(ctx, roomID, typ); err != nil {
		return nil, toStatus("signal", err)
	}
	return reply(map[string]any{"success": true})
}

// WatchEvents streams bus events until the client goes away. Request:
// prefix (optional kind prefix, e.g. "presence.").
func (s *Service) WatchEvents(req *structpb.Struct, stream grpc.ServerStream) error {
	ch, unsub := s.bus.Subscribe(str(req, "prefix"), 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			out, err := eventValue(uuid.NewString(), evt)
			if err != nil {
				s.logger.Warn("drop event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func requireRoom(req *structpb.Struct) (string, error) {
	roomID := str(req, "room_id")
	if roomID == "" {
		return "", grpcstatus.Error(codes.InvalidArgument, "room_id is required")
	}
	return roomID, nil
}
