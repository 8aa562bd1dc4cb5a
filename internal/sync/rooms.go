package sync

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raptchat/rapt/internal/bus"
	"github.com/raptchat/rapt/internal/raptapi"
	"github.com/raptchat/rapt/internal/realtime"
	"github.com/raptchat/rapt/internal/store"
)

// Start binds the lifetime of every realtime channel opened afterwards to
// ctx.
func (e *ChatEngine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.base, e.cancel = context.WithCancel(ctx)
}

// Stop disconnects every open room.
func (e *ChatEngine) Stop() {
	e.CloseAll()
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// OpenRoom starts the room's realtime channel. Inbound events are folded
// into the store in arrival order. Opening an open room is a no-op.
func (e *ChatEngine) OpenRoom(ctx context.Context, roomID string) error {
	if _, err := e.auth.Require(ctx); err != nil {
		return err
	}
	room, err := e.db.GetRoom(roomID)
	if err != nil {
		return fmt.Errorf("lookup room: %w", err)
	}
	if room == nil {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	e.mu.Lock()
	if _, ok := e.channels[roomID]; ok {
		e.mu.Unlock()
		return nil
	}
	base := e.base
	logger := e.logger.With(zap.String("room_id", roomID))
	ch := realtime.NewChannel(realtime.Options{
		URL:          e.roomURL(roomID),
		Tokens:       e.auth,
		Dialer:       e.opts.Dialer,
		PingInterval: e.opts.PingInterval,
		Logger:       logger,
		Metrics:      e.metrics,
		OnEvent: func(evt realtime.Event) {
			if err := e.Fold(base, roomID, evt); err != nil {
				logger.Warn("fold realtime event", zap.Error(err), zap.String("type", string(evt.Type)))
			}
		},
		OnState: func(s realtime.State) {
			e.bus.Emit(bus.KindRealtimeState, bus.RealtimeState{RoomID: roomID, State: string(s)})
		},
	})
	e.channels[roomID] = ch
	n := len(e.channels)
	e.mu.Unlock()

	e.metrics.SetChannels(n)
	ch.Connect(base)
	logger.Info("room opened")
	return nil
}

// CloseRoom disconnects the room's channel. Closing a closed room is a no-op.
func (e *ChatEngine) CloseRoom(roomID string) {
	e.mu.Lock()
	ch := e.channels[roomID]
	delete(e.channels, roomID)
	n := len(e.channels)
	e.mu.Unlock()

	if ch == nil {
		return
	}
	ch.Disconnect()
	e.metrics.SetChannels(n)
	e.logger.Info("room closed", zap.String("room_id", roomID))
}

// CloseAll disconnects every open room.
func (e *ChatEngine) CloseAll() {
	for roomID := range e.OpenRooms() {
		e.CloseRoom(roomID)
	}
}

// OpenRooms reports the connection state of every open room.
func (e *ChatEngine) OpenRooms() map[string]realtime.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]realtime.State, len(e.channels))
	for id, ch := range e.channels {
		out[id] = ch.State()
	}
	return out
}

// OpenRoomIDs is OpenRooms' keys, sorted.
func (e *ChatEngine) OpenRoomIDs() []string {
	states := e.OpenRooms()
	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SendMessage saves text as a placeholder and forwards it as a chat event.
// When the room is not connected the message stays cached and
// realtime.ErrNotConnected is returned alongside it.
func (e *ChatEngine) SendMessage(ctx context.Context, roomID, text string) (*store.Message, error) {
	msg, err := e.SaveChat(ctx, text, roomID)
	if err != nil {
		return nil, err
	}
	err = e.send(ctx, roomID, realtime.Event{
		ID:   msg.SocketMessageID,
		Type: realtime.Chat,
		Obj:  &realtime.ChatObj{ID: msg.MsgID, Message: msg.Body},
		User: &realtime.UserObj{ID: msg.SenderID},
	})
	return msg, err
}

// MarkRead tells the room that msgID has been read. The local flag flips
// when the server echoes the read event.
func (e *ChatEngine) MarkRead(ctx context.Context, roomID, msgID string) error {
	cred, err := e.auth.Require(ctx)
	if err != nil {
		return err
	}
	return e.send(ctx, roomID, realtime.Event{
		ID:   uuid.NewString(),
		Type: realtime.Read,
		Obj:  &realtime.ChatObj{ID: msgID},
		User: &realtime.UserObj{ID: cred.UserID},
	})
}

// Signal sends a presence event (typing, away, ...) to the room.
func (e *ChatEngine) Signal(ctx context.Context, roomID string, typ realtime.EventType) error {
	if typ == realtime.Chat || typ == realtime.Read || !typ.Valid() {
		return fmt.Errorf("%q is not a presence signal", typ)
	}
	cred, err := e.auth.Require(ctx)
	if err != nil {
		return err
	}
	return e.send(ctx, roomID, realtime.Event{
		ID:   uuid.NewString(),
		Type: typ,
		User: &realtime.UserObj{ID: cred.UserID},
	})
}

func (e *ChatEngine) send(ctx context.Context, roomID string, evt realtime.Event) error {
	e.mu.Lock()
	ch := e.channels[roomID]
	e.mu.Unlock()
	if ch == nil {
		return realtime.ErrNotConnected
	}
	return ch.Send(ctx, evt)
}

// Fold applies one inbound realtime event to the store.
func (e *ChatEngine) Fold(ctx context.Context, roomID string, evt realtime.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch evt.Type {
	case realtime.Chat:
		return e.foldChat(roomID, evt)
	case realtime.Read:
		if evt.Obj == nil || evt.Obj.ID == "" {
			return fmt.Errorf("read event %s without message id", evt.ID)
		}
		ok, err := e.db.MarkMessageRead(evt.Obj.ID)
		if err != nil {
			return fmt.Errorf("mark read %s: %w", evt.Obj.ID, err)
		}
		if ok {
			e.bus.Emit(bus.KindMessageRead, bus.MessageRef{RoomID: roomID, MsgID: evt.Obj.ID})
		}
		return nil
	case realtime.Online:
		if evt.User != nil && evt.User.ID != "" {
			if _, err := e.db.MarkContactOnline(evt.User.ID, e.now().UnixMilli()); err != nil {
				return fmt.Errorf("mark online %s: %w", evt.User.ID, err)
			}
		}
	}
	e.bus.Emit(bus.PresencePrefix+string(evt.Type), presence(roomID, evt))
	return nil
}

func (e *ChatEngine) foldChat(roomID string, evt realtime.Event) error {
	if evt.Obj == nil || evt.Obj.ID == "" {
		return fmt.Errorf("chat event %s without message id", evt.ID)
	}
	serverID := evt.Obj.ID

	var placeholder *store.Message
	if evt.ID != "" {
		var err error
		if placeholder, err = e.db.GetMessageBySocketID(evt.ID); err != nil {
			return fmt.Errorf("lookup correlation %s: %w", evt.ID, err)
		}
	}
	switch {
	case placeholder != nil:
		if err := e.db.ConfirmMessage(evt.ID, serverID); err != nil {
			return err
		}
	case strings.HasPrefix(serverID, PlaceholderPrefix):
		return fmt.Errorf("chat event %s carries an unconfirmed id", evt.ID)
	default:
		ts := e.now().UnixMilli()
		if t, ok := raptapi.ParseTime(evt.Timestamp); ok {
			ts = t.UnixMilli()
		}
		msg := &store.Message{
			MsgID:           serverID,
			SocketMessageID: evt.ID,
			RoomID:          roomID,
			Body:            evt.Obj.Message,
			Timestamp:       ts,
		}
		if evt.User != nil {
			msg.SenderID = evt.User.ID
		}
		if _, err := e.db.InsertMessage(msg); err != nil {
			return fmt.Errorf("insert %s: %w", serverID, err)
		}
	}
	e.bus.Emit(bus.KindMessageUpserted, bus.MessageRef{RoomID: roomID, MsgID: serverID})
	return nil
}

func presence(roomID string, evt realtime.Event) bus.Presence {
	p := bus.Presence{RoomID: roomID}
	if evt.User != nil {
		p.UserID = evt.User.ID
	}
	if evt.Obj != nil {
		p.MsgID = evt.Obj.ID
	}
	return p
}

func (e *ChatEngine) roomURL(roomID string) string {
	return strings.TrimRight(e.opts.SocketBaseURL, "/") + "/chatsocket/" + url.PathEscape(roomID)
}
