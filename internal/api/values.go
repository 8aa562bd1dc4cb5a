package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/raptchat/rapt/internal/bus"
	"github.com/raptchat/rapt/internal/raptapi"
	"github.com/raptchat/rapt/internal/store"
)

func reply(fields map[string]any) (*structpb.Struct, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["is_loading"] = false
	if _, ok := fields["error"]; !ok {
		fields["error"] = ""
	}
	return structpb.NewStruct(fields)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func str(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

func strs(req *structpb.Struct, key string) []string {
	var out []string
	for _, v := range req.GetFields()[key].GetListValue().GetValues() {
		if s := v.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// optStr returns nil when key is absent, so callers can tell "unset" from "".
func optStr(req *structpb.Struct, key string) *string {
	v, ok := req.GetFields()[key]
	if !ok {
		return nil
	}
	s := v.GetStringValue()
	return &s
}

func num(req *structpb.Struct, key string) int64 {
	return int64(req.GetFields()[key].GetNumberValue())
}

func contactValue(c store.Contact) map[string]any {
	return map[string]any{
		"id":         c.ID,
		"name":       c.Name,
		"phone":      c.Phone,
		"contact_id": c.ContactID,
		"user_id":    c.UserID,
		"is_active":  c.IsActive,
		"is_online":  c.IsOnline,
		"last_seen":  c.LastSeen,
	}
}

func contactList(cs []store.Contact) []any {
	out := make([]any, 0, len(cs))
	for _, c := range cs {
		out = append(out, contactValue(c))
	}
	return out
}

func messageValue(m store.Message) map[string]any {
	return map[string]any{
		"id":                m.MsgID,
		"socket_message_id": m.SocketMessageID,
		"sender_id":         m.SenderID,
		"room_id":           m.RoomID,
		"body":              m.Body,
		"is_read":           m.IsRead,
		"timestamp":         m.Timestamp,
	}
}

func messageList(ms []store.Message) []any {
	out := make([]any, 0, len(ms))
	for _, m := range ms {
		out = append(out, messageValue(m))
	}
	return out
}

func roomValue(v store.RoomView) map[string]any {
	return map[string]any{
		"id":       v.Room.RoomID,
		"members":  contactList(v.Members),
		"messages": messageList(v.Messages),
	}
}

func roomList(vs []store.RoomView) []any {
	out := make([]any, 0, len(vs))
	for _, v := range vs {
		out = append(out, roomValue(v))
	}
	return out
}

func userValue(u *raptapi.User) map[string]any {
	return map[string]any{
		"id":          u.ID,
		"phone":       u.Phone,
		"name":        u.Name,
		"is_active":   u.IsActive,
		"is_verified": u.IsVerified,
		"last_seen":   u.LastSeen,
	}
}

// eventValue renders a bus event. Payloads are rendered through their JSON
// encoding.
func eventValue(id string, evt bus.Event) (*structpb.Struct, error) {
	fields := map[string]any{
		"id":             id,
		"kind":           evt.Kind,
		"occurred_at_ms": evt.Timestamp.UnixMilli(),
	}
	if evt.Payload != nil {
		raw, err := json.Marshal(evt.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", evt.Kind, err)
		}
		var payload any
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("unmarshal %s payload: %w", evt.Kind, err)
		}
		fields["payload"] = payload
	}
	return structpb.NewStruct(fields)
}
