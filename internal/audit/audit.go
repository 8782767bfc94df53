package audit

import (
	"context"

	"github.com/choiseongjun/chat-with-stream/pkg/log"
)

// Action names a recorded chat event.
type Action string

const (
	ActionEnter       Action = "chat.enter"
	ActionSendMessage Action = "chat.send_message"
	ActionDisconnect  Action = "chat.disconnect"
)

const (
	FieldAction    = "action"
	FieldMessageID = "message_id"
	FieldReason    = "reason"
)

// Event is one audit entry. Empty fields are left out of the record.
type Event struct {
	Action    Action
	SessionID string
	RoomID    string
	Sender    string
	MessageID string
	Reason    string
}

// Record writes e with log_type=audit through the context logger.
func Record(ctx context.Context, e Event) {
	l := log.Ctx(ctx)
	ev := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, string(e.Action)).
		Str(log.FieldSessionID, e.SessionID)

	optional := []struct{ key, value string }{
		{log.FieldRoomID, e.RoomID},
		{log.FieldSender, e.Sender},
		{FieldMessageID, e.MessageID},
		{FieldReason, e.Reason},
	}
	for _, f := range optional {
		if f.value != "" {
			ev = ev.Str(f.key, f.value)
		}
	}
	ev.Msg(string(e.Action))
}
