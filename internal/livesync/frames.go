// ABOUTME: Wire frame types for the live sync protocol
// ABOUTME: JSON frames pushed to clients over the WebSocket stream

package livesync

import (
	"time"

	"github.com/threadwell/threadwell/internal/store"
)

// Frame type discriminators. Every frame carries exactly one of these in
// its "type" field.
const (
	frameTypeInitialMessage = "initial_message"
	frameTypeConnected      = "connected"
	frameTypeMessageAdded   = "message_added"
	frameTypeMessageUpdated = "message_updated"
	frameTypeHeartbeat      = "heartbeat"
	frameTypeError          = "error"
)

// messageData is the payload for initial_message and message_added frames.
type messageData struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// updateData is the payload for message_updated frames. Clients already
// hold the message; they only need to know what changed and by whom.
type updateData struct {
	ID        string `json:"id"`
	UpdatedAt string `json:"updated_at"`
	UpdatedBy string `json:"updated_by"`
}

// frame is the envelope for every sync protocol message. Fields are
// populated per frame type; the rest are omitted.
type frame struct {
	Type             string `json:"type"`
	Data             any    `json:"data,omitempty"`
	ConversationID   string `json:"conversation_id,omitempty"`
	ConversationName string `json:"conversation_name,omitempty"`
	Timestamp        string `json:"timestamp,omitempty"`
	Message          string `json:"message,omitempty"`
}

func newMessageData(msg *store.Message) messageData {
	return messageData{
		ID:        msg.ID,
		Role:      msg.Role,
		Message:   msg.Content,
		Timestamp: msg.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func initialMessageFrame(msg *store.Message) *frame {
	return &frame{Type: frameTypeInitialMessage, Data: newMessageData(msg)}
}

func connectedFrame(conv *store.Conversation) *frame {
	return &frame{
		Type:             frameTypeConnected,
		ConversationID:   conv.ID,
		ConversationName: conv.Name,
	}
}

func messageAddedFrame(msg *store.Message) *frame {
	return &frame{Type: frameTypeMessageAdded, Data: newMessageData(msg)}
}

func messageUpdatedFrame(msg *store.Message) *frame {
	data := updateData{ID: msg.ID}
	if msg.UpdatedAt != nil {
		data.UpdatedAt = msg.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if msg.UpdatedBy != nil {
		data.UpdatedBy = *msg.UpdatedBy
	}
	return &frame{Type: frameTypeMessageUpdated, Data: data}
}

func heartbeatFrame(now time.Time) *frame {
	return &frame{Type: frameTypeHeartbeat, Timestamp: now.UTC().Format(time.RFC3339)}
}

func errorFrame(message string) *frame {
	return &frame{Type: frameTypeError, Message: message}
}
