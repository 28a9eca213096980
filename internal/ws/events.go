package ws

import "encoding/json"

// Client -> server events.
const (
	EvJoinRoom       = "joinRoom"
	EvSendMessage    = "sendMessage"
	EvGetChatRooms   = "getChatRooms"
	EvGetMessages    = "getMessages"
	EvLeaveRoom      = "leaveRoom"
	EvSetMessageRead = "setMessageRead"
)

// Server -> client events.
const (
	EvJoinRoomSuccess    = "joinRoomSuccess"
	EvNewMessage         = "newMessage"
	EvChatRoomsUpdated   = "chatRoomsUpdated"
	EvUnreadCountUpdated = "unreadCountUpdated"
	EvMessagesRead       = "messagesRead"
	EvChatRooms          = "getChatRooms"
	EvMessages           = "messages"
	EvRoomLeft           = "roomLeft"
	EvError              = "error"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinRoomPayload struct {
	PeerUserID string `json:"peerUserId"`
}

type SendMessagePayload struct {
	RoomID          string `json:"roomId"`
	Content         string `json:"content"`
	MessageType     string `json:"message_type"`
	ParentMessageID string `json:"parent_message_id,omitempty"`
	MessageName     string `json:"message_name,omitempty"`
	MessageSize     int64  `json:"message_size,omitempty"`
}

type RoomPayload struct {
	RoomID string `json:"roomId"`
}

type GetMessagesPayload struct {
	RoomID string `json:"roomId"`
	Limit  int64  `json:"limit,omitempty"`
	Before string `json:"before,omitempty"`
}

type ErrorPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

type UnreadCountPayload struct {
	RoomID string `json:"roomId"`
	Count  int64  `json:"count"`
}

// PersonalChannel is the per-user broadcast address every connection of
// that user auto-joins at connect time.
func PersonalChannel(userID string) string {
	return "user:" + userID
}
