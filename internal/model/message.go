package model

import (
	"sort"
	"time"

	"github.com/mahaddinnagiyev/connectify-messenger/internal/apperr"
)

// MessageType tags the payload carried in a message's content field.
// For media types the content is a durable URL produced by the upload path.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeAudio MessageType = "audio"
	TypeFile  MessageType = "file"
	TypeVideo MessageType = "video"
	// TypeDefault marks system messages such as the room's auto-generated
	// first message.
	TypeDefault MessageType = "default"
)

func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeAudio, TypeFile, TypeVideo, TypeDefault:
		return true
	}
	return false
}

func (t MessageType) Media() bool {
	switch t {
	case TypeImage, TypeAudio, TypeFile, TypeVideo:
		return true
	}
	return false
}

// MessageStatus is the delivery status of a message. Transitions are
// monotonic: sent -> delivered -> read, never backwards.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

func (s MessageStatus) Valid() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusRead:
		return true
	}
	return false
}

func (s MessageStatus) rank() int {
	switch s {
	case StatusSent:
		return 0
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	}
	return -1
}

// CanAdvanceTo reports whether moving from s to next respects monotonic
// ordering. Equal status is allowed so repeated acknowledgements are no-ops.
func (s MessageStatus) CanAdvanceTo(next MessageStatus) bool {
	return s.Valid() && next.Valid() && next.rank() >= s.rank()
}

type Message struct {
	ID       string `bson:"_id" json:"id"`
	RoomID   string `bson:"room_id" json:"room_id"`
	SenderID string `bson:"sender_id" json:"sender_id"`

	// ParentMessageID is a weak back-reference used for reply previews. It
	// carries no ownership; a lookup miss is reported through
	// IsParentDeleted instead of a cascade.
	ParentMessageID string `bson:"parent_message_id,omitempty" json:"parent_message_id,omitempty"`
	IsParentDeleted bool   `bson:"is_parent_deleted" json:"is_parent_deleted"`

	Type    MessageType `bson:"message_type" json:"message_type"`
	Content string      `bson:"content" json:"content"`

	// Original file name and byte size, set only for media types.
	FileName string `bson:"message_name,omitempty" json:"message_name,omitempty"`
	FileSize int64  `bson:"message_size,omitempty" json:"message_size,omitempty"`

	Status    MessageStatus `bson:"status" json:"status"`
	CreatedAt time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at" json:"updated_at"`
}

// Validate is applied at the store boundary before any insert.
func (m *Message) Validate() error {
	if m.RoomID == "" {
		return apperr.BadRequest("missing room id")
	}
	if m.SenderID == "" {
		return apperr.BadRequest("missing sender id")
	}
	if m.Content == "" {
		return apperr.BadRequest("missing content")
	}
	if !m.Type.Valid() {
		return apperr.BadRequest("unsupported message type %q", m.Type)
	}
	if m.Status != "" && !m.Status.Valid() {
		return apperr.BadRequest("unsupported message status %q", m.Status)
	}
	return nil
}

// Room is the two-party container for a conversation. The unordered user
// pair is its natural key: at most one room exists per pair, and membership
// never changes after creation.
type Room struct {
	ID        string    `bson:"_id" json:"id"`
	PairKey   string    `bson:"pair_key" json:"-"`
	UserIDs   []string  `bson:"user_ids" json:"user_ids"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Other returns the first participant whose id differs from userID.
func (r *Room) Other(userID string) string {
	for _, id := range r.UserIDs {
		if id != userID {
			return id
		}
	}
	return ""
}

func (r *Room) HasMember(userID string) bool {
	for _, id := range r.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// PairKey normalizes an unordered user pair into the room's natural key.
// Lookup is idempotent regardless of argument order.
func PairKey(a, b string) (string, error) {
	if a == "" || b == "" {
		return "", apperr.BadRequest("missing user id")
	}
	if a == b {
		return "", apperr.BadRequest("cannot create a chat room with the same user")
	}
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[0] + ":" + ids[1], nil
}

// SortedPair returns the two ids in normalized order.
func SortedPair(a, b string) []string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids
}
