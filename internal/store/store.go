package store

import (
	"context"
	"time"

	"github.com/mahaddinnagiyev/connectify-messenger/internal/model"
)

// RoomStore persists two-party rooms keyed by their unordered user pair.
type RoomStore interface {
	// FindOrCreate resolves the room for the unordered pair {userA, userB},
	// creating it when absent. The returned bool is true when a new room
	// was created. Safe under concurrent first-joins from both sides: the
	// pair key is unique and the loser re-reads the winner's row.
	FindOrCreate(ctx context.Context, userA, userB string) (*model.Room, bool, error)
	GetByID(ctx context.Context, roomID string) (*model.Room, error)
	ListForUser(ctx context.Context, userID string) ([]*model.Room, error)
}

// MessageStore persists messages. Inserted messages are immutable except
// for the status field, which only ever advances.
type MessageStore interface {
	Insert(ctx context.Context, m *model.Message) (*model.Message, error)
	GetByID(ctx context.Context, id string) (*model.Message, error)
	// ListForRoom returns messages in creation order ascending. A zero
	// before and non-positive limit return the full history.
	ListForRoom(ctx context.Context, roomID string, limit int64, before time.Time) ([]*model.Message, error)
	// LastMessage returns the most recent message, or nil when the room
	// has none.
	LastMessage(ctx context.Context, roomID string) (*model.Message, error)
	// UnreadCount counts messages in the room not authored by userID with
	// status short of read. Always computed from current store state.
	UnreadCount(ctx context.Context, roomID, userID string) (int64, error)
	// MarkRead advances every message in the room not authored by userID
	// to read. Idempotent; returns the number of messages advanced.
	MarkRead(ctx context.Context, roomID, userID string) (int64, error)
	// MarkDelivered advances sent messages not authored by userID to
	// delivered. Never regresses read messages.
	MarkDelivered(ctx context.Context, roomID, userID string) (int64, error)
}
