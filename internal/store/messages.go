package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mahaddinnagiyev/connectify-messenger/internal/apperr"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/model"
)

type MongoMessageStore struct {
	coll *mongo.Collection
}

func NewMongoMessageStore(db *mongo.Database) *MongoMessageStore {
	return &MongoMessageStore{coll: db.Collection(messagesCollection)}
}

func (s *MongoMessageStore) Insert(ctx context.Context, m *model.Message) (*model.Message, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = model.StatusSent
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	// weak parent reference: a missing parent is flagged, never an error
	if m.ParentMessageID != "" {
		n, err := s.coll.CountDocuments(ctx, bson.M{"_id": m.ParentMessageID})
		if err != nil {
			return nil, apperr.Internal("parent lookup: %v", err)
		}
		m.IsParentDeleted = n == 0
	}

	if _, err := s.coll.InsertOne(ctx, m); err != nil {
		return nil, apperr.Internal("message insert: %v", err)
	}
	return m, nil
}

func (s *MongoMessageStore) GetByID(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.NotFound("message %s", id)
		}
		return nil, apperr.Internal("message lookup: %v", err)
	}
	return &m, nil
}

func (s *MongoMessageStore) ListForRoom(ctx context.Context, roomID string, limit int64, before time.Time) ([]*model.Message, error) {
	filter := bson.M{"room_id": roomID}
	if !before.IsZero() {
		filter["created_at"] = bson.M{"$lt": before}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Internal("message list: %v", err)
	}
	defer cur.Close(ctx)

	out := []*model.Message{}
	for cur.Next(ctx) {
		var m model.Message
		if err := cur.Decode(&m); err != nil {
			return nil, apperr.Internal("message decode: %v", err)
		}
		out = append(out, &m)
	}
	if err := cur.Err(); err != nil {
		return nil, apperr.Internal("message cursor: %v", err)
	}
	// newest-first page, returned in chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *MongoMessageStore) LastMessage(ctx context.Context, roomID string) (*model.Message, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var m model.Message
	if err := s.coll.FindOne(ctx, bson.M{"room_id": roomID}, opts).Decode(&m); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, apperr.Internal("last message: %v", err)
	}
	return &m, nil
}

func (s *MongoMessageStore) UnreadCount(ctx context.Context, roomID, userID string) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{
		"room_id":   roomID,
		"sender_id": bson.M{"$ne": userID},
		"status":    bson.M{"$ne": model.StatusRead},
	})
	if err != nil {
		return 0, apperr.Internal("unread count: %v", err)
	}
	return n, nil
}

func (s *MongoMessageStore) MarkRead(ctx context.Context, roomID, userID string) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{
			"room_id":   roomID,
			"sender_id": bson.M{"$ne": userID},
			"status":    bson.M{"$ne": model.StatusRead},
		},
		bson.M{"$set": bson.M{"status": model.StatusRead, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return 0, apperr.Internal("mark read: %v", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoMessageStore) MarkDelivered(ctx context.Context, roomID, userID string) (int64, error) {
	// only sent -> delivered; read never regresses
	res, err := s.coll.UpdateMany(ctx,
		bson.M{
			"room_id":   roomID,
			"sender_id": bson.M{"$ne": userID},
			"status":    model.StatusSent,
		},
		bson.M{"$set": bson.M{"status": model.StatusDelivered, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return 0, apperr.Internal("mark delivered: %v", err)
	}
	return res.ModifiedCount, nil
}
