package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mahaddinnagiyev/connectify-messenger/internal/apperr"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/model"
)

type MongoRoomStore struct {
	coll *mongo.Collection
}

func NewMongoRoomStore(db *mongo.Database) *MongoRoomStore {
	return &MongoRoomStore{coll: db.Collection(roomsCollection)}
}

func (s *MongoRoomStore) FindOrCreate(ctx context.Context, userA, userB string) (*model.Room, bool, error) {
	key, err := model.PairKey(userA, userB)
	if err != nil {
		return nil, false, err
	}

	var existing model.Room
	err = s.coll.FindOne(ctx, bson.M{"pair_key": key}).Decode(&existing)
	if err == nil {
		return &existing, false, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, false, apperr.Internal("room lookup: %v", err)
	}

	room := &model.Room{
		ID:        uuid.NewString(),
		PairKey:   key,
		UserIDs:   model.SortedPair(userA, userB),
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.coll.InsertOne(ctx, room); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// lost the race; the winner's row is authoritative
			var won model.Room
			if err := s.coll.FindOne(ctx, bson.M{"pair_key": key}).Decode(&won); err != nil {
				return nil, false, apperr.Internal("room re-read after duplicate: %v", err)
			}
			return &won, false, nil
		}
		return nil, false, apperr.Internal("room create: %v", err)
	}
	return room, true, nil
}

func (s *MongoRoomStore) GetByID(ctx context.Context, roomID string) (*model.Room, error) {
	if roomID == "" {
		return nil, apperr.BadRequest("missing room id")
	}
	var room model.Room
	if err := s.coll.FindOne(ctx, bson.M{"_id": roomID}).Decode(&room); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.NotFound("chat room %s", roomID)
		}
		return nil, apperr.Internal("room lookup: %v", err)
	}
	return &room, nil
}

func (s *MongoRoomStore) ListForUser(ctx context.Context, userID string) ([]*model.Room, error) {
	cur, err := s.coll.Find(ctx, bson.M{"user_ids": userID})
	if err != nil {
		return nil, apperr.Internal("room list: %v", err)
	}
	defer cur.Close(ctx)

	out := []*model.Room{}
	for cur.Next(ctx) {
		var r model.Room
		if err := cur.Decode(&r); err != nil {
			return nil, apperr.Internal("room decode: %v", err)
		}
		out = append(out, &r)
	}
	return out, cur.Err()
}
