package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	roomsCollection    = "chat_rooms"
	messagesCollection = "messages"
	usersCollection    = "users"
)

func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return client, nil
}

// EnsureIndexes creates the indexes the stores rely on. The unique index
// on pair_key is what makes concurrent find-or-create race-free.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(roomsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "pair_key", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("pair_key_unique"),
	})
	if err != nil {
		return err
	}
	_, err = db.Collection(messagesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("room_created_idx"),
	})
	if err != nil {
		return err
	}
	_, err = db.Collection(roomsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_ids", Value: 1}},
		Options: options.Index().SetName("user_ids_idx"),
	})
	return err
}
