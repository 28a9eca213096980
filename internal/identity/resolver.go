package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mahaddinnagiyev/connectify-messenger/internal/apperr"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/model"
)

// Claims carried in the bearer credential.
type Claims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// Resolver is the identity collaborator: it validates a bearer credential
// and returns the non-sensitive user record behind it.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*model.User, error)
	// TouchLastSeen records activity on connect and disconnect.
	TouchLastSeen(ctx context.Context, userID string) error
}

// ParseBearer extracts the credential from an Authorization header value.
func ParseBearer(header string) (string, error) {
	if header == "" {
		return "", apperr.Unauthorized("missing token")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", apperr.Unauthorized("invalid authorization header")
	}
	return parts[1], nil
}

type MongoResolver struct {
	users  *mongo.Collection
	secret []byte
}

func NewMongoResolver(db *mongo.Database, secret string) *MongoResolver {
	return &MongoResolver{users: db.Collection("users"), secret: []byte(secret)}
}

func (r *MongoResolver) Resolve(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperr.Unauthorized("missing token")
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return r.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, apperr.Unauthorized("invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.ID == "" {
		return nil, apperr.Unauthorized("invalid token claims")
	}

	var user model.User
	if err := r.users.FindOne(ctx, bson.M{"_id": claims.ID}).Decode(&user); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.Unauthorized("user not found")
		}
		return nil, apperr.Internal("user lookup: %v", err)
	}
	return &user, nil
}

func (r *MongoResolver) TouchLastSeen(ctx context.Context, userID string) error {
	_, err := r.users.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"last_seen": time.Now().UTC()}},
	)
	return err
}
