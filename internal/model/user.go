package model

import "time"

// User is the external identity record. It is read-only to the messaging
// core and already stripped of secret fields by the identity resolver.
type User struct {
	ID       string    `bson:"_id" json:"id"`
	Username string    `bson:"username" json:"username"`
	Banned   bool      `bson:"is_banned" json:"is_banned"`
	LastSeen time.Time `bson:"last_seen" json:"last_seen"`
}
