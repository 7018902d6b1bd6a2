// Package data provides DB models and stores.
package data

import (
	"context" // Used for cancellation and timeouts
	"errors"  // Error handling
	"fmt"
	"time" // Timestamps

	"go.mongodb.org/mongo-driver/v2/bson"  // MongoDB document queries
	"go.mongodb.org/mongo-driver/v2/mongo" // MongoDB driver

	"github.com/PaulBabatuyi/pawchat/internal/normalize"
)

// UsersStore performs user DB operations.
type UsersStore struct {
	// coll is reference to "users" collection in MongoDB
	// Set via NewUsersStore() and used in all methods below
	coll *mongo.Collection
}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll} // Store reference to MongoDB collection
}

// CreateUser inserts a new user document with hashed password.
func (u *UsersStore) CreateUser(ctx context.Context, email, hashedPassword, displayName string) (*User, error) {
	now := storeTime(time.Now())
	user := &User{
		Email:       normalize.Email(email), // Stored normalized so lookups are case-insensitive
		Password:    hashedPassword,         // Already hashed by auth.HashPassword()
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now, // Initially same as CreatedAt
	}

	// InsertOne adds the document to MongoDB "users" collection
	result, err := u.coll.InsertOne(ctx, user)
	if err != nil {
		// Duplicate email hits the unique index created by db.CreateIndexes
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	// MongoDB auto-generates the _id field; it becomes the chat identity in JWTs
	user.ID = result.InsertedID.(bson.ObjectID)
	return user, nil
}

// GetUserByEmail finds a user by email.
func (u *UsersStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByID finds a user by its hex ObjectID.
func (u *UsersStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	oid, err := bson.ObjectIDFromHex(normalize.ID(id))
	if err != nil {
		return nil, ErrUserNotFound
	}

	var user User
	err = u.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&user)
	if err != nil {
		// No document found (user was deleted)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// LookupUsers resolves display info for a batch of user ids in one query.
// Malformed and unknown ids are skipped.
func (u *UsersStore) LookupUsers(ctx context.Context, ids []string) (map[string]UserSummary, error) {
	oids := make([]bson.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := bson.ObjectIDFromHex(normalize.ID(id)); err == nil {
			oids = append(oids, oid)
		}
	}
	out := make(map[string]UserSummary, len(oids))
	if len(oids) == 0 {
		return out, nil
	}

	cursor, err := u.coll.Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, fmt.Errorf("lookup users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []*User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	for _, user := range users {
		out[user.ID.Hex()] = user.Summary()
	}
	return out, nil
}
