package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// readMarker maps to read_markers collection, one document per
// (user, conversation).
type readMarker struct {
	UserID         string    `bson:"user_id"`
	ConversationID string    `bson:"conversation_id"`
	UnreadCount    int64     `bson:"unread_count"`
	LastReadAt     time.Time `bson:"last_read_at,omitempty"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

// MongoBackend stores counters in the read_markers collection.
type MongoBackend struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoBackend returns a backend over the read_markers collection. The
// unique (user_id, conversation_id) index from db.CreateIndexes is required.
func NewMongoBackend(coll *mongo.Collection) *MongoBackend {
	return &MongoBackend{coll: coll, now: time.Now}
}

func markerFilter(userID, conversationID string) bson.D {
	return bson.D{{Key: "user_id", Value: userID}, {Key: "conversation_id", Value: conversationID}}
}

// Increment bumps the counter with $inc, so concurrent deliveries never lose
// an update.
func (b *MongoBackend) Increment(ctx context.Context, userID, conversationID string) (int64, error) {
	update := bson.D{
		{Key: "$inc", Value: bson.D{{Key: "unread_count", Value: int64(1)}}},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: b.now().UTC()}}},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var m readMarker
	err := upsertRetry(func() error {
		return b.coll.FindOneAndUpdate(ctx, markerFilter(userID, conversationID), update, opts).Decode(&m)
	})
	if err != nil {
		return 0, fmt.Errorf("increment unread: %w", err)
	}
	return m.UnreadCount, nil
}

// Reset zeroes the counter and moves last_read_at forward with $max.
func (b *MongoBackend) Reset(ctx context.Context, userID, conversationID string, at time.Time) (bool, error) {
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "unread_count", Value: int64(0)},
			{Key: "updated_at", Value: b.now().UTC()},
		}},
		{Key: "$max", Value: bson.D{{Key: "last_read_at", Value: at}}},
	}
	// the previous document tells whether this call changed anything
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.Before)

	var prev readMarker
	err := upsertRetry(func() error {
		return b.coll.FindOneAndUpdate(ctx, markerFilter(userID, conversationID), update, opts).Decode(&prev)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		// no marker existed: first read of this conversation
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("reset unread: %w", err)
	}
	return prev.UnreadCount > 0 || prev.LastReadAt.IsZero(), nil
}

func (b *MongoBackend) Counts(ctx context.Context, userID string) (map[string]int64, error) {
	cursor, err := b.coll.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("find read markers: %w", err)
	}
	defer cursor.Close(ctx)

	var markers []readMarker
	if err := cursor.All(ctx, &markers); err != nil {
		return nil, fmt.Errorf("decode read markers: %w", err)
	}
	out := make(map[string]int64, len(markers))
	for _, m := range markers {
		out[m.ConversationID] = m.UnreadCount
	}
	return out, nil
}

// upsertRetry retries once when two upserts raced on the unique index; the
// second attempt finds the inserted document and updates it.
func upsertRetry(op func() error) error {
	err := op()
	if mongo.IsDuplicateKeyError(err) {
		err = op()
	}
	return err
}
