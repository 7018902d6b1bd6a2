package data

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MessagesStore provides message database operations.
type MessagesStore struct {
	// coll is reference to "messages" collection in MongoDB
	// Set via NewMessagesStore() and used in all methods below
	coll *mongo.Collection
}

// NewMessagesStore returns a MessagesStore using given collection.
func NewMessagesStore(coll *mongo.Collection) *MessagesStore {
	return &MessagesStore{coll: coll} // Store reference to MongoDB collection
}

// Insert stores a fully built message and populates its ID.
// Seq and CreatedAt must already be assigned by the owning conversation.
func (m *MessagesStore) Insert(ctx context.Context, msg *Message) error {
	// InsertOne adds the message document to MongoDB collection
	result, err := m.coll.InsertOne(ctx, msg)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	// Extract MongoDB's auto-generated _id and populate in struct
	// This ID is pushed to clients in messageReceived frames
	msg.ID = result.InsertedID.(bson.ObjectID)
	return nil
}

// ListByConversation returns every message of a conversation ordered oldest→newest.
func (m *MessagesStore) ListByConversation(ctx context.Context, conversationID bson.ObjectID) ([]*Message, error) {
	// seq is strictly increasing per conversation, so it is the ordering key;
	// the unique (conversation_id, seq) index serves this query
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})

	cursor, err := m.coll.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	// Ensure cursor is closed when done (cleanup)
	defer cursor.Close(ctx)

	// All() reads all documents from cursor and decodes into messages slice
	messages := []*Message{}
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return messages, nil
}
