package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/PaulBabatuyi/pawchat/internal/normalize"
)

// ConversationsStore is the MongoDB ConversationStore. Conversations live in
// their own collection; messages are delegated to a MessagesStore.
type ConversationsStore struct {
	coll *mongo.Collection
	msgs *MessagesStore
	now  func() time.Time

	// afterAdvance runs between the conversation update and the message
	// insert. Tests only.
	afterAdvance func()
}

// NewConversationsStore returns a store over the conversations collection
// and the messages store.
func NewConversationsStore(coll *mongo.Collection, msgs *MessagesStore) *ConversationsStore {
	return &ConversationsStore{coll: coll, msgs: msgs, now: time.Now}
}

// FindOrCreateConversation returns the conversation between userA and userB,
// creating it when the pair has none yet. The upsert on the unique pair_key
// makes concurrent calls converge on one document.
func (s *ConversationsStore) FindOrCreateConversation(ctx context.Context, userA, userB, listingID string) (*Conversation, error) {
	participants, key, err := pairParticipants(userA, userB)
	if err != nil {
		return nil, err
	}

	now := storeTime(s.now())
	// $setOnInsert only writes on creation: an existing conversation keeps
	// its listing reference and timestamps
	update := bson.D{{Key: "$setOnInsert", Value: bson.D{
		{Key: "participants", Value: participants},
		{Key: "listing_id", Value: normalize.ID(listingID)},
		{Key: "last_message_preview", Value: ""},
		{Key: "last_seq", Value: int64(0)},
		{Key: "created_at", Value: now},
		{Key: "updated_at", Value: now},
	}}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var conv Conversation
	err = s.coll.FindOneAndUpdate(ctx, bson.M{"pair_key": key}, update, opts).Decode(&conv)
	if mongo.IsDuplicateKeyError(err) {
		// a concurrent upsert for the same pair won; read its document
		err = s.coll.FindOne(ctx, bson.M{"pair_key": key}).Decode(&conv)
	}
	if err != nil {
		return nil, fmt.Errorf("find or create conversation: %w", err)
	}
	return &conv, nil
}

// GetConversation loads a conversation by its hex id.
func (s *ConversationsStore) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	id, err := bson.ObjectIDFromHex(normalize.ID(conversationID))
	if err != nil {
		// malformed ids can never match a document
		return nil, ErrConversationNotFound
	}

	var conv Conversation
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&conv); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations returns the user's conversations, most recently active first.
func (s *ConversationsStore) ListConversations(ctx context.Context, userID string) ([]*Conversation, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "updated_at", Value: -1},
		{Key: "_id", Value: -1},
	})

	cursor, err := s.coll.Find(ctx, bson.M{"participants": normalize.ID(userID)}, opts)
	if err != nil {
		return nil, fmt.Errorf("find conversations: %w", err)
	}
	defer cursor.Close(ctx)

	convs := []*Conversation{}
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	return convs, nil
}

// AppendMessage stores a message from senderID. The conversation document is
// updated first in one atomic operation that hands out the next seq, moves
// updated_at forward and refreshes the preview; the message takes its seq
// and timestamp from that result, so history order always matches seq order.
// The insert outlives ctx cancellation, and a failed insert puts the
// conversation back the way it was.
func (s *ConversationsStore) AppendMessage(ctx context.Context, conversationID, senderID, text string) (*Message, error) {
	body, err := prepareText(text)
	if err != nil {
		return nil, err
	}

	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	senderID = normalize.ID(senderID)
	if !conv.HasParticipant(senderID) {
		return nil, ErrNotAParticipant
	}

	now := storeTime(s.now())
	update := bson.D{
		{Key: "$inc", Value: bson.D{{Key: "last_seq", Value: int64(1)}}},
		// $max keeps updated_at non-decreasing even if the clock steps back
		{Key: "$max", Value: bson.D{{Key: "updated_at", Value: now}}},
		{Key: "$set", Value: bson.D{
			{Key: "last_message_preview", Value: normalize.Preview(body, PreviewLength)},
			{Key: "last_sender_id", Value: senderID},
		}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var before Conversation
	if err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": conv.ID}, update, opts).Decode(&before); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("advance conversation: %w", err)
	}
	if s.afterAdvance != nil {
		s.afterAdvance()
	}

	createdAt := storeTime(before.UpdatedAt)
	if now.After(createdAt) {
		createdAt = now
	}
	msg := &Message{
		ConversationID: before.ID,
		Seq:            before.LastSeq + 1,
		SenderID:       senderID,
		RecipientIDs:   before.Others(senderID),
		Text:           body,
		CreatedAt:      createdAt,
	}

	wctx := context.WithoutCancel(ctx)
	if err := s.msgs.Insert(wctx, msg); err != nil {
		if rerr := s.rewind(wctx, &before, msg.Seq); rerr != nil {
			return nil, fmt.Errorf("%w (rewind conversation: %v)", err, rerr)
		}
		return nil, err
	}
	return msg, nil
}

// rewind restores the conversation fields an append changed, provided no
// later append has moved last_seq past seq.
func (s *ConversationsStore) rewind(ctx context.Context, before *Conversation, seq int64) error {
	filter := bson.M{"_id": before.ID, "last_seq": seq}
	restore := bson.D{{Key: "$set", Value: bson.D{
		{Key: "last_seq", Value: before.LastSeq},
		{Key: "updated_at", Value: before.UpdatedAt},
		{Key: "last_message_preview", Value: before.LastMessagePreview},
		{Key: "last_sender_id", Value: before.LastSenderID},
	}}}
	_, err := s.coll.UpdateOne(ctx, filter, restore)
	return err
}

// ListMessages returns the conversation history for a participant.
func (s *ConversationsStore) ListMessages(ctx context.Context, conversationID, requesterID string) ([]*Message, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(normalize.ID(requesterID)) {
		return nil, ErrNotAParticipant
	}
	return s.msgs.ListByConversation(ctx, conv.ID)
}
