package data

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// User maps to users collection (id, email, password hash, profile basics)
type User struct {
	ID          bson.ObjectID `bson:"_id,omitempty"`
	Email       string        `bson:"email"`
	Password    string        `bson:"password"`
	DisplayName string        `bson:"display_name"`
	AvatarURL   string        `bson:"avatar_url,omitempty"`
	CreatedAt   time.Time     `bson:"created_at"`
	UpdatedAt   time.Time     `bson:"updated_at"`
}

// Summary returns the public display info of the user.
func (u *User) Summary() UserSummary {
	name := u.DisplayName
	if name == "" {
		// fall back to the local part of the email
		name, _, _ = strings.Cut(u.Email, "@")
	}
	return UserSummary{ID: u.ID.Hex(), DisplayName: name, AvatarURL: u.AvatarURL}
}

// UserSummary is what other participants get to see about a user.
type UserSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Conversation maps to conversations collection. One document per unordered
// pair of participants, enforced by the unique pair_key index.
type Conversation struct {
	ID                 bson.ObjectID `bson:"_id,omitempty" json:"id"`
	PairKey            string        `bson:"pair_key" json:"-"`
	Participants       []string      `bson:"participants" json:"participants"`
	ListingID          string        `bson:"listing_id,omitempty" json:"listingId,omitempty"`
	LastMessagePreview string        `bson:"last_message_preview" json:"lastMessagePreview"`
	LastSenderID       string        `bson:"last_sender_id,omitempty" json:"lastSenderId,omitempty"`
	LastSeq            int64         `bson:"last_seq" json:"lastSeq"`
	CreatedAt          time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt          time.Time     `bson:"updated_at" json:"updatedAt"`
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Others returns every participant except userID.
func (c *Conversation) Others(userID string) []string {
	out := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			out = append(out, p)
		}
	}
	return out
}

// Message maps to messages collection. A message belongs to exactly one
// conversation and is immutable once stored.
type Message struct {
	ID             bson.ObjectID `bson:"_id,omitempty" json:"id"`
	ConversationID bson.ObjectID `bson:"conversation_id" json:"conversationId"`
	Seq            int64         `bson:"seq" json:"seq"`
	SenderID       string        `bson:"sender_id" json:"senderId"`
	RecipientIDs   []string      `bson:"recipient_ids" json:"-"`
	Text           string        `bson:"text" json:"text"`
	CreatedAt      time.Time     `bson:"created_at" json:"createdAt"`
}
