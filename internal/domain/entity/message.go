package entity

import "time"

// Message is immutable once stored. Seq is the store-assigned position
// within its conversation and is the only valid ordering key.
type Message struct {
	ID             string    `json:"id" firestore:"id"`
	ConversationID string    `json:"conversation_id" firestore:"conversationId"`
	SenderID       string    `json:"sender_id" firestore:"senderId"`
	Text           string    `json:"text" firestore:"text"`
	Seq            int64     `json:"seq" firestore:"seq"`
	CreatedAt      time.Time `json:"created_at" firestore:"createdAt"`
}

// Before orders two messages of the same conversation.
func (m *Message) Before(other *Message) bool {
	if m.Seq != other.Seq {
		return m.Seq < other.Seq
	}
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}
