package entity

import (
	"strings"
	"time"
)

// Conversation is the two-party thread between a buyer and a seller,
// optionally scoped to one listing.
type Conversation struct {
	ID           string    `json:"id" firestore:"id"`
	ListingID    string    `json:"listing_id" firestore:"listingId"`
	BuyerID      string    `json:"buyer_id" firestore:"buyerId"`
	SellerID     string    `json:"seller_id" firestore:"sellerId"`
	Participants []string  `json:"-" firestore:"participants"`
	Key          string    `json:"-" firestore:"key"`
	MessageCount int64     `json:"-" firestore:"messageCount"`
	CreatedAt    time.Time `json:"created_at" firestore:"createdAt"`
}

// HasParticipant reports whether userID is the buyer or the seller.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.BuyerID == userID || c.SellerID == userID)
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID string) string {
	if c.BuyerID == userID {
		return c.SellerID
	}
	return c.BuyerID
}

// Involves reports whether the conversation is between a and b, in either role.
func (c *Conversation) Involves(a, b string) bool {
	return (c.BuyerID == a && c.SellerID == b) || (c.BuyerID == b && c.SellerID == a)
}

// ConversationKey is the canonical uniqueness key for a participant pair.
// An empty listingID yields the pair-scoped key.
func ConversationKey(listingID, a, b string) string {
	if b < a {
		a, b = b, a
	}
	if listingID == "" {
		listingID = "*"
	}
	return strings.Join([]string{listingID, a, b}, "|")
}
