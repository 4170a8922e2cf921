package entity

const EventMessageInserted = "message_inserted"

// MessageEvent is what the realtime bus carries. Participants lets a global
// subscriber filter to conversations it is entitled to see.
type MessageEvent struct {
	Type         string    `json:"type"`
	Message      *Message  `json:"message"`
	Participants [2]string `json:"participants"`
}

func NewMessageInserted(conv *Conversation, msg *Message) MessageEvent {
	return MessageEvent{
		Type:         EventMessageInserted,
		Message:      msg,
		Participants: [2]string{conv.BuyerID, conv.SellerID},
	}
}

func (e MessageEvent) ConversationID() string {
	if e.Message == nil {
		return ""
	}
	return e.Message.ConversationID
}

func (e MessageEvent) Involves(userID string) bool {
	return userID != "" && (e.Participants[0] == userID || e.Participants[1] == userID)
}

// Scope selects which events a subscription receives: one conversation,
// or every conversation the subscriber participates in.
type Scope struct {
	ConversationID string
	UserID         string
}

func ConversationScope(conversationID string) Scope {
	return Scope{ConversationID: conversationID}
}

func GlobalScope(userID string) Scope {
	return Scope{UserID: userID}
}

func (s Scope) IsGlobal() bool {
	return s.ConversationID == ""
}

// Matches applies the scope filter to an event.
func (s Scope) Matches(e MessageEvent) bool {
	if s.IsGlobal() {
		return e.Involves(s.UserID)
	}
	return e.ConversationID() == s.ConversationID
}

func (s Scope) String() string {
	if s.IsGlobal() {
		return "global:" + s.UserID
	}
	return "conversation:" + s.ConversationID
}
