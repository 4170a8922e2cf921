package websocket

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sort"
	"time"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/usecase"
	"campusmarket/pkg/errors"
	"campusmarket/pkg/logger"
)

// Client to server frame types
const (
	MessageTypePing              = "ping"
	MessageTypeOpenConversation  = "open_conversation"
	MessageTypeCloseConversation = "close_conversation"
	MessageTypeSendMessage       = "send_message"
	MessageTypeResolve           = "resolve_conversation"
	MessageTypeClearUnread       = "clear_unread"
	MessageTypeGetUnread         = "get_unread"
)

// Server to client frame types
const (
	MessageTypePong         = "pong"
	MessageTypeHistory      = "history"
	// A message frame is pushed as soon as the message is seen. A message
	// that arrives late is pushed after ones with a higher seq, so clients
	// insert by seq instead of appending.
	MessageTypeMessage      = "message"
	MessageTypeSendAck      = "send_ack"
	MessageTypeSendFailed   = "send_failed"
	MessageTypeUnreadUpdate = "unread_update"
	MessageTypeResolved     = "conversation_resolved"
	MessageTypeError        = "error"
)

type WSMessage struct {
	Type           string      `json:"type"`
	Data           interface{} `json:"data,omitempty"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Timestamp      string      `json:"timestamp"`
}

type SendMessageData struct {
	TempID string `json:"temp_id"`
	Text   string `json:"text"`
}

type ResolveData struct {
	CounterpartyID string `json:"counterparty_id"`
	ListingID      string `json:"listing_id"`
}

type HistoryData struct {
	Messages []*entity.Message `json:"messages"`
}

type SendAckData struct {
	TempID  string          `json:"temp_id"`
	Message *entity.Message `json:"message"`
}

type SendFailedData struct {
	TempID  string `json:"temp_id"`
	Text    string `json:"text"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type UnreadData struct {
	Counts map[string]int `json:"counts"`
	Badge  int            `json:"badge"`
}

type ResolvedData struct {
	ConversationID string `json:"conversation_id"`
	CounterpartyID string `json:"counterparty_id"`
	ListingID      string `json:"listing_id,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newFrame(frameType, conversationID string, data interface{}) WSMessage {
	return WSMessage{
		Type:           frameType,
		Data:           data,
		ConversationID: conversationID,
		Timestamp:      time.Now().Format(time.RFC3339),
	}
}

// HandleClientMessage processes one frame from the client.
func (m *Manager) HandleClientMessage(client *Client, messageBytes []byte) {
	var wsMessage WSMessage
	if err := json.Unmarshal(messageBytes, &wsMessage); err != nil {
		logger.Warn("WebSocket: Failed to unmarshal message from client %s: %v", client.UserID, err)
		m.sendErrorToClient(client, "", errors.BadRequest("Invalid message format", err))
		return
	}

	switch wsMessage.Type {
	case MessageTypePing:
		client.enqueue(newFrame(MessageTypePong, "", map[string]string{"status": "alive"}))

	case MessageTypeOpenConversation:
		m.handleOpenConversation(client, wsMessage.ConversationID)

	case MessageTypeCloseConversation:
		m.handleCloseConversation(client, wsMessage.ConversationID)

	case MessageTypeSendMessage:
		m.handleSendMessage(client, wsMessage)

	case MessageTypeResolve:
		m.handleResolve(client, wsMessage)

	case MessageTypeClearUnread:
		client.Session.ClearUnread(wsMessage.ConversationID)

	case MessageTypeGetUnread:
		client.sendUnread()

	default:
		logger.Warn("WebSocket: Unknown message type '%s' from client %s", wsMessage.Type, client.UserID)
		m.sendErrorToClient(client, wsMessage.ConversationID, errors.BadRequest("Unknown message type", nil))
	}
}

func (m *Manager) handleOpenConversation(client *Client, conversationID string) {
	if conversationID == "" {
		m.sendErrorToClient(client, "", errors.BadRequest("conversation_id is required", nil))
		return
	}

	session, err := client.Session.OpenSession(client.ctx, conversationID)
	if err != nil {
		m.sendErrorToClient(client, conversationID, err)
		return
	}

	client.mutex.Lock()
	if _, following := client.followers[conversationID]; following {
		client.mutex.Unlock()
		client.enqueue(newFrame(MessageTypeHistory, conversationID, HistoryData{Messages: session.Messages()}))
		return
	}
	ctx, cancel := context.WithCancel(client.ctx)
	client.followers[conversationID] = cancel
	client.mutex.Unlock()

	history := session.Messages()
	client.enqueue(newFrame(MessageTypeHistory, conversationID, HistoryData{Messages: history}))
	go client.follow(ctx, session, history)
}

func (m *Manager) handleCloseConversation(client *Client, conversationID string) {
	client.mutex.Lock()
	if cancel, ok := client.followers[conversationID]; ok {
		cancel()
		delete(client.followers, conversationID)
	}
	client.mutex.Unlock()

	client.Session.CloseSession(conversationID)
}

func (m *Manager) handleSendMessage(client *Client, wsMessage WSMessage) {
	var data SendMessageData
	if err := decodeData(wsMessage.Data, &data); err != nil {
		m.sendErrorToClient(client, wsMessage.ConversationID, errors.BadRequest("Invalid send message format", err))
		return
	}

	message, err := client.Session.Send(client.ctx, wsMessage.ConversationID, data.Text)
	if err != nil {
		text, ok := errors.UnsentText(err)
		if !ok {
			text = data.Text
		}
		client.enqueue(newFrame(MessageTypeSendFailed, wsMessage.ConversationID, SendFailedData{
			TempID:  data.TempID,
			Text:    text,
			Code:    errors.Code(err),
			Message: errorMessage(err),
		}))
		return
	}

	client.enqueue(newFrame(MessageTypeSendAck, wsMessage.ConversationID, SendAckData{
		TempID:  data.TempID,
		Message: message,
	}))
}

func (m *Manager) handleResolve(client *Client, wsMessage WSMessage) {
	var data ResolveData
	if err := decodeData(wsMessage.Data, &data); err != nil {
		m.sendErrorToClient(client, "", errors.BadRequest("Invalid resolve format", err))
		return
	}

	conversationID, err := client.Session.ResolveConversation(client.ctx, data.CounterpartyID, data.ListingID)
	if err != nil {
		m.sendErrorToClient(client, "", err)
		return
	}

	client.enqueue(newFrame(MessageTypeResolved, conversationID, ResolvedData{
		ConversationID: conversationID,
		CounterpartyID: data.CounterpartyID,
		ListingID:      data.ListingID,
	}))
}

// follow pushes every message the session learns about after the history
// frame.
func (c *Client) follow(ctx context.Context, session *usecase.StreamSession, history []*entity.Message) {
	sent := make(map[string]struct{}, len(history))
	for _, message := range history {
		sent[message.ID] = struct{}{}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-session.Done():
			return
		case <-session.Updates():
			for _, message := range unsent(session.Messages(), sent) {
				c.enqueue(newFrame(MessageTypeMessage, message.ConversationID, message))
			}
		}
	}
}

// unsent returns the messages not pushed yet, in seq order, and marks them
// as sent.
func unsent(messages []*entity.Message, sent map[string]struct{}) []*entity.Message {
	var out []*entity.Message
	for _, message := range messages {
		if _, ok := sent[message.ID]; ok {
			continue
		}
		sent[message.ID] = struct{}{}
		out = append(out, message)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Before(out[j])
	})
	return out
}

func (c *Client) watchUnread() {
	tracker := c.Session.Unread()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-tracker.Changes():
			c.sendUnread()
		}
	}
}

func (c *Client) sendUnread() {
	tracker := c.Session.Unread()
	c.enqueue(newFrame(MessageTypeUnreadUpdate, "", UnreadData{
		Counts: tracker.Snapshot(),
		Badge:  tracker.Badge(),
	}))
}

func (m *Manager) sendErrorToClient(client *Client, conversationID string, err error) {
	client.enqueue(newFrame(MessageTypeError, conversationID, ErrorData{
		Code:    errors.Code(err),
		Message: errorMessage(err),
	}))
}

func errorMessage(err error) string {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return "Internal server error"
}

func decodeData(data interface{}, v interface{}) error {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(dataBytes, v)
}
