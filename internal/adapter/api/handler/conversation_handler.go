package handler

import (
	"github.com/labstack/echo/v4"

	"campusmarket/internal/usecase"
	"campusmarket/pkg/response"
	"campusmarket/pkg/utils"
)

type ConversationHandler struct {
	resolver *usecase.ConversationResolver
	messages *usecase.MessageUseCase
}

func NewConversationHandler(resolver *usecase.ConversationResolver, messages *usecase.MessageUseCase) *ConversationHandler {
	return &ConversationHandler{
		resolver: resolver,
		messages: messages,
	}
}

type resolveConversationRequest struct {
	CounterpartyID string `json:"counterparty_id" validate:"required"`
	ListingID      string `json:"listing_id"`
}

// Text is not marked required: blank text gets the EMPTY_MESSAGE error.
type sendMessageRequest struct {
	Text string `json:"text" validate:"max=4000"`
}

// ResolveConversation returns the conversation with the counterparty,
// creating it on first contact.
func (h *ConversationHandler) ResolveConversation(c echo.Context) error {
	var req resolveConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	conversationID, err := h.resolver.Resolve(c.Request().Context(), userID, req.CounterpartyID, req.ListingID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"conversation_id": conversationID,
	})
}

// ListConversations returns the caller's inbox, newest first, one page at a
// time.
func (h *ConversationHandler) ListConversations(c echo.Context) error {
	userID := c.Get("uid").(string)
	pagination := utils.GetPaginationParams(c)

	conversations, err := h.messages.ListConversations(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	start, end := pagination.Bounds(len(conversations))
	return response.Success(c, conversations[start:end])
}

func (h *ConversationHandler) GetMessages(c echo.Context) error {
	userID := c.Get("uid").(string)

	messages, err := h.messages.History(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, messages)
}

func (h *ConversationHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	message, err := h.messages.Send(c.Request().Context(), c.Param("id"), userID, req.Text)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}
