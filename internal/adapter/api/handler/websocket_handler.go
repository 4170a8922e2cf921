package handler

import (
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"campusmarket/internal/infrastructure/realtime"
	ws "campusmarket/internal/infrastructure/websocket"
	"campusmarket/internal/usecase"
	"campusmarket/pkg/errors"
	"campusmarket/pkg/logger"
	"campusmarket/pkg/response"
)

type WebSocketHandler struct {
	wsManager *ws.Manager
	resolver  *usecase.ConversationResolver
	messages  *usecase.MessageUseCase
	bus       realtime.Bus
	upgrader  gorillaws.Upgrader
}

func NewWebSocketHandler(
	wsManager *ws.Manager,
	resolver *usecase.ConversationResolver,
	messages *usecase.MessageUseCase,
	bus realtime.Bus,
	allowedOrigins []string,
) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager: wsManager,
		resolver:  resolver,
		messages:  messages,
		bus:       bus,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

// HandleWebSocket upgrades an authenticated request and serves the chat
// frame protocol on it until the client disconnects.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	userID, ok := c.Get("uid").(string)
	if !ok || userID == "" {
		return response.Error(c, errors.Unauthorized("Authentication required", nil))
	}

	session := usecase.NewClientSession(userID, h.resolver, h.messages, h.bus, usecase.DefaultBackoff)
	if err := session.Start(c.Request().Context()); err != nil {
		logger.Error("WebSocket: Failed to start session for %s: %v", userID, err)
		return response.Error(c, err)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		session.Close()
		logger.Error("WebSocket: Failed to upgrade connection for %s: %v", userID, err)
		return nil
	}

	go h.wsManager.Serve(ws.NewClient(conn, session))
	return nil
}

// checkOrigin allows every origin when none are configured.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
