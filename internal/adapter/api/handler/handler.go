package handler

var (
	conversationHandler *ConversationHandler
	webSocketHandler    *WebSocketHandler
	healthHandler       *HealthHandler
	devTokenHandler     *DevTokenHandler
)

// Setup registers the handlers the routers pick up. devTokens may be nil.
func Setup(
	conversations *ConversationHandler,
	webSocket *WebSocketHandler,
	health *HealthHandler,
	devTokens *DevTokenHandler,
) {
	conversationHandler = conversations
	webSocketHandler = webSocket
	healthHandler = health
	devTokenHandler = devTokens
}

func GetConversationHandler() *ConversationHandler {
	return conversationHandler
}

func GetWebSocketHandler() *WebSocketHandler {
	return webSocketHandler
}

func GetHealthHandler() *HealthHandler {
	return healthHandler
}

func GetDevTokenHandler() *DevTokenHandler {
	return devTokenHandler
}
