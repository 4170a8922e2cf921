package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type HealthHandler struct {
	storeBackend string
	busBackend   string
}

func NewHealthHandler(storeBackend, busBackend string) *HealthHandler {
	return &HealthHandler{
		storeBackend: storeBackend,
		busBackend:   busBackend,
	}
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "Server is running",
		"store":  h.storeBackend,
		"bus":    h.busBackend,
		"time":   time.Now().Format(time.RFC3339),
	})
}
