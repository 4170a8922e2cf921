package handler

import (
	"github.com/labstack/echo/v4"

	"campusmarket/pkg/errors"
	"campusmarket/pkg/response"
)

// TokenIssuer mints a bearer token for a uid.
type TokenIssuer interface {
	Issue(uid string) (string, error)
}

// DevTokenHandler hands out tokens for arbitrary uids. It is only routed in
// development.
type DevTokenHandler struct {
	issuer TokenIssuer
}

func NewDevTokenHandler(issuer TokenIssuer) *DevTokenHandler {
	return &DevTokenHandler{
		issuer: issuer,
	}
}

func (h *DevTokenHandler) GenerateUserToken(c echo.Context) error {
	uid := c.QueryParam("uid")
	if uid == "" {
		return response.Error(c, errors.BadRequest("uid is required", nil))
	}

	token, err := h.issuer.Issue(uid)
	if err != nil {
		return response.Error(c, errors.Internal("Failed to issue token", err))
	}

	return response.Success(c, map[string]interface{}{
		"token": token,
		"uid":   uid,
	})
}
