package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/supportdesk/backend/internal/http/middleware"
	"github.com/supportdesk/backend/internal/models"
)

type AuthRequest struct {
	Action   string            `json:"action" validate:"required"`
	Username string            `json:"username"`
	Password string            `json:"password"`
	Status   models.UserStatus `json:"status"`
}

type LoginResponse struct {
	SessionToken string      `json:"session_token"`
	User         models.User `json:"user"`
}

type VerifyResponse struct {
	Valid bool         `json:"valid"`
	User  *models.User `json:"user,omitempty"`
}

// @Summary Session actions
// @Description login, verify, logout, update_status and get_operators, selected by the action field
// @Tags auth
// @Accept json
// @Produce json
// @Param X-Session-Token header string false "session token"
// @Param request body AuthRequest true "action payload"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorBody
// @Failure 401 {object} ErrorBody
// @Failure 429 {object} ErrorBody
// @Router /api/auth [post]
func (h *Handler) Auth(c *gin.Context) {
	var req AuthRequest
	if !h.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	token := c.GetHeader(middleware.SessionHeader)
	sessions := h.Services.Sessions

	switch req.Action {
	case "login":
		tok, u, err := sessions.Login(ctx, req.Username, req.Password, c.ClientIP())
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, LoginResponse{SessionToken: tok, User: u})

	case "verify":
		u, ok := sessions.Verify(ctx, token)
		if !ok {
			c.JSON(http.StatusOK, VerifyResponse{Valid: false})
			return
		}
		c.JSON(http.StatusOK, VerifyResponse{Valid: true, User: &u})

	case "logout":
		if err := sessions.Logout(ctx, token); err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})

	case "update_status":
		u, err := sessions.UpdateStatus(ctx, token, req.Status)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": u})

	case "get_operators":
		p, _, err := sessions.Authenticate(ctx, token)
		if err != nil {
			h.fail(c, err)
			return
		}
		staff, err := sessions.Staff(ctx, p)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, staff)

	default:
		unknownAction(c, req.Action)
	}
}

// @Summary Current user
// @Tags auth
// @Produce json
// @Param X-Session-Token header string true "session token"
// @Success 200 {object} map[string]any
// @Failure 401 {object} ErrorBody
// @Router /api/auth [get]
func (h *Handler) Me(c *gin.Context) {
	_, u, err := h.Services.Sessions.Authenticate(c.Request.Context(), c.GetHeader(middleware.SessionHeader))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}
