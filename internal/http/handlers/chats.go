package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/supportdesk/backend/internal/errs"
	"github.com/supportdesk/backend/internal/http/middleware"
	"github.com/supportdesk/backend/internal/models"
	"github.com/supportdesk/backend/internal/service"
)

// ChatRequest carries every chat action; which fields are read depends on Action.
type ChatRequest struct {
	Action       string            `json:"action" validate:"required"`
	ChatID       int64             `json:"chat_id" validate:"gte=0"`
	ClientName   string            `json:"client_name" validate:"max=200"`
	ClientEmail  *string           `json:"client_email" validate:"omitempty,email"`
	SenderType   models.SenderType `json:"sender_type"`
	SenderID     *int64            `json:"sender_id"`
	MessageText  string            `json:"message_text"`
	ToOperatorID *int64            `json:"to_operator_id"`
	OperatorID   *int64            `json:"operator_id"`
	NoteText     string            `json:"note_text"`
	QCUserID     *int64            `json:"qc_user_id"`
	Score        *int              `json:"score"`
	Comment      *string           `json:"comment"`
}

// @Summary List chats
// @Description Newest activity first, optionally filtered by status
// @Tags chats
// @Produce json
// @Param X-Session-Token header string true "session token"
// @Param status query string false "waiting, active, closed or all"
// @Success 200 {array} models.ChatSummary
// @Failure 400 {object} ErrorBody
// @Failure 403 {object} ErrorBody
// @Router /api/chats [get]
func (h *Handler) ChatsList(c *gin.Context) {
	chats, err := h.Services.Chats.ListChats(c.Request.Context(), middleware.Principal(c), c.Query("status"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

// @Summary Chat actions
// @Description create_chat, get_messages, send_message, close_chat, escalate_chat, add_note, get_notes, add_qc_rating, get_qc_ratings and mark_read
// @Tags chats
// @Accept json
// @Produce json
// @Param X-Session-Token header string false "session token, optional for clients"
// @Param request body ChatRequest true "action payload"
// @Success 200 {object} map[string]any
// @Failure 400 {object} ErrorBody
// @Failure 403 {object} ErrorBody
// @Failure 404 {object} ErrorBody
// @Failure 409 {object} ErrorBody
// @Router /api/chats [post]
func (h *Handler) ChatsAction(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if req.ClientEmail != nil && strings.TrimSpace(*req.ClientEmail) == "" {
		req.ClientEmail = nil
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	ctx := c.Request.Context()
	p := middleware.Principal(c)
	needChat := func() bool {
		if req.ChatID == 0 {
			h.fail(c, errs.Empty("chat_id"))
			return false
		}
		return true
	}

	switch req.Action {
	case "create_chat":
		chat, err := h.Services.Chats.CreateChat(ctx, p, req.ClientName, req.ClientEmail)
		respond(c, h, http.StatusCreated, chat, err)

	case "get_messages":
		if !needChat() {
			return
		}
		msgs, err := h.Services.Chats.GetMessages(ctx, p, req.ChatID)
		respond(c, h, http.StatusOK, msgs, err)

	case "send_message":
		if !needChat() {
			return
		}
		msg, err := h.Services.Chats.SendMessage(ctx, p, req.ChatID, req.SenderType, req.SenderID, req.MessageText)
		respond(c, h, http.StatusCreated, msg, err)

	case "mark_read":
		if !needChat() {
			return
		}
		n, err := h.Services.Chats.MarkRead(ctx, p, req.ChatID)
		respond(c, h, http.StatusOK, gin.H{"updated": n}, err)

	case "close_chat":
		if !needChat() {
			return
		}
		chat, err := h.Services.Assignment.Close(ctx, p, req.ChatID)
		respond(c, h, http.StatusOK, chat, err)

	case "escalate_chat":
		if !needChat() {
			return
		}
		chat, err := h.Services.Assignment.Escalate(ctx, p, req.ChatID, req.ToOperatorID)
		respond(c, h, http.StatusOK, chat, err)

	case "add_note":
		if !needChat() {
			return
		}
		note, err := h.Services.Assignment.AddNote(ctx, p, req.ChatID, req.OperatorID, req.NoteText)
		respond(c, h, http.StatusCreated, note, err)

	case "get_notes":
		if !needChat() {
			return
		}
		notes, err := h.Services.Assignment.ListNotes(ctx, p, req.ChatID)
		respond(c, h, http.StatusOK, notes, err)

	case "add_qc_rating":
		if !needChat() {
			return
		}
		if req.Score == nil {
			h.fail(c, errs.Empty("score"))
			return
		}
		in := service.RatingInput{
			ChatID:   req.ChatID,
			QCUserID: req.QCUserID,
			Score:    *req.Score,
			Comment:  req.Comment,
		}
		if req.OperatorID != nil {
			in.OperatorID = *req.OperatorID
		}
		r, err := h.Services.Ratings.AddRating(ctx, p, in)
		respond(c, h, http.StatusCreated, r, err)

	case "get_qc_ratings":
		ratings, err := h.Services.Ratings.ListRatings(ctx, p, req.OperatorID)
		respond(c, h, http.StatusOK, ratings, err)

	default:
		unknownAction(c, req.Action)
	}
}

func respond(c *gin.Context, h *Handler, status int, body any, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, body)
}
