package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/supportdesk/backend/internal/db"
	"github.com/supportdesk/backend/internal/errs"
	"github.com/supportdesk/backend/internal/service"
)

type Handler struct {
	Services  *service.Services
	Store     db.Repository
	Validator *validator.Validate
	Logger    zerolog.Logger
}

// ErrorBody is the envelope every failed request returns.
type ErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details any    `json:"details,omitempty"`
	} `json:"error"`
}

// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} ErrorBody
// @Router /healthz [get]
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

func statusFor(e *errs.Error) int {
	switch e.Kind {
	case errs.KindAuth:
		if e.Code == errs.ErrForbidden.Code {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// fail maps a service error onto the error envelope. Anything outside the
// domain taxonomy is logged and reported as INTERNAL without details.
func (h *Handler) fail(c *gin.Context, err error) {
	e, ok := errs.As(err)
	if !ok || e.Kind == errs.KindInternal {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(c, http.StatusGatewayTimeout, "TIMEOUT", "Request timed out", nil)
			return
		}
		h.Logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Internal error", nil)
		return
	}
	var details any
	if e.Field != "" {
		details = gin.H{"field": e.Field}
	}
	writeError(c, statusFor(e), e.Code, e.Error(), details)
}

// bind decodes and validates a JSON body, writing the error response itself.
func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return false
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return false
	}
	return true
}

func unknownAction(c *gin.Context, action string) {
	writeError(c, http.StatusBadRequest, "INVALID_ACTION", "Unknown action", gin.H{"action": action})
}
