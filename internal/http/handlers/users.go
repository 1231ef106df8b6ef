package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/supportdesk/backend/internal/http/middleware"
	"github.com/supportdesk/backend/internal/models"
	"github.com/supportdesk/backend/internal/service"
)

type CreateUserRequest struct {
	Username   string      `json:"username" validate:"required,max=64"`
	Password   string      `json:"password" validate:"required"`
	FullName   string      `json:"full_name" validate:"required,max=200"`
	Role       models.Role `json:"role" validate:"required,oneof=client operator okk admin"`
	Department string      `json:"department" validate:"max=100"`
}

type UpdateUserRequest struct {
	ID         int64   `json:"id" validate:"required,gt=0"`
	Username   *string `json:"username" validate:"omitempty,max=64"`
	FullName   *string `json:"full_name" validate:"omitempty,max=200"`
	Department *string `json:"department" validate:"omitempty,max=100"`
	IsActive   *bool   `json:"is_active"`
	Password   *string `json:"password"`
}

// @Summary List accounts
// @Tags users
// @Produce json
// @Param X-Session-Token header string true "admin session token"
// @Success 200 {array} models.User
// @Failure 401 {object} ErrorBody
// @Failure 403 {object} ErrorBody
// @Router /api/users [get]
func (h *Handler) UsersList(c *gin.Context) {
	users, err := h.Services.Directory.List(c.Request.Context(), middleware.Principal(c))
	respond(c, h, http.StatusOK, users, err)
}

// @Summary Create account
// @Tags users
// @Accept json
// @Produce json
// @Param X-Session-Token header string true "admin session token"
// @Param request body CreateUserRequest true "account"
// @Success 201 {object} models.User
// @Failure 400 {object} ErrorBody
// @Failure 409 {object} ErrorBody
// @Router /api/users [post]
func (h *Handler) UsersCreate(c *gin.Context) {
	var req CreateUserRequest
	if !h.bind(c, &req) {
		return
	}
	u, err := h.Services.Directory.Create(c.Request.Context(), middleware.Principal(c), service.NewUser{
		Username:   req.Username,
		Password:   req.Password,
		FullName:   req.FullName,
		Role:       req.Role,
		Department: req.Department,
	})
	respond(c, h, http.StatusCreated, u, err)
}

// @Summary Update account
// @Description Role cannot be changed after creation
// @Tags users
// @Accept json
// @Produce json
// @Param X-Session-Token header string true "admin session token"
// @Param request body UpdateUserRequest true "changes"
// @Success 200 {object} models.User
// @Failure 400 {object} ErrorBody
// @Failure 404 {object} ErrorBody
// @Failure 409 {object} ErrorBody
// @Router /api/users [put]
func (h *Handler) UsersUpdate(c *gin.Context) {
	var req UpdateUserRequest
	if !h.bind(c, &req) {
		return
	}
	u, err := h.Services.Directory.Update(c.Request.Context(), middleware.Principal(c), req.ID, service.UserUpdate{
		Username:   req.Username,
		FullName:   req.FullName,
		Department: req.Department,
		IsActive:   req.IsActive,
		Password:   req.Password,
	})
	respond(c, h, http.StatusOK, u, err)
}
