package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/vignex/escrow-engine/internal/domain"
)

// UserService defines the methods that the user handler requires from the
// service layer.
type UserService interface {
	Register(ctx context.Context, displayName string) (domain.User, error)
	Get(ctx context.Context, id string) (domain.User, error)
}

// UserHandler serves user registration and balance lookups.
type UserHandler struct {
	users  UserService
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler with the given service and logger.
func NewUserHandler(users UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

type registerRequest struct {
	DisplayName string `json:"display_name"`
}

type userResponse struct {
	ID              string `json:"id"`
	DisplayName     string `json:"display_name"`
	Balance         int64  `json:"balance"`
	ReservedBalance int64  `json:"reserved_balance"`
	CreatedAt       string `json:"created_at"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:              u.ID,
		DisplayName:     u.DisplayName,
		Balance:         u.Balance,
		ReservedBalance: u.ReservedBalance,
		CreatedAt:       u.CreatedAt.Format(time.RFC3339),
	}
}

// Register creates a new user.
// POST /api/users
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "display_name is required")
		return
	}

	u, err := h.users.Register(r.Context(), req.DisplayName)
	if err != nil {
		writeDomainError(w, r, h.logger, "register user", err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// Get returns a user and their balances.
// GET /api/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	u, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get user", err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}
