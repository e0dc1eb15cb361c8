package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/vignex/escrow-engine/internal/clock"
	"github.com/vignex/escrow-engine/internal/domain"
)

// UserService registers users and exposes balance lookups. Balance movement
// itself belongs to the trade state machine; nothing here mutates balances
// after the initial grant.
type UserService struct {
	users           domain.UserStore
	clock           clock.Clock
	startingBalance int64
	logger          *slog.Logger
}

// NewUserService creates a UserService with all required dependencies.
func NewUserService(users domain.UserStore, clk clock.Clock, startingBalance int64, logger *slog.Logger) *UserService {
	return &UserService{
		users:           users,
		clock:           clk,
		startingBalance: startingBalance,
		logger:          logger,
	}
}

// Register creates a new user with the configured starting balance.
func (s *UserService) Register(ctx context.Context, displayName string) (domain.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return domain.User{}, fmt.Errorf("user_service: %w: display name required", domain.ErrPreconditionFailed)
	}

	u := domain.User{
		ID:          uuid.New().String(),
		DisplayName: displayName,
		Balance:     s.startingBalance,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return domain.User{}, fmt.Errorf("user_service: create: %w", err)
	}

	s.logger.InfoContext(ctx, "user_service: registered user",
		slog.String("user_id", u.ID),
		slog.String("display_name", u.DisplayName),
	)
	return u, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("user_service: get %q: %w", id, err)
	}
	return u, nil
}
