package users

import (
	"context"

	"github.com/google/uuid"
)

// Service handles user account management logic.
type Service struct {
	repo Repository
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// ChangeEmail moves the account to a new address. The verified flag is
// dropped by the store since the new address is unconfirmed.
func (s *Service) ChangeEmail(ctx context.Context, id uuid.UUID, email string) error {
	return s.repo.UpdateEmail(ctx, id, email)
}
