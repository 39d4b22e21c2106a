package users

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User represents a user account. The hashed password never leaves the
// service layer; handlers expose View instead.
type User struct {
	ID             uuid.UUID
	Email          string
	HashedPassword string
	IsActive       bool
	IsSuperuser    bool
	IsVerified     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// View is the outward representation of a user account.
type View struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	IsActive    bool      `json:"is_active"`
	IsSuperuser bool      `json:"is_superuser"`
	IsVerified  bool      `json:"is_verified"`
}

// View returns the user without credential material.
func (u *User) View() View {
	return View{
		ID:          u.ID,
		Email:       u.Email,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
		IsVerified:  u.IsVerified,
	}
}

// NormalizeEmail canonicalizes an email for storage and lookup. Emails are
// compared case-insensitively, so the store only ever sees the folded form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
