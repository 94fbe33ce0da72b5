package auth

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
)

// RoleManager grants access to the catalogue pages.
const RoleManager = "MANAGER"

// ErrNotFound is returned by Repository when no manager has the username.
var ErrNotFound = errors.New("manager not found")

// Manager is a user allowed to sign in to the web application.
type Manager struct {
	Username     string
	PasswordHash string
	Roles        []string
}

// HasRole reports whether m holds role.
func (m Manager) HasRole(role string) bool {
	return slices.Contains(m.Roles, role)
}

// Repository provides lookup of managers by username.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*Manager, error)
}
