package storage

import (
	"context"

	"galleria/internal/models"
)

// Repository exposes the datastore operations required by API handlers and
// background workers.
type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(params CreateUserParams) (models.User, error)
	AuthenticateUser(email, password string) (models.User, error)
	ListUsers() []models.User
	GetUser(id string) (models.User, bool)
	FindUserByEmail(email string) (models.User, bool)
	UpdateUser(id string, update UserUpdate) (models.User, error)
	DeleteUser(id string) error

	ListRoles() []models.Role
	EnsureRoles(names []string) error
	EnsureAdminUser(username, email, password string) (models.User, bool, error)

	CreateTheme(params CreateThemeParams) (models.Theme, error)
	ListThemes() []models.Theme
	GetTheme(id string) (models.Theme, bool)
	UpdateTheme(id string, update ThemeUpdate) (models.Theme, error)
	DeleteTheme(id string) error

	CreateCategory(params CreateCategoryParams) (models.Category, error)
	ListCategories() []models.Category
	GetCategory(id string) (models.Category, bool)
	UpdateCategory(id string, update CategoryUpdate) (models.Category, error)
	DeleteCategory(id string) error

	CreateContent(params CreateContentParams) (models.Content, error)
	ListContents(themeID, categoryID string) []models.Content
	GetContent(id string) (models.Content, bool)
	UpdateContent(id string, update ContentUpdate) (models.Content, error)
	DeleteContent(id string) error

	ReferencedFiles() map[string]struct{}
}

// Ping reports storage health. The JSON store has no external dependency,
// so it only honors context cancellation.
func (s *Storage) Ping(ctx context.Context) error {
	return ctx.Err()
}

var _ Repository = (*Storage)(nil)
