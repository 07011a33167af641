// Package policy holds the domain rules checked before content and entity
// writes reach storage: theme permission gating and name uniqueness.
package policy

import (
	"fmt"

	"galleria/internal/models"
)

// ContentTypeNotAllowedError reports that a theme's permission flags forbid
// the requested content type.
type ContentTypeNotAllowedError struct {
	ThemeName string
	Type      models.ContentType
}

func (e *ContentTypeNotAllowedError) Error() string {
	return fmt.Sprintf("theme does not allow %s content", e.Type)
}

// CheckTheme verifies the theme's permission flags admit content of the
// given type. Flags default to false, so a theme admits nothing until a
// flag is set explicitly.
func CheckTheme(theme models.Theme, contentType models.ContentType) error {
	if theme.Permissions.Allows(contentType) {
		return nil
	}
	return &ContentTypeNotAllowedError{ThemeName: theme.Name, Type: contentType}
}
