package policy

import (
	"errors"
	"testing"

	"galleria/internal/models"
)

func TestCheckTheme(t *testing.T) {
	tests := []struct {
		name        string
		permissions models.ThemePermissions
		contentType models.ContentType
		allowed     bool
	}{
		{name: "images allowed", permissions: models.ThemePermissions{Images: true}, contentType: models.ContentTypeImage, allowed: true},
		{name: "videos denied by default", permissions: models.ThemePermissions{Images: true}, contentType: models.ContentTypeVideo, allowed: false},
		{name: "texts allowed", permissions: models.ThemePermissions{Texts: true}, contentType: models.ContentTypeText, allowed: true},
		{name: "all flags off", permissions: models.ThemePermissions{}, contentType: models.ContentTypeImage, allowed: false},
		{name: "unknown type denied", permissions: models.ThemePermissions{Images: true, Videos: true, Texts: true}, contentType: models.ContentType("audio"), allowed: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			theme := models.Theme{Name: "Nature", Permissions: tc.permissions}
			err := CheckTheme(theme, tc.contentType)
			if tc.allowed {
				if err != nil {
					t.Fatalf("CheckTheme error: %v", err)
				}
				return
			}
			var denied *ContentTypeNotAllowedError
			if !errors.As(err, &denied) {
				t.Fatalf("CheckTheme error = %v, want ContentTypeNotAllowedError", err)
			}
			if denied.ThemeName != "Nature" {
				t.Fatalf("denied theme = %q, want %q", denied.ThemeName, "Nature")
			}
		})
	}
}
