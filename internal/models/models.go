package models

import (
	"fmt"
	"strings"
	"time"
)

// ContentType tags a content item and selects which payload field carries its
// body: image items reference an uploaded file, video items an external URL,
// and text items inline text.
type ContentType string

const (
	ContentTypeImage ContentType = "image"
	ContentTypeVideo ContentType = "video"
	ContentTypeText  ContentType = "text"
)

// ParseContentType normalizes and validates a content type tag.
func ParseContentType(value string) (ContentType, error) {
	switch ContentType(strings.ToLower(strings.TrimSpace(value))) {
	case ContentTypeImage:
		return ContentTypeImage, nil
	case ContentTypeVideo:
		return ContentTypeVideo, nil
	case ContentTypeText:
		return ContentTypeText, nil
	default:
		return "", fmt.Errorf("unknown content type %q", value)
	}
}

// String implements fmt.Stringer.
func (t ContentType) String() string {
	return string(t)
}

// Role is one of the closed set of role names seeded at startup. Names are
// unique within storage.
type Role struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Roles        []string  `json:"roles"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasRole reports whether the user has the provided role, ignoring case.
func (u User) HasRole(role string) bool {
	for _, existing := range u.Roles {
		if strings.EqualFold(existing, role) {
			return true
		}
	}
	return false
}

// ThemePermissions gates which content types may be attached to a theme.
// Flags default to false: attaching a media type requires explicit opt-in.
type ThemePermissions struct {
	Images bool `json:"images"`
	Videos bool `json:"videos"`
	Texts  bool `json:"texts"`
}

// Allows reports whether the permission flag for the given content type is set.
func (p ThemePermissions) Allows(t ContentType) bool {
	switch t {
	case ContentTypeImage:
		return p.Images
	case ContentTypeVideo:
		return p.Videos
	case ContentTypeText:
		return p.Texts
	default:
		return false
	}
}

type Theme struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Permissions ThemePermissions `json:"permissions"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Category groups content under a name with a mandatory cover image. The
// allows* flags are informational metadata surfaced to clients; the enforced
// media policy lives on themes.
type Category struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	AllowsImages  bool      `json:"allowsImages"`
	AllowsVideos  bool      `json:"allowsVideos"`
	AllowsTexts   bool      `json:"allowsTexts"`
	CoverImageURL string    `json:"coverImageUrl"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Content is a single entry attached to a theme and category. Exactly one of
// Image, URL, or Text carries the payload, matching Type.
type Content struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Type       ContentType `json:"type"`
	Image      string      `json:"image,omitempty"`
	URL        string      `json:"url,omitempty"`
	Text       string      `json:"text,omitempty"`
	ThemeID    string      `json:"themeId"`
	CategoryID string      `json:"categoryId"`
	UserID     string      `json:"userId"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// FileRef returns the stored file reference owned by the record, if any.
// Categories always own their cover; content items own a file only when they
// are image typed.
func (c Content) FileRef() string {
	if c.Type == ContentTypeImage {
		return c.Image
	}
	return ""
}
