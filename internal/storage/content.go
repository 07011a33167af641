package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"galleria/internal/models"
	"galleria/internal/policy"
)

// CreateThemeParams captures the attributes settable when creating a theme.
// Permission flags default to false; a fresh theme admits no content.
type CreateThemeParams struct {
	Name        string
	Permissions models.ThemePermissions
}

func (s *Storage) CreateTheme(params CreateThemeParams) (models.Theme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Theme{}, errors.New("name is required")
	}
	if err := policy.CheckUniqueName("theme", name, "", themeNameOwner(s.data.Themes)); err != nil {
		return models.Theme{}, err
	}

	id, err := generateID()
	if err != nil {
		return models.Theme{}, err
	}

	now := time.Now().UTC()
	theme := models.Theme{
		ID:          id,
		Name:        name,
		Permissions: params.Permissions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.data.Themes[id] = theme
	if err := s.persist(); err != nil {
		delete(s.data.Themes, id)
		return models.Theme{}, err
	}

	return theme, nil
}

func (s *Storage) ListThemes() []models.Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()

	themes := make([]models.Theme, 0, len(s.data.Themes))
	for _, theme := range s.data.Themes {
		themes = append(themes, theme)
	}
	sort.Slice(themes, func(i, j int) bool { return themes[i].CreatedAt.Before(themes[j].CreatedAt) })
	return themes
}

func (s *Storage) GetTheme(id string) (models.Theme, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	theme, ok := s.data.Themes[id]
	return theme, ok
}

// ThemeUpdate represents the fields that can be modified for an existing theme.
type ThemeUpdate struct {
	Name        *string
	Permissions *models.ThemePermissions
}

func (s *Storage) UpdateTheme(id string, update ThemeUpdate) (models.Theme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	theme, ok := updatedData.Themes[id]
	if !ok {
		return models.Theme{}, &NotFoundError{Kind: "theme", ID: id}
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return models.Theme{}, errors.New("name cannot be empty")
		}
		if err := policy.CheckUniqueName("theme", name, id, themeNameOwner(updatedData.Themes)); err != nil {
			return models.Theme{}, err
		}
		theme.Name = name
	}

	if update.Permissions != nil {
		theme.Permissions = *update.Permissions
	}

	theme.UpdatedAt = time.Now().UTC()
	updatedData.Themes[id] = theme
	if err := s.persistDataset(updatedData); err != nil {
		return models.Theme{}, err
	}

	s.data = updatedData

	return theme, nil
}

func (s *Storage) DeleteTheme(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	if _, ok := updatedData.Themes[id]; !ok {
		return &NotFoundError{Kind: "theme", ID: id}
	}

	for _, content := range updatedData.Contents {
		if content.ThemeID == id {
			return fmt.Errorf("theme %s still has content; delete its content first", id)
		}
	}

	delete(updatedData.Themes, id)

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData

	return nil
}

// CreateCategoryParams captures the attributes settable when creating a
// category. CoverImageURL must already point at an adopted upload; the
// caller stores the file before the record.
type CreateCategoryParams struct {
	Name          string
	AllowsImages  bool
	AllowsVideos  bool
	AllowsTexts   bool
	CoverImageURL string
}

func (s *Storage) CreateCategory(params CreateCategoryParams) (models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Category{}, errors.New("name is required")
	}
	if strings.TrimSpace(params.CoverImageURL) == "" {
		return models.Category{}, errors.New("cover image is required")
	}
	if err := policy.CheckUniqueName("category", name, "", categoryNameOwner(s.data.Categories)); err != nil {
		return models.Category{}, err
	}

	id, err := generateID()
	if err != nil {
		return models.Category{}, err
	}

	now := time.Now().UTC()
	category := models.Category{
		ID:            id,
		Name:          name,
		AllowsImages:  params.AllowsImages,
		AllowsVideos:  params.AllowsVideos,
		AllowsTexts:   params.AllowsTexts,
		CoverImageURL: params.CoverImageURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.data.Categories[id] = category
	if err := s.persist(); err != nil {
		delete(s.data.Categories, id)
		return models.Category{}, err
	}

	return category, nil
}

func (s *Storage) ListCategories() []models.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]models.Category, 0, len(s.data.Categories))
	for _, category := range s.data.Categories {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool {
		return categories[i].CreatedAt.Before(categories[j].CreatedAt)
	})
	return categories
}

func (s *Storage) GetCategory(id string) (models.Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, ok := s.data.Categories[id]
	return category, ok
}

// CategoryUpdate represents the fields that can be modified for an existing
// category.
type CategoryUpdate struct {
	Name          *string
	AllowsImages  *bool
	AllowsVideos  *bool
	AllowsTexts   *bool
	CoverImageURL *string
}

func (s *Storage) UpdateCategory(id string, update CategoryUpdate) (models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	category, ok := updatedData.Categories[id]
	if !ok {
		return models.Category{}, &NotFoundError{Kind: "category", ID: id}
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return models.Category{}, errors.New("name cannot be empty")
		}
		if err := policy.CheckUniqueName("category", name, id, categoryNameOwner(updatedData.Categories)); err != nil {
			return models.Category{}, err
		}
		category.Name = name
	}

	if update.AllowsImages != nil {
		category.AllowsImages = *update.AllowsImages
	}
	if update.AllowsVideos != nil {
		category.AllowsVideos = *update.AllowsVideos
	}
	if update.AllowsTexts != nil {
		category.AllowsTexts = *update.AllowsTexts
	}
	if update.CoverImageURL != nil {
		if strings.TrimSpace(*update.CoverImageURL) == "" {
			return models.Category{}, errors.New("cover image cannot be empty")
		}
		category.CoverImageURL = *update.CoverImageURL
	}

	category.UpdatedAt = time.Now().UTC()
	updatedData.Categories[id] = category
	if err := s.persistDataset(updatedData); err != nil {
		return models.Category{}, err
	}

	s.data = updatedData

	return category, nil
}

func (s *Storage) DeleteCategory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	if _, ok := updatedData.Categories[id]; !ok {
		return &NotFoundError{Kind: "category", ID: id}
	}

	for _, content := range updatedData.Contents {
		if content.CategoryID == id {
			return fmt.Errorf("category %s still has content; delete its content first", id)
		}
	}

	delete(updatedData.Categories, id)

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData

	return nil
}

// CreateContentParams captures the attributes settable when creating a
// content record. Image holds an upload reference for image content; URL
// holds the media location for video content; Text carries the body for
// text content.
type CreateContentParams struct {
	Title      string
	Type       models.ContentType
	Image      string
	URL        string
	Text       string
	ThemeID    string
	CategoryID string
	UserID     string
}

func (s *Storage) CreateContent(params CreateContentParams) (models.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Content{}, errors.New("title is required")
	}
	if _, ok := s.data.Themes[params.ThemeID]; !ok {
		return models.Content{}, &NotFoundError{Kind: "theme", ID: params.ThemeID}
	}
	if _, ok := s.data.Categories[params.CategoryID]; !ok {
		return models.Content{}, &NotFoundError{Kind: "category", ID: params.CategoryID}
	}
	if params.UserID != "" {
		if _, ok := s.data.Users[params.UserID]; !ok {
			return models.Content{}, &NotFoundError{Kind: "user", ID: params.UserID}
		}
	}

	id, err := generateID()
	if err != nil {
		return models.Content{}, err
	}

	now := time.Now().UTC()
	content := models.Content{
		ID:         id,
		Title:      title,
		Type:       params.Type,
		Image:      params.Image,
		URL:        params.URL,
		Text:       params.Text,
		ThemeID:    params.ThemeID,
		CategoryID: params.CategoryID,
		UserID:     params.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.data.Contents[id] = content
	if err := s.persist(); err != nil {
		delete(s.data.Contents, id)
		return models.Content{}, err
	}

	return content, nil
}

// ListContents returns contents filtered by theme and category; empty
// filter values match everything.
func (s *Storage) ListContents(themeID, categoryID string) []models.Content {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contents := make([]models.Content, 0, len(s.data.Contents))
	for _, content := range s.data.Contents {
		if themeID != "" && content.ThemeID != themeID {
			continue
		}
		if categoryID != "" && content.CategoryID != categoryID {
			continue
		}
		contents = append(contents, content)
	}
	sort.Slice(contents, func(i, j int) bool { return contents[i].CreatedAt.Before(contents[j].CreatedAt) })
	return contents
}

func (s *Storage) GetContent(id string) (models.Content, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.data.Contents[id]
	return content, ok
}

// ContentUpdate represents the fields that can be modified for an existing
// content record.
type ContentUpdate struct {
	Title      *string
	Type       *models.ContentType
	Image      *string
	URL        *string
	Text       *string
	ThemeID    *string
	CategoryID *string
}

func (s *Storage) UpdateContent(id string, update ContentUpdate) (models.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	content, ok := updatedData.Contents[id]
	if !ok {
		return models.Content{}, &NotFoundError{Kind: "content", ID: id}
	}

	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return models.Content{}, errors.New("title cannot be empty")
		}
		content.Title = title
	}
	if update.Type != nil {
		content.Type = *update.Type
	}
	if update.Image != nil {
		content.Image = *update.Image
	}
	if update.URL != nil {
		content.URL = *update.URL
	}
	if update.Text != nil {
		content.Text = *update.Text
	}
	if update.ThemeID != nil {
		if _, ok := updatedData.Themes[*update.ThemeID]; !ok {
			return models.Content{}, &NotFoundError{Kind: "theme", ID: *update.ThemeID}
		}
		content.ThemeID = *update.ThemeID
	}
	if update.CategoryID != nil {
		if _, ok := updatedData.Categories[*update.CategoryID]; !ok {
			return models.Content{}, &NotFoundError{Kind: "category", ID: *update.CategoryID}
		}
		content.CategoryID = *update.CategoryID
	}

	content.UpdatedAt = time.Now().UTC()
	updatedData.Contents[id] = content
	if err := s.persistDataset(updatedData); err != nil {
		return models.Content{}, err
	}

	s.data = updatedData

	return content, nil
}

func (s *Storage) DeleteContent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	if _, ok := updatedData.Contents[id]; !ok {
		return &NotFoundError{Kind: "content", ID: id}
	}

	delete(updatedData.Contents, id)

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData

	return nil
}

// ReferencedFiles collects every upload reference held by a live record,
// for the orphan sweep.
func (s *Storage) ReferencedFiles() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make(map[string]struct{})
	for _, category := range s.data.Categories {
		if category.CoverImageURL != "" {
			refs[category.CoverImageURL] = struct{}{}
		}
	}
	for _, content := range s.data.Contents {
		if ref := content.FileRef(); ref != "" {
			refs[ref] = struct{}{}
		}
	}
	return refs
}
