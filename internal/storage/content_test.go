package storage

import (
	"errors"
	"testing"

	"galleria/internal/models"
	"galleria/internal/policy"
)

func createTestUser(t *testing.T, store *Storage) models.User {
	t.Helper()
	user, err := store.CreateUser(CreateUserParams{
		Username: "creator",
		Email:    "creator@example.com",
		Password: "secret-pass",
		Roles:    []string{"creator"},
	})
	if err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	return user
}

func createTestTheme(t *testing.T, store *Storage, name string, perms models.ThemePermissions) models.Theme {
	t.Helper()
	theme, err := store.CreateTheme(CreateThemeParams{Name: name, Permissions: perms})
	if err != nil {
		t.Fatalf("CreateTheme error: %v", err)
	}
	return theme
}

func createTestCategory(t *testing.T, store *Storage, name string) models.Category {
	t.Helper()
	category, err := store.CreateCategory(CreateCategoryParams{
		Name:          name,
		AllowsImages:  true,
		CoverImageURL: "/uploads/cover-" + name + ".png",
	})
	if err != nil {
		t.Fatalf("CreateCategory error: %v", err)
	}
	return category
}

func TestCreateThemeRejectsDuplicateName(t *testing.T) {
	store := newTestStore(t)
	createTestTheme(t, store, "Nature", models.ThemePermissions{})

	_, err := store.CreateTheme(CreateThemeParams{Name: " nature "})
	var dup *policy.DuplicateNameError
	if !errors.As(err, &dup) {
		t.Fatalf("CreateTheme error = %v, want DuplicateNameError", err)
	}
}

func TestUpdateThemeKeepsOwnName(t *testing.T) {
	store := newTestStore(t)
	theme := createTestTheme(t, store, "Nature", models.ThemePermissions{})

	name := "Nature"
	if _, err := store.UpdateTheme(theme.ID, ThemeUpdate{Name: &name}); err != nil {
		t.Fatalf("UpdateTheme with own name error: %v", err)
	}

	other := createTestTheme(t, store, "Travel", models.ThemePermissions{})
	taken := "NATURE"
	_, err := store.UpdateTheme(other.ID, ThemeUpdate{Name: &taken})
	var dup *policy.DuplicateNameError
	if !errors.As(err, &dup) {
		t.Fatalf("UpdateTheme error = %v, want DuplicateNameError", err)
	}
}

func TestUpdateThemePermissions(t *testing.T) {
	store := newTestStore(t)
	theme := createTestTheme(t, store, "Nature", models.ThemePermissions{})

	perms := models.ThemePermissions{Images: true, Texts: true}
	updated, err := store.UpdateTheme(theme.ID, ThemeUpdate{Permissions: &perms})
	if err != nil {
		t.Fatalf("UpdateTheme error: %v", err)
	}
	if !updated.Permissions.Images || updated.Permissions.Videos || !updated.Permissions.Texts {
		t.Fatalf("permissions = %+v", updated.Permissions)
	}
}

func TestDeleteThemeRefusesWhileContentRemains(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store)
	theme := createTestTheme(t, store, "Nature", models.ThemePermissions{Texts: true})
	category := createTestCategory(t, store, "Essays")

	content, err := store.CreateContent(CreateContentParams{
		Title:      "On Forests",
		Type:       models.ContentTypeText,
		Text:       "trees",
		ThemeID:    theme.ID,
		CategoryID: category.ID,
		UserID:     user.ID,
	})
	if err != nil {
		t.Fatalf("CreateContent error: %v", err)
	}

	if err := store.DeleteTheme(theme.ID); err == nil {
		t.Fatal("expected delete to fail while content references the theme")
	}

	if err := store.DeleteContent(content.ID); err != nil {
		t.Fatalf("DeleteContent error: %v", err)
	}
	if err := store.DeleteTheme(theme.ID); err != nil {
		t.Fatalf("DeleteTheme after content removal: %v", err)
	}
}

func TestCreateCategoryRequiresCover(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.CreateCategory(CreateCategoryParams{Name: "Essays"}); err == nil {
		t.Fatal("expected error without cover image")
	}
}

func TestCategoryNameUniqueness(t *testing.T) {
	store := newTestStore(t)
	createTestCategory(t, store, "Essays")

	_, err := store.CreateCategory(CreateCategoryParams{
		Name:          "ESSAYS",
		CoverImageURL: "/uploads/other.png",
	})
	var dup *policy.DuplicateNameError
	if !errors.As(err, &dup) {
		t.Fatalf("CreateCategory error = %v, want DuplicateNameError", err)
	}
}

func TestDeleteCategoryRefusesWhileContentRemains(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store)
	theme := createTestTheme(t, store, "Nature", models.ThemePermissions{Videos: true})
	category := createTestCategory(t, store, "Clips")

	if _, err := store.CreateContent(CreateContentParams{
		Title:      "River",
		Type:       models.ContentTypeVideo,
		URL:        "https://example.com/river",
		ThemeID:    theme.ID,
		CategoryID: category.ID,
		UserID:     user.ID,
	}); err != nil {
		t.Fatalf("CreateContent error: %v", err)
	}

	if err := store.DeleteCategory(category.ID); err == nil {
		t.Fatal("expected delete to fail while content references the category")
	}
}

func TestCreateContentValidatesReferences(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store)
	theme := createTestTheme(t, store, "Nature", models.ThemePermissions{Texts: true})
	category := createTestCategory(t, store, "Essays")

	tests := []struct {
		name   string
		params CreateContentParams
	}{
		{name: "unknown theme", params: CreateContentParams{Title: "x", Type: models.ContentTypeText, Text: "t", ThemeID: "missing", CategoryID: category.ID, UserID: user.ID}},
		{name: "unknown category", params: CreateContentParams{Title: "x", Type: models.ContentTypeText, Text: "t", ThemeID: theme.ID, CategoryID: "missing", UserID: user.ID}},
		{name: "unknown user", params: CreateContentParams{Title: "x", Type: models.ContentTypeText, Text: "t", ThemeID: theme.ID, CategoryID: category.ID, UserID: "missing"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := store.CreateContent(tc.params); !IsNotFound(err) {
				t.Fatalf("CreateContent error = %v, want NotFoundError", err)
			}
		})
	}
}

func TestListContentsFilters(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store)
	nature := createTestTheme(t, store, "Nature", models.ThemePermissions{Texts: true})
	travel := createTestTheme(t, store, "Travel", models.ThemePermissions{Texts: true})
	essays := createTestCategory(t, store, "Essays")
	notes := createTestCategory(t, store, "Notes")

	mk := func(title, themeID, categoryID string) {
		t.Helper()
		if _, err := store.CreateContent(CreateContentParams{
			Title: title, Type: models.ContentTypeText, Text: "t",
			ThemeID: themeID, CategoryID: categoryID, UserID: user.ID,
		}); err != nil {
			t.Fatalf("CreateContent error: %v", err)
		}
	}
	mk("a", nature.ID, essays.ID)
	mk("b", nature.ID, notes.ID)
	mk("c", travel.ID, essays.ID)

	if got := len(store.ListContents("", "")); got != 3 {
		t.Fatalf("unfiltered = %d, want 3", got)
	}
	if got := len(store.ListContents(nature.ID, "")); got != 2 {
		t.Fatalf("theme filter = %d, want 2", got)
	}
	if got := len(store.ListContents("", essays.ID)); got != 2 {
		t.Fatalf("category filter = %d, want 2", got)
	}
	if got := len(store.ListContents(nature.ID, essays.ID)); got != 1 {
		t.Fatalf("combined filter = %d, want 1", got)
	}
}

func TestUpdateContentRevalidatesReferences(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store)
	theme := createTestTheme(t, store, "Nature", models.ThemePermissions{Texts: true})
	category := createTestCategory(t, store, "Essays")

	content, err := store.CreateContent(CreateContentParams{
		Title: "x", Type: models.ContentTypeText, Text: "t",
		ThemeID: theme.ID, CategoryID: category.ID, UserID: user.ID,
	})
	if err != nil {
		t.Fatalf("CreateContent error: %v", err)
	}

	missing := "does-not-exist"
	if _, err := store.UpdateContent(content.ID, ContentUpdate{ThemeID: &missing}); !IsNotFound(err) {
		t.Fatalf("UpdateContent error = %v, want NotFoundError", err)
	}
}

func TestReferencedFiles(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store)
	theme := createTestTheme(t, store, "Nature", models.ThemePermissions{Images: true, Texts: true})
	category := createTestCategory(t, store, "Photos")

	image, err := store.CreateContent(CreateContentParams{
		Title: "Forest", Type: models.ContentTypeImage, Image: "/uploads/forest.png",
		ThemeID: theme.ID, CategoryID: category.ID, UserID: user.ID,
	})
	if err != nil {
		t.Fatalf("CreateContent error: %v", err)
	}
	if _, err := store.CreateContent(CreateContentParams{
		Title: "Note", Type: models.ContentTypeText, Text: "t",
		ThemeID: theme.ID, CategoryID: category.ID, UserID: user.ID,
	}); err != nil {
		t.Fatalf("CreateContent error: %v", err)
	}

	refs := store.ReferencedFiles()
	if _, ok := refs[category.CoverImageURL]; !ok {
		t.Fatalf("category cover missing from %v", refs)
	}
	if _, ok := refs[image.Image]; !ok {
		t.Fatalf("content image missing from %v", refs)
	}
	if len(refs) != 2 {
		t.Fatalf("refs = %v, want exactly cover and image", refs)
	}
}
