package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"galleria/internal/auth"
	"galleria/internal/files"
	"galleria/internal/models"
	"galleria/internal/storage"
)

const testTokenSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	handler *Handler
	store   *storage.Storage
	files   *files.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewStorage(filepath.Join(dir, "store.json"))
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	if err := store.EnsureRoles(auth.RoleNames()); err != nil {
		t.Fatalf("EnsureRoles error: %v", err)
	}
	manager, err := files.NewManager(filepath.Join(dir, "uploads"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	tokens, err := auth.NewTokenManager(testTokenSecret, "galleria", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager error: %v", err)
	}
	return &testEnv{
		handler: NewHandler(store, tokens, manager),
		store:   store,
		files:   manager,
	}
}

func (e *testEnv) createUser(t *testing.T, username string, roles ...string) models.User {
	t.Helper()
	user, err := e.store.CreateUser(storage.CreateUserParams{
		Username: username,
		Email:    username + "@example.com",
		Password: "secret-pass",
		Roles:    roles,
	})
	if err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	return user
}

func (e *testEnv) createTheme(t *testing.T, name string, perms models.ThemePermissions) models.Theme {
	t.Helper()
	theme, err := e.store.CreateTheme(storage.CreateThemeParams{Name: name, Permissions: perms})
	if err != nil {
		t.Fatalf("CreateTheme error: %v", err)
	}
	return theme
}

func (e *testEnv) createCategory(t *testing.T, name string) models.Category {
	t.Helper()
	category, err := e.store.CreateCategory(storage.CreateCategoryParams{
		Name:          name,
		CoverImageURL: "/uploads/cover-" + name + ".png",
	})
	if err != nil {
		t.Fatalf("CreateCategory error: %v", err)
	}
	return category
}

func updateRoles(roles []string) storage.UserUpdate {
	return storage.UserUpdate{Roles: &roles}
}

// asUser attaches an authenticated user to the request the way the auth
// middleware would.
func asUser(r *http.Request, user models.User) *http.Request {
	return r.WithContext(ContextWithUser(r.Context(), user))
}

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// multipartRequest builds a multipart form request with string fields and
// optional named files (field -> filename -> content).
func multipartRequest(t *testing.T, method, target string, fields map[string]string, fileField, fileName, fileContent string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte(fileContent)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func uploadCount(t *testing.T, manager *files.Manager) int {
	t.Helper()
	entries, err := filepath.Glob(filepath.Join(manager.Dir(), "*"))
	if err != nil {
		t.Fatalf("glob uploads: %v", err)
	}
	return len(entries)
}
