package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestUploadFileServesStoredContent(t *testing.T) {
	env := newTestEnv(t)
	ref, err := env.files.Adopt(strings.NewReader("png-bytes"), "cover.png")
	if err != nil {
		t.Fatalf("Adopt error: %v", err)
	}

	rec := httptest.NewRecorder()
	env.handler.UploadFile(rec, httptest.NewRequest(http.MethodGet, ref, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "png-bytes" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestUploadFileUnknownNameIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.handler.UploadFile(rec, httptest.NewRequest(http.MethodGet, "/uploads/missing.png", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestUploadFileRejectsTraversal(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/uploads/", nil)
	req.URL.Path = "/uploads/../store.json"
	env.handler.UploadFile(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
