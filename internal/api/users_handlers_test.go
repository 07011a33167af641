package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestUsersListRequiresReadRole(t *testing.T) {
	env := newTestEnv(t)
	reader := env.createUser(t, "reader", "reader")

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/users", nil), reader)
	rec := httptest.NewRecorder()
	env.handler.Users(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var listed []userResponse
	decodeBody(t, rec, &listed)
	if len(listed) != 1 {
		t.Fatalf("users = %d, want 1", len(listed))
	}
	if strings.Contains(rec.Body.String(), "passwordHash") {
		t.Fatal("response leaked password hash")
	}
}

func TestUserGetSelfOrAdmin(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice", "reader")
	bob := env.createUser(t, "bob", "reader")
	admin := env.createUser(t, "admin", "admin")

	// Self access allowed.
	req := asUser(httptest.NewRequest(http.MethodGet, "/api/users/"+alice.ID, nil), alice)
	rec := httptest.NewRecorder()
	env.handler.UserByID(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("self get status = %d", rec.Code)
	}

	// Another reader is refused.
	req = asUser(httptest.NewRequest(http.MethodGet, "/api/users/"+alice.ID, nil), bob)
	rec = httptest.NewRecorder()
	env.handler.UserByID(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("peer get status = %d, want 403", rec.Code)
	}

	// Admins may inspect anyone.
	req = asUser(httptest.NewRequest(http.MethodGet, "/api/users/"+alice.ID, nil), admin)
	rec = httptest.NewRecorder()
	env.handler.UserByID(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin get status = %d", rec.Code)
	}
}

func TestUserUpdateRoles(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice", "reader")
	admin := env.createUser(t, "admin", "admin")

	req := asUser(jsonRequest(t, http.MethodPatch, "/api/users/"+alice.ID, map[string]any{
		"roles": []string{"creator"},
	}), admin)
	rec := httptest.NewRecorder()
	env.handler.UserByID(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var updated userResponse
	decodeBody(t, rec, &updated)
	if len(updated.Roles) != 1 || updated.Roles[0] != "creator" {
		t.Fatalf("roles = %v, want [creator]", updated.Roles)
	}
}

func TestUserDeleteRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice", "reader")
	creator := env.createUser(t, "creator", "creator")
	admin := env.createUser(t, "admin", "admin")

	req := asUser(httptest.NewRequest(http.MethodDelete, "/api/users/"+alice.ID, nil), creator)
	rec := httptest.NewRecorder()
	env.handler.UserByID(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("creator delete status = %d, want 403", rec.Code)
	}

	req = asUser(httptest.NewRequest(http.MethodDelete, "/api/users/"+alice.ID, nil), admin)
	rec = httptest.NewRecorder()
	env.handler.UserByID(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin delete status = %d", rec.Code)
	}
}

func TestRolesEndpoint(t *testing.T) {
	env := newTestEnv(t)
	reader := env.createUser(t, "reader", "reader")

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/roles", nil), reader)
	rec := httptest.NewRecorder()
	env.handler.Roles(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var roles []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	decodeBody(t, rec, &roles)
	if len(roles) != 3 {
		t.Fatalf("roles = %d, want 3", len(roles))
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.handler.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
