package api

import (
	"fmt"
	"net/http"
	"strings"

	"galleria/internal/auth"
	"galleria/internal/storage"
)

type updateUserRequest struct {
	Username *string   `json:"username"`
	Email    *string   `json:"email"`
	Password *string   `json:"password"`
	Roles    *[]string `json:"roles"`
}

func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := h.requireOperation(w, r, auth.OperationRead); !ok {
			return
		}
		users := h.Store.ListUsers()
		response := make([]userResponse, 0, len(users))
		for _, user := range users {
			response = append(response, newUserResponse(user))
		}
		writeJSON(w, http.StatusOK, response)
	case http.MethodPost:
		if _, ok := h.requireOperation(w, r, auth.OperationWrite); !ok {
			return
		}
		var req registerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		user, err := h.Store.CreateUser(storage.CreateUserParams{
			Username: req.Username,
			Email:    req.Email,
			Password: req.Password,
			Roles:    req.Roles,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, newUserResponse(user))
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (h *Handler) UserByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/users/")
	if id == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("user id missing"))
		return
	}
	if !requireID(w, id) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		requester, ok := h.requireOperation(w, r, auth.OperationRead)
		if !ok {
			return
		}
		if requester.ID != id && !requester.HasRole(auth.RoleAdmin) {
			writeError(w, http.StatusForbidden, fmt.Errorf("forbidden"))
			return
		}
		user, ok := h.Store.GetUser(id)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("user %s not found", id))
			return
		}
		writeJSON(w, http.StatusOK, newUserResponse(user))
	case http.MethodPatch:
		if _, ok := h.requireOperation(w, r, auth.OperationWrite); !ok {
			return
		}
		var req updateUserRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		update := storage.UserUpdate{
			Username: req.Username,
			Email:    req.Email,
			Password: req.Password,
		}
		if req.Roles != nil {
			rolesCopy := append([]string{}, (*req.Roles)...)
			update.Roles = &rolesCopy
		}
		user, err := h.Store.UpdateUser(id, update)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newUserResponse(user))
	case http.MethodDelete:
		if _, ok := h.requireOperation(w, r, auth.OperationDelete); !ok {
			return
		}
		if err := h.Store.DeleteUser(id); err != nil {
			writeStorageError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, PATCH, DELETE")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

// Roles lists the seeded role set.
func (h *Handler) Roles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	if _, ok := h.requireOperation(w, r, auth.OperationRead); !ok {
		return
	}
	roles := h.Store.ListRoles()
	type roleResponse struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	response := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		response = append(response, roleResponse{ID: role.ID, Name: role.Name})
	}
	writeJSON(w, http.StatusOK, response)
}
