package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"galleria/internal/auth"
	"galleria/internal/models"
	"galleria/internal/storage"
)

type themePermissionsPayload struct {
	Images bool `json:"images"`
	Videos bool `json:"videos"`
	Texts  bool `json:"texts"`
}

type createThemeRequest struct {
	Name        string                   `json:"name"`
	Permissions *themePermissionsPayload `json:"permissions"`
}

type updateThemeRequest struct {
	Name        *string                  `json:"name"`
	Permissions *themePermissionsPayload `json:"permissions"`
}

type themeResponse struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Permissions themePermissionsPayload `json:"permissions"`
	CreatedAt   string                  `json:"createdAt"`
	UpdatedAt   string                  `json:"updatedAt"`
}

func newThemeResponse(theme models.Theme) themeResponse {
	return themeResponse{
		ID:   theme.ID,
		Name: theme.Name,
		Permissions: themePermissionsPayload{
			Images: theme.Permissions.Images,
			Videos: theme.Permissions.Videos,
			Texts:  theme.Permissions.Texts,
		},
		CreatedAt: theme.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: theme.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func (h *Handler) Themes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := h.requireOperation(w, r, auth.OperationRead); !ok {
			return
		}
		themes := h.Store.ListThemes()
		response := make([]themeResponse, 0, len(themes))
		for _, theme := range themes {
			response = append(response, newThemeResponse(theme))
		}
		writeJSON(w, http.StatusOK, response)
	case http.MethodPost:
		if _, ok := h.requireOperation(w, r, auth.OperationWrite); !ok {
			return
		}
		var req createThemeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		params := storage.CreateThemeParams{Name: req.Name}
		if req.Permissions != nil {
			params.Permissions = models.ThemePermissions{
				Images: req.Permissions.Images,
				Videos: req.Permissions.Videos,
				Texts:  req.Permissions.Texts,
			}
		}
		theme, err := h.Store.CreateTheme(params)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, newThemeResponse(theme))
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (h *Handler) ThemeByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/themes/")
	if id == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("theme id missing"))
		return
	}
	if !requireID(w, id) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		if _, ok := h.requireOperation(w, r, auth.OperationRead); !ok {
			return
		}
		theme, ok := h.Store.GetTheme(id)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("theme %s not found", id))
			return
		}
		writeJSON(w, http.StatusOK, newThemeResponse(theme))
	case http.MethodPatch:
		if _, ok := h.requireOperation(w, r, auth.OperationWrite); !ok {
			return
		}
		var req updateThemeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		update := storage.ThemeUpdate{Name: req.Name}
		if req.Permissions != nil {
			permissions := models.ThemePermissions{
				Images: req.Permissions.Images,
				Videos: req.Permissions.Videos,
				Texts:  req.Permissions.Texts,
			}
			update.Permissions = &permissions
		}
		theme, err := h.Store.UpdateTheme(id, update)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newThemeResponse(theme))
	case http.MethodDelete:
		if _, ok := h.requireOperation(w, r, auth.OperationDelete); !ok {
			return
		}
		if err := h.Store.DeleteTheme(id); err != nil {
			writeStorageError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, PATCH, DELETE")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}
