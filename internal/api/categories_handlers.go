package api

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"galleria/internal/auth"
	"galleria/internal/files"
	"galleria/internal/models"
	"galleria/internal/policy"
	"galleria/internal/storage"
)

// maxUploadBytes bounds multipart memory and upload size for cover images
// and content media.
const maxUploadBytes = 32 << 20

type categoryResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	AllowsImages  bool   `json:"allowsImages"`
	AllowsVideos  bool   `json:"allowsVideos"`
	AllowsTexts   bool   `json:"allowsTexts"`
	CoverImageURL string `json:"coverImageUrl"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

func newCategoryResponse(category models.Category) categoryResponse {
	return categoryResponse{
		ID:            category.ID,
		Name:          category.Name,
		AllowsImages:  category.AllowsImages,
		AllowsVideos:  category.AllowsVideos,
		AllowsTexts:   category.AllowsTexts,
		CoverImageURL: category.CoverImageURL,
		CreatedAt:     category.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:     category.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func parseBoolField(form url.Values, key string) (bool, bool, error) {
	value := strings.TrimSpace(form.Get(key))
	if value == "" {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, false, fmt.Errorf("invalid %s value %q", key, value)
	}
	return parsed, true, nil
}

// formFile returns the named multipart file when present. A missing file is
// not an error; the caller decides whether it is required.
func formFile(r *http.Request, field string) (multipart.File, *multipart.FileHeader, error) {
	file, header, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return file, header, nil
}

func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := h.requireOperation(w, r, auth.OperationRead); !ok {
			return
		}
		categories := h.Store.ListCategories()
		response := make([]categoryResponse, 0, len(categories))
		for _, category := range categories {
			response = append(response, newCategoryResponse(category))
		}
		writeJSON(w, http.StatusOK, response)
	case http.MethodPost:
		h.createCategory(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

// createCategory receives multipart form data with a required cover image.
// Name uniqueness is checked before the file is adopted so a rejected
// request never leaves an orphaned upload.
func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireOperation(w, r, auth.OperationWrite); !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse form: %w", err))
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("name is required"))
		return
	}
	if err := policy.CheckUniqueName("category", name, "", h.categoryNameOwner()); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	allowsImages, _, err := parseBoolField(r.Form, "allowsImages")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	allowsVideos, _, err := parseBoolField(r.Form, "allowsVideos")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	allowsTexts, _, err := parseBoolField(r.Form, "allowsTexts")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	file, header, err := formFile(r, "image")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if file == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("cover image is required"))
		return
	}
	defer file.Close()

	ref, err := h.Files.Adopt(file, header.Filename)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.recorder().ObserveUploadEvent("adopted")

	category, err := h.Store.CreateCategory(storage.CreateCategoryParams{
		Name:          name,
		AllowsImages:  allowsImages,
		AllowsVideos:  allowsVideos,
		AllowsTexts:   allowsTexts,
		CoverImageURL: ref,
	})
	if err != nil {
		h.releaseFile(ref)
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCategoryResponse(category))
}

func (h *Handler) CategoryByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/categories/")
	if id == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("category id missing"))
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
		category, ok := h.Store.GetCategory(id)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("category %s not found", id))
			return
		}
		writeJSON(w, http.StatusOK, newCategoryResponse(category))
	case http.MethodPatch:
		h.updateCategory(w, r, id)
	case http.MethodDelete:
		h.deleteCategory(w, r, id)
	default:
		w.Header().Set("Allow", "GET, PATCH, DELETE")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

// updateCategory accepts multipart form data. All fields are optional; when
// a new cover image is supplied, the new file is adopted and persisted
// before the previous file is released, so a crash between the two steps
// leaves an orphan rather than a dangling record reference.
func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.requireOperation(w, r, auth.OperationWrite); !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse form: %w", err))
		return
	}

	previous, ok := h.Store.GetCategory(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("category %s not found", id))
		return
	}

	update := storage.CategoryUpdate{}
	if name := strings.TrimSpace(r.FormValue("name")); name != "" {
		if err := policy.CheckUniqueName("category", name, id, h.categoryNameOwner()); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		update.Name = &name
	}
	if value, set, err := parseBoolField(r.Form, "allowsImages"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	} else if set {
		update.AllowsImages = &value
	}
	if value, set, err := parseBoolField(r.Form, "allowsVideos"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	} else if set {
		update.AllowsVideos = &value
	}
	if value, set, err := parseBoolField(r.Form, "allowsTexts"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	} else if set {
		update.AllowsTexts = &value
	}

	file, header, err := formFile(r, "image")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var newRef string
	if file != nil {
		defer file.Close()
		newRef, err = h.Files.Adopt(file, header.Filename)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		h.recorder().ObserveUploadEvent("adopted")
		update.CoverImageURL = &newRef
	}

	category, err := h.Store.UpdateCategory(id, update)
	if err != nil {
		if newRef != "" {
			h.releaseFile(newRef)
		}
		writeStorageError(w, err)
		return
	}
	if newRef != "" && previous.CoverImageURL != "" && previous.CoverImageURL != newRef {
		h.releaseFile(previous.CoverImageURL)
	}
	writeJSON(w, http.StatusOK, newCategoryResponse(category))
}

// deleteCategory removes the record first and then releases the cover file.
// A failed file removal is logged and reported through metrics but never
// fails the request; the orphan sweep reclaims the file later.
func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.requireOperation(w, r, auth.OperationDelete); !ok {
		return
	}
	category, ok := h.Store.GetCategory(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("category %s not found", id))
		return
	}
	if err := h.Store.DeleteCategory(id); err != nil {
		writeStorageError(w, err)
		return
	}
	if category.CoverImageURL != "" {
		h.releaseFile(category.CoverImageURL)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) releaseFile(ref string) {
	switch h.Files.Release(ref) {
	case files.Failed:
		h.recorder().ObserveUploadEvent("release_failed")
	default:
		h.recorder().ObserveUploadEvent("released")
	}
}

func (h *Handler) categoryNameOwner() policy.NameOwner {
	return func(normalized string) (string, bool) {
		for _, category := range h.Store.ListCategories() {
			if policy.NormalizeName(category.Name) == normalized {
				return category.ID, true
			}
		}
		return "", false
	}
}
