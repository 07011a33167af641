package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"galleria/internal/auth"
	"galleria/internal/models"
	"galleria/internal/policy"
	"galleria/internal/storage"
)

type contentRefResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type contentResponse struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	Type      string             `json:"type"`
	Image     string             `json:"image,omitempty"`
	URL       string             `json:"url,omitempty"`
	Text      string             `json:"text,omitempty"`
	Theme     contentRefResponse `json:"theme"`
	Category  contentRefResponse `json:"category"`
	UserID    string             `json:"userId,omitempty"`
	CreatedAt string             `json:"createdAt"`
	UpdatedAt string             `json:"updatedAt"`
}

func (h *Handler) newContentResponse(content models.Content) contentResponse {
	response := contentResponse{
		ID:        content.ID,
		Title:     content.Title,
		Type:      content.Type.String(),
		Image:     content.Image,
		URL:       content.URL,
		Text:      content.Text,
		Theme:     contentRefResponse{ID: content.ThemeID},
		Category:  contentRefResponse{ID: content.CategoryID},
		UserID:    content.UserID,
		CreatedAt: content.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: content.UpdatedAt.Format(time.RFC3339Nano),
	}
	if theme, ok := h.Store.GetTheme(content.ThemeID); ok {
		response.Theme.Name = theme.Name
	}
	if category, ok := h.Store.GetCategory(content.CategoryID); ok {
		response.Category.Name = category.Name
	}
	return response
}

func (h *Handler) Contents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := h.requireOperation(w, r, auth.OperationRead); !ok {
			return
		}
		themeID := strings.TrimSpace(r.URL.Query().Get("theme"))
		categoryID := strings.TrimSpace(r.URL.Query().Get("category"))
		contents := h.Store.ListContents(themeID, categoryID)
		response := make([]contentResponse, 0, len(contents))
		for _, content := range contents {
			response = append(response, h.newContentResponse(content))
		}
		writeJSON(w, http.StatusOK, response)
	case http.MethodPost:
		h.createContent(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

type contentForm struct {
	title      string
	rawType    string
	themeID    string
	categoryID string
	url        string
	text       string
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// parseContentForm reads content fields from either multipart form data or
// a JSON body. Image payloads arrive as multipart; video and text content
// usually arrive as JSON.
func (h *Handler) parseContentForm(r *http.Request) (contentForm, error) {
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return contentForm{}, fmt.Errorf("parse form: %w", err)
		}
		return contentForm{
			title:      strings.TrimSpace(r.FormValue("title")),
			rawType:    strings.TrimSpace(r.FormValue("type")),
			themeID:    strings.TrimSpace(r.FormValue("theme")),
			categoryID: strings.TrimSpace(r.FormValue("category")),
			url:        strings.TrimSpace(r.FormValue("url")),
			text:       r.FormValue("text"),
		}, nil
	}

	var req struct {
		Title    string `json:"title"`
		Type     string `json:"type"`
		Theme    string `json:"theme"`
		Category string `json:"category"`
		URL      string `json:"url"`
		Text     string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return contentForm{}, err
	}
	return contentForm{
		title:      strings.TrimSpace(req.Title),
		rawType:    strings.TrimSpace(req.Type),
		themeID:    strings.TrimSpace(req.Theme),
		categoryID: strings.TrimSpace(req.Category),
		url:        strings.TrimSpace(req.URL),
		text:       req.Text,
	}, nil
}

// createContent runs the governance pipeline in order: authorization, theme
// permission policy, then file adoption, then the record write. The policy
// check precedes adoption so a disallowed type never orphans an upload.
func (h *Handler) createContent(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireOperation(w, r, auth.OperationWrite)
	if !ok {
		return
	}
	form, err := h.parseContentForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if form.title == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("title is required"))
		return
	}
	contentType, err := models.ParseContentType(form.rawType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	theme, ok := h.Store.GetTheme(form.themeID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("theme %s not found", form.themeID))
		return
	}
	if err := policy.CheckTheme(theme, contentType); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, ok := h.Store.GetCategory(form.categoryID); !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("category %s not found", form.categoryID))
		return
	}

	params := storage.CreateContentParams{
		Title:      form.title,
		Type:       contentType,
		URL:        form.url,
		Text:       form.text,
		ThemeID:    form.themeID,
		CategoryID: form.categoryID,
		UserID:     actor.ID,
	}

	switch contentType {
	case models.ContentTypeImage:
		if !isMultipart(r) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("image content requires multipart form data"))
			return
		}
		file, header, err := formFile(r, "image")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if file == nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("image file is required"))
			return
		}
		defer file.Close()
		ref, err := h.Files.Adopt(file, header.Filename)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		h.recorder().ObserveUploadEvent("adopted")
		params.Image = ref
	case models.ContentTypeVideo:
		if params.URL == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("url is required for video content"))
			return
		}
	case models.ContentTypeText:
		if strings.TrimSpace(params.Text) == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("text is required for text content"))
			return
		}
	}

	content, err := h.Store.CreateContent(params)
	if err != nil {
		if params.Image != "" {
			h.releaseFile(params.Image)
		}
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.newContentResponse(content))
}

func (h *Handler) ContentByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/contents/")
	if id == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("content id missing"))
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
		content, ok := h.Store.GetContent(id)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("content %s not found", id))
			return
		}
		writeJSON(w, http.StatusOK, h.newContentResponse(content))
	case http.MethodPatch:
		h.updateContent(w, r, id)
	case http.MethodDelete:
		h.deleteContent(w, r, id)
	default:
		w.Header().Set("Allow", "GET, PATCH, DELETE")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

// updateContent re-runs the theme permission policy against the effective
// type and theme after the update is applied, so moving content into a
// stricter theme is rejected the same way creation would be.
func (h *Handler) updateContent(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.requireOperation(w, r, auth.OperationWrite); !ok {
		return
	}
	existing, ok := h.Store.GetContent(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("content %s not found", id))
		return
	}
	form, err := h.parseContentForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	update := storage.ContentUpdate{}
	effectiveType := existing.Type
	if form.rawType != "" {
		parsed, err := models.ParseContentType(form.rawType)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		effectiveType = parsed
		update.Type = &parsed
	}
	effectiveThemeID := existing.ThemeID
	if form.themeID != "" {
		effectiveThemeID = form.themeID
		update.ThemeID = &form.themeID
	}

	theme, ok := h.Store.GetTheme(effectiveThemeID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("theme %s not found", effectiveThemeID))
		return
	}
	if err := policy.CheckTheme(theme, effectiveType); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if form.title != "" {
		update.Title = &form.title
	}
	if form.categoryID != "" {
		update.CategoryID = &form.categoryID
	}
	if form.url != "" {
		update.URL = &form.url
	}
	if strings.TrimSpace(form.text) != "" {
		update.Text = &form.text
	}

	// A record carries exactly one payload matching its type. When the type
	// changes, the new payload must be supplied and the stale ones cleared.
	typeChanged := update.Type != nil && *update.Type != existing.Type
	if typeChanged {
		switch effectiveType {
		case models.ContentTypeVideo:
			if form.url == "" {
				writeError(w, http.StatusBadRequest, fmt.Errorf("url is required for video content"))
				return
			}
		case models.ContentTypeText:
			if strings.TrimSpace(form.text) == "" {
				writeError(w, http.StatusBadRequest, fmt.Errorf("text is required for text content"))
				return
			}
		}
		empty := ""
		if effectiveType != models.ContentTypeImage {
			update.Image = &empty
		}
		if effectiveType != models.ContentTypeVideo {
			update.URL = &empty
		}
		if effectiveType != models.ContentTypeText {
			update.Text = &empty
		}
	}

	var newRef string
	if effectiveType == models.ContentTypeImage {
		if typeChanged && !isMultipart(r) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("image content requires multipart form data"))
			return
		}
		if isMultipart(r) {
			file, header, err := formFile(r, "image")
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if file != nil {
				defer file.Close()
				newRef, err = h.Files.Adopt(file, header.Filename)
				if err != nil {
					writeError(w, http.StatusInternalServerError, err)
					return
				}
				h.recorder().ObserveUploadEvent("adopted")
				update.Image = &newRef
			}
		}
		if typeChanged && newRef == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("image file is required"))
			return
		}
	}

	var staleRef string
	if newRef != "" && existing.Image != "" && existing.Image != newRef {
		staleRef = existing.Image
	}
	if typeChanged && effectiveType != models.ContentTypeImage && existing.Image != "" {
		staleRef = existing.Image
	}

	content, err := h.Store.UpdateContent(id, update)
	if err != nil {
		if newRef != "" {
			h.releaseFile(newRef)
		}
		writeStorageError(w, err)
		return
	}
	if staleRef != "" {
		h.releaseFile(staleRef)
	}
	writeJSON(w, http.StatusOK, h.newContentResponse(content))
}

// deleteContent removes the record before releasing its file so a reader
// never resolves a reference to a missing record. A failed file removal is
// non-fatal; the orphan sweep reclaims it.
func (h *Handler) deleteContent(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.requireOperation(w, r, auth.OperationDelete); !ok {
		return
	}
	content, ok := h.Store.GetContent(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("content %s not found", id))
		return
	}
	if err := h.Store.DeleteContent(id); err != nil {
		writeStorageError(w, err)
		return
	}
	if ref := content.FileRef(); ref != "" {
		h.releaseFile(ref)
	}
	w.WriteHeader(http.StatusNoContent)
}
