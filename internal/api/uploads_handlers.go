package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"

	"galleria/internal/files"
)

// UploadFile serves a stored file by its public reference path.
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	name := path.Base(r.URL.Path)
	if name == "." || name == "/" {
		writeError(w, http.StatusNotFound, fmt.Errorf("file not found"))
		return
	}
	file, err := h.Files.Open(files.RefPrefix + name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, fmt.Errorf("file not found"))
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Errorf("open file: %w", err))
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("stat file: %w", err))
		return
	}
	http.ServeContent(w, r, name, info.ModTime(), file)
}
