package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"galleria/internal/auth"
	"galleria/internal/files"
	"galleria/internal/observability/metrics"
	"galleria/internal/policy"
	"galleria/internal/storage"
)

type Handler struct {
	Store   storage.Repository
	Tokens  *auth.TokenManager
	Authz   *auth.Authorizer
	Files   *files.Manager
	Metrics *metrics.Recorder
}

func NewHandler(store storage.Repository, tokens *auth.TokenManager, fileManager *files.Manager) *Handler {
	return &Handler{
		Store:  store,
		Tokens: tokens,
		Authz:  auth.NewAuthorizer(store),
		Files:  fileManager,
	}
}

func (h *Handler) recorder() *metrics.Recorder {
	if h.Metrics != nil {
		return h.Metrics
	}
	return metrics.Default()
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// WriteError is an exported helper for returning JSON API errors.
func WriteError(w http.ResponseWriter, status int, err error) {
	writeError(w, status, err)
}

func decodeJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// ExtractToken pulls the bearer credential from the Authorization header.
func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

// writeStorageError maps repository and policy failures onto the API status
// contract: missing records are 404, duplicate names and validation
// failures are 400.
func writeStorageError(w http.ResponseWriter, err error) {
	var dup *policy.DuplicateNameError
	switch {
	case storage.IsNotFound(err):
		writeError(w, http.StatusNotFound, err)
	case errors.As(err, &dup):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}

// requireID validates the id path parameter before the store is consulted.
func requireID(w http.ResponseWriter, id string) bool {
	if !storage.IsValidID(id) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid id %q", id))
		return false
	}
	return true
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	status := "ok"
	code := http.StatusOK
	if err := h.Store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}
