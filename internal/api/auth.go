package api

import (
	"context"
	"errors"
	"net/http"

	"galleria/internal/auth"
	"galleria/internal/models"
)

type contextKey string

const userContextKey contextKey = "authenticatedUser"

// ContextWithUser stores the authenticated user in the provided context.
func ContextWithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated user from context if present.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

// AuthenticateRequest verifies the bearer credential on the request and
// resolves it to the current user record. Failures surface as the auth
// package's sentinel errors so callers can map them onto status codes.
func (h *Handler) AuthenticateRequest(r *http.Request) (models.User, error) {
	credential := ExtractToken(r)
	if credential == "" {
		return models.User{}, auth.ErrNoCredential
	}
	userID, err := h.Tokens.Validate(credential)
	if err != nil {
		return models.User{}, err
	}
	user, exists := h.Store.GetUser(userID)
	if !exists {
		return models.User{}, auth.ErrSubjectNotFound
	}
	return user, nil
}

// WriteAuthError maps credential failures onto the API status contract: a
// missing credential is 403, a rejected credential 401, and a credential
// whose subject no longer exists 404.
func WriteAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrNoCredential):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, auth.ErrInvalidCredential):
		writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, auth.ErrSubjectNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusUnauthorized, err)
	}
}

// requireOperation authorizes the context user for an operation class. The
// authorizer re-reads roles from storage, so a role revoked since login is
// denied here even though the credential still verifies.
func (h *Handler) requireOperation(w http.ResponseWriter, r *http.Request, op auth.Operation) (models.User, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, auth.ErrNoCredential)
		return models.User{}, false
	}
	current, err := h.Authz.Authorize(user.ID, op)
	if err != nil {
		if errors.Is(err, auth.ErrSubjectNotFound) {
			writeError(w, http.StatusNotFound, err)
			return models.User{}, false
		}
		h.recorder().ObserveAuthEvent("role_denied")
		writeError(w, http.StatusForbidden, err)
		return models.User{}, false
	}
	return current, true
}
