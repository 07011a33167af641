package auth

import (
	"errors"
	"fmt"

	"galleria/internal/models"
)

// ErrSubjectNotFound indicates the credential's subject no longer exists in
// storage, for example after account deletion.
var ErrSubjectNotFound = errors.New("account not found")

// InsufficientRoleError reports that none of the subject's roles grant the
// requested operation class.
type InsufficientRoleError struct {
	Operation Operation
}

func (e *InsufficientRoleError) Error() string {
	return fmt.Sprintf("access denied: no %s permission", e.Operation)
}

// IsInsufficientRole reports whether err is an InsufficientRoleError.
func IsInsufficientRole(err error) bool {
	var target *InsufficientRoleError
	return errors.As(err, &target)
}

// UserSource resolves a subject id to its current user record.
type UserSource interface {
	GetUser(id string) (models.User, bool)
}

// Authorizer decides whether an identity may perform an operation class by
// intersecting its current roles with the capability table. Roles are
// re-fetched from storage on every call rather than cached or read from the
// credential, so role revocation takes effect on the next request.
type Authorizer struct {
	users UserSource
}

func NewAuthorizer(users UserSource) *Authorizer {
	return &Authorizer{users: users}
}

// Authorize returns the freshly loaded user on success. It fails with
// ErrSubjectNotFound when the subject record is gone and with an
// InsufficientRoleError when the role intersection is empty.
func (a *Authorizer) Authorize(userID string, op Operation) (models.User, error) {
	user, ok := a.users.GetUser(userID)
	if !ok {
		return models.User{}, ErrSubjectNotFound
	}
	for _, role := range capabilityTable[op] {
		if user.HasRole(role) {
			return user, nil
		}
	}
	return models.User{}, &InsufficientRoleError{Operation: op}
}
