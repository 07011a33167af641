package auth

import (
	"errors"
	"testing"

	"galleria/internal/models"
)

type fakeUserSource struct {
	users map[string]models.User
}

func (f *fakeUserSource) GetUser(id string) (models.User, bool) {
	user, ok := f.users[id]
	return user, ok
}

func TestAuthorizeCapabilities(t *testing.T) {
	tests := []struct {
		name    string
		roles   []string
		op      Operation
		allowed bool
	}{
		{name: "reader can read", roles: []string{RoleReader}, op: OperationRead, allowed: true},
		{name: "reader cannot write", roles: []string{RoleReader}, op: OperationWrite, allowed: false},
		{name: "reader cannot delete", roles: []string{RoleReader}, op: OperationDelete, allowed: false},
		{name: "creator can write", roles: []string{RoleCreator}, op: OperationWrite, allowed: true},
		{name: "creator cannot delete", roles: []string{RoleCreator}, op: OperationDelete, allowed: false},
		{name: "admin can delete", roles: []string{RoleAdmin}, op: OperationDelete, allowed: true},
		{name: "no roles denied", roles: nil, op: OperationRead, allowed: false},
		{name: "multiple roles use strongest", roles: []string{RoleReader, RoleAdmin}, op: OperationDelete, allowed: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			source := &fakeUserSource{users: map[string]models.User{
				"user-1": {ID: "user-1", Roles: tc.roles},
			}}
			authorizer := NewAuthorizer(source)
			_, err := authorizer.Authorize("user-1", tc.op)
			if tc.allowed && err != nil {
				t.Fatalf("Authorize error: %v", err)
			}
			if !tc.allowed {
				var denied *InsufficientRoleError
				if !errors.As(err, &denied) {
					t.Fatalf("Authorize error = %v, want InsufficientRoleError", err)
				}
				if denied.Operation != tc.op {
					t.Fatalf("denied operation = %q, want %q", denied.Operation, tc.op)
				}
			}
		})
	}
}

func TestAuthorizeUnknownSubject(t *testing.T) {
	authorizer := NewAuthorizer(&fakeUserSource{users: map[string]models.User{}})
	if _, err := authorizer.Authorize("ghost", OperationRead); !errors.Is(err, ErrSubjectNotFound) {
		t.Fatalf("Authorize error = %v, want ErrSubjectNotFound", err)
	}
}

// Role changes take effect on the next request because each authorization
// re-reads the subject from storage.
func TestAuthorizeSeesRoleRevocation(t *testing.T) {
	source := &fakeUserSource{users: map[string]models.User{
		"user-1": {ID: "user-1", Roles: []string{RoleAdmin}},
	}}
	authorizer := NewAuthorizer(source)

	if _, err := authorizer.Authorize("user-1", OperationDelete); err != nil {
		t.Fatalf("Authorize before revocation: %v", err)
	}

	source.users["user-1"] = models.User{ID: "user-1", Roles: []string{RoleReader}}
	_, err := authorizer.Authorize("user-1", OperationDelete)
	var denied *InsufficientRoleError
	if !errors.As(err, &denied) {
		t.Fatalf("Authorize after revocation = %v, want InsufficientRoleError", err)
	}
}

func TestCapableRolesReturnsCopy(t *testing.T) {
	roles := CapableRoles(OperationRead)
	if len(roles) != 3 {
		t.Fatalf("read roles = %v, want all three", roles)
	}
	roles[0] = "mutated"
	if fresh := CapableRoles(OperationRead); fresh[0] == "mutated" {
		t.Fatal("CapableRoles leaked internal slice")
	}
}
