package auth

// The role set is closed: storage seeds exactly these names at startup and
// the capability table below is the only consumer that grants access by them.
const (
	RoleReader  = "reader"
	RoleCreator = "creator"
	RoleAdmin   = "admin"
)

// RoleNames returns the closed role set in seeding order.
func RoleNames() []string {
	return []string{RoleReader, RoleCreator, RoleAdmin}
}

// Operation classifies an API action for capability checks.
type Operation string

const (
	OperationRead   Operation = "read"
	OperationWrite  Operation = "write"
	OperationDelete Operation = "delete"
)

// capabilityTable maps operation classes to the roles allowed to perform
// them. It is process-wide configuration and never mutated at runtime.
var capabilityTable = map[Operation][]string{
	OperationRead:   {RoleReader, RoleCreator, RoleAdmin},
	OperationWrite:  {RoleCreator, RoleAdmin},
	OperationDelete: {RoleAdmin},
}

// CapableRoles returns a copy of the roles permitted to perform the
// operation class.
func CapableRoles(op Operation) []string {
	roles, ok := capabilityTable[op]
	if !ok {
		return nil
	}
	return append([]string(nil), roles...)
}
