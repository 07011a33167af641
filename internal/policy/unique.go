package policy

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var nameFolder = cases.Fold()

// NormalizeName maps a display name to its uniqueness key: trimmed,
// NFC-normalized, and case-folded so "Café" and "café" collide.
func NormalizeName(name string) string {
	return nameFolder.String(norm.NFC.String(strings.TrimSpace(name)))
}

// DuplicateNameError reports a name collision within one entity kind.
type DuplicateNameError struct {
	Kind string
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s with name %q already exists", e.Kind, e.Name)
}

// NameOwner reports the id of the record currently holding a normalized
// name, or false when the name is free. Implementations scope the lookup to
// a single entity kind.
type NameOwner func(normalized string) (id string, ok bool)

// CheckUniqueName enforces per-kind name uniqueness. excludeID names the
// record being updated so a record never collides with itself; pass the
// empty string on create.
func CheckUniqueName(kind, name, excludeID string, owner NameOwner) error {
	id, taken := owner(NormalizeName(name))
	if taken && id != excludeID {
		return &DuplicateNameError{Kind: kind, Name: strings.TrimSpace(name)}
	}
	return nil
}
