package fabric

import (
	"fmt"
	"strings"

	"github.com/signal18/fabricd/internal/ferrors"
)

// ValidateExactlyOnePrimary enforces the Server/Group invariant that a
// group may have at most one member in PRIMARY status. Zero primaries is
// valid — it's the state a freshly demoted or not-yet-promoted group is in.
func ValidateExactlyOnePrimary(servers []Server) error {
	var primaries []string
	for _, s := range servers {
		if s.Status == StatusPrimary {
			primaries = append(primaries, s.UUID)
		}
	}
	if len(primaries) > 1 {
		return ferrors.Group(fmt.Sprintf("group has multiple primaries: %s", strings.Join(primaries, ", ")))
	}
	return nil
}

// MissingPrivileges reports which of RequiredPrivileges are absent from
// granted. A server fails to be added whenever this is non-empty.
func MissingPrivileges(granted map[string]struct{}) []string {
	var missing []string
	for _, p := range RequiredPrivileges {
		if _, ok := granted[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}

// CheckPrivileges is MissingPrivileges wrapped as the ferrors.Server the
// add-server procedure returns when validation fails.
func CheckPrivileges(granted map[string]struct{}) error {
	missing := MissingPrivileges(granted)
	if len(missing) == 0 {
		return nil
	}
	return ferrors.Server(fmt.Sprintf("missing required privileges: %s", strings.Join(missing, ", ")))
}

// ContainsServer reports whether uuid appears among servers — the O(n)
// membership check §4.7 calls out; callers holding an indexed view (e.g.
// Repository, backed by the group_id column) can answer this in O(1) instead.
func ContainsServer(servers []Server, uuid string) bool {
	for _, s := range servers {
		if s.UUID == uuid {
			return true
		}
	}
	return false
}
