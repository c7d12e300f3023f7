package naming

import (
	"fmt"
	"regexp"
)

const workspaceNameMaxLength = 63

var workspaceNameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ._-]*$`)

// ValidateWorkspaceName checks a user-facing workspace name.
func ValidateWorkspaceName(name string) error {
	if name == "" {
		return fmt.Errorf("workspace name must not be empty")
	}
	if len(name) > workspaceNameMaxLength {
		return fmt.Errorf("workspace name exceeds %d characters", workspaceNameMaxLength)
	}
	if !workspaceNameRE.MatchString(name) {
		return fmt.Errorf("invalid workspace name %q: use letters, digits, space, '.', '_' or '-'", name)
	}
	return nil
}
