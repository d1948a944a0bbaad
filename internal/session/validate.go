package session

import (
	"fmt"
	"regexp"
)

var idRegexp = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidateID checks that a caller-assigned session id is safe to use as a
// directory name and database key.
func ValidateID(id string) error {
	if !idRegexp.MatchString(id) {
		return fmt.Errorf("invalid session id %q: must match ^[a-zA-Z0-9_-]{1,64}$", id)
	}
	return nil
}
