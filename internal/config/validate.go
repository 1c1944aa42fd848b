package config

import (
	"fmt"
	"regexp"
)

var nameRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateName checks that a user or group name is safe to use as a path
// segment and a pub/sub topic key. The server enforces its own rules; this
// only guards the local filesystem and URL construction.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid name %q: must match ^[A-Za-z0-9_-]{1,64}$", name)
	}
	return nil
}
