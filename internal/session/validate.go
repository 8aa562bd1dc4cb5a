package session

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidName is returned for names raptd refuses to use as a directory.
var ErrInvalidName = errors.New("invalid session name")

// A leading hyphen would be parsed as a flag by raptctl.
var nameRegexp = regexp.MustCompile(`^[a-z0-9_][a-z0-9_-]{0,63}$`)

// ValidateName checks that name is 1-64 of [a-z0-9_-] and does not start
// with a hyphen.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("%w %q: want 1-64 of [a-z0-9_-], not starting with '-'", ErrInvalidName, name)
	}
	return nil
}
