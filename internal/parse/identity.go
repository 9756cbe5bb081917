package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MaxIdentityLength bounds account identities; it matches the column size of
// the party fields.
const MaxIdentityLength = 128

var identityRe = regexp.MustCompile(`^[A-Za-z0-9._:@-]+$`)

// Identity normalizes a raw account identity. Surrounding whitespace is
// dropped; anything else outside [A-Za-z0-9._:@-] is rejected.
func Identity(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("identity is empty")
	}
	if len(s) > MaxIdentityLength {
		return "", fmt.Errorf("identity %.16q... is longer than %d characters", s, MaxIdentityLength)
	}
	if !identityRe.MatchString(s) {
		return "", fmt.Errorf("identity %q contains invalid characters", s)
	}
	return s, nil
}

// BookingID parses a decimal booking id. Ids start at 1.
func BookingID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid booking id: %q", raw)
	}
	return id, nil
}
