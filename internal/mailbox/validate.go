package mailbox

import (
	"errors"
	"fmt"
	"strings"
)

// Name bounds shared by local parts and usernames.
const (
	MinNameLen = 3
	MaxNameLen = 30
)

// ErrInvalidAddressName is returned for a local part that is empty, too
// short or long, not lowercase, or outside [a-z0-9._-].
var ErrInvalidAddressName = errors.New("mailbox: invalid address name")

// ValidateLocalPart checks s without normalizing it. The first character
// must be a letter or digit so the name can never read as a path
// component like "." or a maildir folder.
func ValidateLocalPart(s string) error {
	if len(s) < MinNameLen || len(s) > MaxNameLen {
		return fmt.Errorf("%w: length must be %d-%d", ErrInvalidAddressName, MinNameLen, MaxNameLen)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case (c == '.' || c == '_' || c == '-') && i > 0:
		default:
			return fmt.Errorf("%w: unexpected %q at %d", ErrInvalidAddressName, c, i)
		}
	}
	if strings.Contains(s, "..") {
		return fmt.Errorf("%w: consecutive dots", ErrInvalidAddressName)
	}
	return nil
}

// NormalizeLocalPart lowercases and trims s. Callers validate the result.
func NormalizeLocalPart(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validDomain(d string) bool {
	if d == "" || d == "." || d == ".." {
		return false
	}
	return !strings.ContainsAny(d, `/\`)
}
