// Package identity turns a token subject into a caller identity. It owns
// the single rule that tells a provisional token (issued at registration,
// before any mailbox exists) from an authenticated one (issued at login
// for a concrete mail address), and resolves either kind against the user
// directory.
package identity

import "strings"

// ProvisionalPrefix marks the subject of a provisional token.
const ProvisionalPrefix = "temp_"

// Mode says which kind of token produced an identity.
type Mode int

const (
	// ModeNone is the zero identity: no usable token was presented.
	ModeNone Mode = iota
	// ModeProvisional comes from a registration token; only first-mailbox
	// creation accepts it.
	ModeProvisional
	// ModeAuthenticated comes from a login token bound to a mail address.
	ModeAuthenticated
)

func (m Mode) String() string {
	switch m {
	case ModeProvisional:
		return "provisional"
	case ModeAuthenticated:
		return "authenticated"
	}
	return "none"
}

// Subject is a classified token subject. Exactly one of Username or Email
// is set, according to Mode.
type Subject struct {
	Mode     Mode
	Username string
	Email    string
}

// Classify applies the prefix rule: "temp_" + rest is Provisional{rest};
// anything else is Authenticated{subject}. Only one prefix is stripped, so
// "temp_temp_x" yields Provisional{"temp_x"}. No address validation happens
// here; malformed addresses fail the directory lookup instead.
func Classify(subject string) Subject {
	if rest, ok := strings.CutPrefix(subject, ProvisionalPrefix); ok {
		return Subject{Mode: ModeProvisional, Username: rest}
	}
	return Subject{Mode: ModeAuthenticated, Email: subject}
}

// ProvisionalSubject is the token subject issued to a freshly registered user.
func ProvisionalSubject(username string) string {
	return ProvisionalPrefix + username
}
