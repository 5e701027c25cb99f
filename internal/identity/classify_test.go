package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		subject string
		want    Subject
	}{
		{"temp_alice", Subject{Mode: ModeProvisional, Username: "alice"}},
		{"alice@example.com", Subject{Mode: ModeAuthenticated, Email: "alice@example.com"}},
		{"temp_temp_x", Subject{Mode: ModeProvisional, Username: "temp_x"}},
		{"temp_", Subject{Mode: ModeProvisional, Username: ""}},
		{"TEMP_alice", Subject{Mode: ModeAuthenticated, Email: "TEMP_alice"}},
		{"alice", Subject{Mode: ModeAuthenticated, Email: "alice"}},
		{"xtemp_alice", Subject{Mode: ModeAuthenticated, Email: "xtemp_alice"}},
	}
	for _, tc := range tests {
		t.Run(tc.subject, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.subject))
		})
	}
}

func TestClassify_ProvisionalIffPrefix(t *testing.T) {
	for _, s := range []string{"", "t", "temp", "temp_a", "a@b.c", "temp_a@b.c", " temp_a"} {
		got := Classify(s)
		assert.Equal(t, strings.HasPrefix(s, "temp_"), got.Mode == ModeProvisional, "subject %q", s)
	}
}

func TestProvisionalSubject_RoundTrip(t *testing.T) {
	sub := ProvisionalSubject("alice")
	assert.Equal(t, "temp_alice", sub)
	assert.Equal(t, Subject{Mode: ModeProvisional, Username: "alice"}, Classify(sub))
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "none", ModeNone.String())
	assert.Equal(t, "provisional", ModeProvisional.String())
	assert.Equal(t, "authenticated", ModeAuthenticated.String())
}
