package util

import (
	"errors"
	"testing"
)

func TestValidatePasswordPair(t *testing.T) {
	cases := []struct {
		name     string
		password string
		confirm  string
		want     error
	}{
		{"too short", "abc", "abc", ErrPasswordTooShort},
		{"mismatch", "secret1", "secret2", ErrPasswordMismatch},
		{"ok", "secret1", "secret1", nil},
		{"multibyte counts runes", "çãõáéí", "çãõáéí", nil},
	}
	for _, tc := range cases {
		if err := ValidatePasswordPair(tc.password, tc.confirm); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestValidateEmail(t *testing.T) {
	if err := ValidateEmail("ana@example.com"); err != nil {
		t.Fatalf("valid email rejected: %v", err)
	}
	if err := ValidateEmail(" "); err == nil {
		t.Fatalf("empty email accepted")
	}
	if err := ValidateEmail("ana"); err == nil {
		t.Fatalf("invalid email accepted")
	}
}
