package security

import (
	"errors"
	"testing"
)

func TestAccountPasswordPolicy(t *testing.T) {
	validator := NewAccountPasswordValidator()

	cases := []struct {
		name     string
		password string
		wantCode string
	}{
		{"valid", "Str0ng!pass", ""},
		{"valid with bracket symbol", "Str0ngPass1[", ""},
		{"too short", "S1!a", "min_length"},
		{"no lowercase", "STR0NG!PASS", "lowercase"},
		{"no uppercase", "str0ng!pass", "uppercase"},
		{"no digit", "Strong!pass", "digit"},
		{"no symbol", "Str0ngpass", "symbol"},
		{"symbol outside allowed set", "Str0ngpass§", "symbol"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.Validate(tc.password)
			if tc.wantCode == "" {
				if err != nil {
					t.Fatalf("Validate(%q) = %v, want nil", tc.password, err)
				}
				return
			}

			var policyErr *PasswordValidationError
			if !errors.As(err, &policyErr) {
				t.Fatalf("Validate(%q) = %v, want PasswordValidationError", tc.password, err)
			}
			if policyErr.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", policyErr.Code, tc.wantCode)
			}
		})
	}
}

func TestRequireDifferentFrom(t *testing.T) {
	rule := RequireDifferentFrom("OldPass1!")

	if err := rule.Validate("OldPass1!"); err == nil {
		t.Error("identical password must be rejected")
	}
	if err := rule.Validate("NewPass1!"); err != nil {
		t.Errorf("different password rejected: %v", err)
	}
}

func TestNilValidator(t *testing.T) {
	var validator *PasswordValidator
	if err := validator.Validate("whatever"); err == nil {
		t.Error("nil validator must error instead of accepting")
	}
}
