package security

import (
	"fmt"
	"strings"
	"unicode"
)

// PasswordSymbols is the exact set of symbols the password policy accepts.
const PasswordSymbols = "!@#$%^&*()_-+={}[]|\\:;\"'<>,.?/~`"

// PasswordValidationError represents a single password policy violation.
type PasswordValidationError struct {
	Code    string
	Message string
}

// Error implements error for PasswordValidationError.
func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordRule validates a password according to a specific policy rule.
type PasswordRule interface {
	Validate(password string) error
}

// PasswordRuleFunc adapts a function to be used as a PasswordRule.
type PasswordRuleFunc func(password string) error

// Validate executes the underlying rule function.
func (f PasswordRuleFunc) Validate(password string) error {
	return f(password)
}

// PasswordValidator applies a sequence of password rules.
type PasswordValidator struct {
	rules []PasswordRule
}

// NewPasswordValidator constructs a validator with the provided rules.
func NewPasswordValidator(rules ...PasswordRule) *PasswordValidator {
	copied := make([]PasswordRule, len(rules))
	copy(copied, rules)
	return &PasswordValidator{rules: copied}
}

// NewAccountPasswordValidator returns the policy applied to registration,
// password reset, and profile password changes: at least eight characters
// with a lowercase letter, an uppercase letter, a digit, and a symbol from
// PasswordSymbols.
func NewAccountPasswordValidator() *PasswordValidator {
	return NewPasswordValidator(
		MinLengthRule(8),
		RequireLowercaseRule(),
		RequireUppercaseRule(),
		RequireDigitRule(),
		RequireSymbolRule(),
	)
}

// Validate executes all rules and returns the first encountered violation.
func (v *PasswordValidator) Validate(password string) error {
	if v == nil {
		return fmt.Errorf("password validator not configured")
	}
	for _, rule := range v.rules {
		if err := rule.Validate(password); err != nil {
			return err
		}
	}
	return nil
}

// MinLengthRule ensures the password has at least min characters.
func MinLengthRule(min int) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if len([]rune(password)) < min {
			return &PasswordValidationError{
				Code:    "min_length",
				Message: fmt.Sprintf("password must be at least %d characters long", min),
			}
		}
		return nil
	})
}

// RequireLowercaseRule ensures the password contains a lowercase letter.
func RequireLowercaseRule() PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		for _, r := range password {
			if unicode.IsLower(r) {
				return nil
			}
		}
		return &PasswordValidationError{
			Code:    "lowercase",
			Message: "password must include at least one lowercase letter",
		}
	})
}

// RequireUppercaseRule ensures the password contains an uppercase letter.
func RequireUppercaseRule() PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		for _, r := range password {
			if unicode.IsUpper(r) {
				return nil
			}
		}
		return &PasswordValidationError{
			Code:    "uppercase",
			Message: "password must include at least one uppercase letter",
		}
	})
}

// RequireDigitRule ensures the password contains at least one digit.
func RequireDigitRule() PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		for _, r := range password {
			if unicode.IsDigit(r) {
				return nil
			}
		}
		return &PasswordValidationError{
			Code:    "digit",
			Message: "password must include at least one digit",
		}
	})
}

// RequireSymbolRule ensures the password contains at least one symbol from
// PasswordSymbols. Characters outside the set do not satisfy the rule.
func RequireSymbolRule() PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		for _, r := range password {
			if strings.ContainsRune(PasswordSymbols, r) {
				return nil
			}
		}
		return &PasswordValidationError{
			Code:    "symbol",
			Message: "password must include at least one special character",
		}
	})
}

// RequireDifferentFrom ensures the new password differs from the comparator.
func RequireDifferentFrom(comparator string) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if password == comparator {
			return &PasswordValidationError{
				Code:    "different",
				Message: "new password must be different from current password",
			}
		}
		return nil
	})
}
