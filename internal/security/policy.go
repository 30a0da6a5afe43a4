package security

import (
	"bufio"
	_ "embed"
	"fmt"
	"strings"
	"unicode"

	"go-auth-service/internal/model"
)

//go:embed common_passwords.txt
var commonPasswordsList string

const (
	DefaultPasswordMinLength      = 8
	DefaultPasswordMaxLength      = 72
	DefaultPasswordMinCharClasses = 3

	// CharClassesDisabled turns the character class rule off in PolicyConfig.
	CharClassesDisabled = -1
)

// PasswordRule inspects a candidate password. It returns an empty string when the
// password is acceptable and a user-facing message otherwise. user may be nil.
type PasswordRule interface {
	Check(password string, user *model.User) string
}

type PasswordRuleFunc func(password string, user *model.User) string

func (f PasswordRuleFunc) Check(password string, user *model.User) string {
	return f(password, user)
}

type PasswordPolicy struct {
	rules []PasswordRule
}

func NewPasswordPolicy(rules ...PasswordRule) *PasswordPolicy {
	return &PasswordPolicy{rules: rules}
}

// PolicyConfig zero values select the defaults. Set MinCharClasses to
// CharClassesDisabled to drop the character class rule.
type PolicyConfig struct {
	MinLength      int
	MaxLength      int
	MinCharClasses int
}

func DefaultPasswordPolicy(cfg PolicyConfig) *PasswordPolicy {
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultPasswordMinLength
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultPasswordMaxLength
	}
	switch {
	case cfg.MinCharClasses == 0:
		cfg.MinCharClasses = DefaultPasswordMinCharClasses
	case cfg.MinCharClasses < 0:
		cfg.MinCharClasses = 0
	}

	return NewPasswordPolicy(
		UserAttributeSimilarityRule(),
		MinLengthRule(cfg.MinLength),
		MaxLengthRule(cfg.MaxLength),
		CommonPasswordRule(),
		NumericPasswordRule(),
		CharClassRule(cfg.MinCharClasses),
	)
}

// Validate returns every violated rule message, or nil when the password is accepted.
func (p *PasswordPolicy) Validate(password string, user *model.User) []string {
	var messages []string
	for _, rule := range p.rules {
		if msg := rule.Check(password, user); msg != "" {
			messages = append(messages, msg)
		}
	}
	return messages
}

func MinLengthRule(min int) PasswordRule {
	return PasswordRuleFunc(func(password string, _ *model.User) string {
		if len([]rune(password)) < min {
			return fmt.Sprintf("This password is too short. It must contain at least %d characters.", min)
		}
		return ""
	})
}

// MaxLengthRule counts bytes since bcrypt ignores everything past 72 bytes.
func MaxLengthRule(max int) PasswordRule {
	return PasswordRuleFunc(func(password string, _ *model.User) string {
		if len(password) > max {
			return fmt.Sprintf("This password is too long. It must contain at most %d bytes.", max)
		}
		return ""
	})
}

func NumericPasswordRule() PasswordRule {
	return PasswordRuleFunc(func(password string, _ *model.User) string {
		if password == "" {
			return ""
		}
		for _, r := range password {
			if !unicode.IsDigit(r) {
				return ""
			}
		}
		return "This password is entirely numeric."
	})
}

func CommonPasswordRule() PasswordRule {
	common := make(map[string]struct{})
	scanner := bufio.NewScanner(strings.NewReader(commonPasswordsList))
	for scanner.Scan() {
		if word := strings.TrimSpace(scanner.Text()); word != "" {
			common[strings.ToLower(word)] = struct{}{}
		}
	}

	return PasswordRuleFunc(func(password string, _ *model.User) string {
		if _, exists := common[strings.ToLower(strings.TrimSpace(password))]; exists {
			return "This password is too common."
		}
		return ""
	})
}

func UserAttributeSimilarityRule() PasswordRule {
	return PasswordRuleFunc(func(password string, user *model.User) string {
		if user == nil {
			return ""
		}

		lowered := strings.ToLower(password)
		attributes := []struct {
			label string
			value string
		}{
			{"username", user.Username},
			{"email address", emailLocalPart(user.Email)},
			{"first name", user.FirstName},
			{"last name", user.LastName},
		}
		for _, attr := range attributes {
			value := strings.ToLower(strings.TrimSpace(attr.value))
			if len(value) < 3 {
				continue
			}
			if strings.Contains(lowered, value) {
				return fmt.Sprintf("The password is too similar to the %s.", attr.label)
			}
		}
		return ""
	})
}

// CharClassRule requires at least min of: lowercase, uppercase, digit, other.
func CharClassRule(min int) PasswordRule {
	return PasswordRuleFunc(func(password string, _ *model.User) string {
		if min <= 0 {
			return ""
		}

		var lower, upper, digit, other bool
		for _, r := range password {
			switch {
			case unicode.IsLower(r):
				lower = true
			case unicode.IsUpper(r):
				upper = true
			case unicode.IsDigit(r):
				digit = true
			default:
				other = true
			}
		}

		classes := 0
		for _, present := range []bool{lower, upper, digit, other} {
			if present {
				classes++
			}
		}
		if classes < min {
			return fmt.Sprintf("This password must mix at least %d of: lowercase letters, uppercase letters, digits, symbols.", min)
		}
		return ""
	})
}

func emailLocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
