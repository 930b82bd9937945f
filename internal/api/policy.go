package api

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// PasswordPolicy describes the rules dashboard passwords must satisfy
type PasswordPolicy struct {
	MinLength     int  `json:"minLength"`
	RequireUpper  bool `json:"requireUpper"`
	RequireLower  bool `json:"requireLower"`
	RequireDigit  bool `json:"requireDigit"`
	RequireSymbol bool `json:"requireSymbol"`

	validate *validator.Validate
}

// passwordRule pairs a validator tag with the message reported when it fails
type passwordRule struct {
	tag     string
	message string
}

// NewPasswordPolicy creates a policy requiring every character class and
// at least minLength characters
func NewPasswordPolicy(minLength int) *PasswordPolicy {
	if minLength <= 0 {
		minLength = 8
	}
	v := validator.New()
	mustRegister(v, "hasupper", unicode.IsUpper)
	mustRegister(v, "haslower", unicode.IsLower)
	mustRegister(v, "hasdigit", unicode.IsDigit)
	mustRegister(v, "hassymbol", func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})

	return &PasswordPolicy{
		MinLength:     minLength,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
		validate:      v,
	}
}

func mustRegister(v *validator.Validate, tag string, class func(rune) bool) {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return strings.IndexFunc(fl.Field().String(), class) >= 0
	})
	if err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

func (p *PasswordPolicy) rules() []passwordRule {
	rules := []passwordRule{{
		tag:     fmt.Sprintf("min=%d", p.MinLength),
		message: fmt.Sprintf("must be at least %d characters", p.MinLength),
	}}
	if p.RequireUpper {
		rules = append(rules, passwordRule{"hasupper", "must contain an uppercase letter"})
	}
	if p.RequireLower {
		rules = append(rules, passwordRule{"haslower", "must contain a lowercase letter"})
	}
	if p.RequireDigit {
		rules = append(rules, passwordRule{"hasdigit", "must contain a digit"})
	}
	if p.RequireSymbol {
		rules = append(rules, passwordRule{"hassymbol", "must contain a symbol"})
	}
	return rules
}

// Check returns the message of every rule password violates, in rule order
func (p *PasswordPolicy) Check(password string) []string {
	violations := []string{}
	for _, rule := range p.rules() {
		if err := p.validate.Var(password, rule.tag); err != nil {
			violations = append(violations, rule.message)
		}
	}
	return violations
}
