package validation

import (
	"errors"
	"unicode"
)

// Policy define los requisitos de password configurables.
type Policy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

var (
	ErrPasswordTooShort = errors.New("validation: password too short")
	ErrPasswordWeak     = errors.New("validation: password does not meet policy")
)

// CheckPassword valida el password contra la policy.
func (p Policy) CheckPassword(pwd string) error {
	if len(pwd) < p.MinLength {
		return ErrPasswordTooShort
	}
	var upper, lower, digit, symbol bool
	for _, r := range pwd {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if p.RequireUpper && !upper {
		return ErrPasswordWeak
	}
	if p.RequireLower && !lower {
		return ErrPasswordWeak
	}
	if p.RequireDigit && !digit {
		return ErrPasswordWeak
	}
	if p.RequireSymbol && !symbol {
		return ErrPasswordWeak
	}
	return nil
}
