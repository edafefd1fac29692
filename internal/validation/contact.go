package validation

import "regexp"

// Email rules: permisivo a propósito, el verificador real es el mail de
// confirmación. Sólo filtra basura evidente.
var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidEmail returns true if the address has a plausible shape.
func ValidEmail(s string) bool {
	return s != "" && len(s) <= 254 && emailRe.MatchString(s)
}

// MSISDN: dígitos en formato internacional sin "+", 8..15 (E.164).
var msisdnRe = regexp.MustCompile(`^[1-9][0-9]{7,14}$`)

// ValidMsisdn returns true if the phone identifier is E.164-shaped.
func ValidMsisdn(s string) bool {
	return msisdnRe.MatchString(s)
}
