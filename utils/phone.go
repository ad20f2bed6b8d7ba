package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ttacon/libphonenumber"
)

var CountryCode = "CL"

// CountryPrefix is the dial prefix assumed when a number arrives without one.
// WhatsApp delivers numbers without "+", and users type them in every format
// imaginable, so equality checks always go through variants, never raw text.
const CountryPrefix = "56"

var nonDigitRe = regexp.MustCompile(`\D`)

func DigitsOnly(phone string) string {
	return nonDigitRe.ReplaceAllString(phone, "")
}

// CanonicalPhone reduces a phone number to a single E.164 form. Numbers with
// no country code are assumed to be local (CountryPrefix). Falls back to a
// "+<digits>" form when libphonenumber cannot parse the input.
func CanonicalPhone(phone string) string {
	p, err := libphonenumber.Parse(phone, CountryCode)
	if err == nil && libphonenumber.IsValidNumber(p) {
		return libphonenumber.Format(p, libphonenumber.E164)
	}

	digits := DigitsOnly(phone)
	if digits == "" {
		return phone
	}
	if strings.HasPrefix(digits, CountryPrefix) {
		return "+" + digits
	}
	return "+" + CountryPrefix + digits
}

// PhoneVariants returns every stored representation a number may have been
// registered under. Users sign up through the web app with arbitrary
// formatting, so lookups must try each variant in order.
func PhoneVariants(phone string) []string {
	digits := DigitsOnly(phone)

	variants := []string{
		phone,
		"+" + digits,
		digits,
	}
	if len(digits) >= 9 {
		variants = append(variants, fmt.Sprintf("+%s%s", CountryPrefix, digits[len(digits)-9:]))
	}

	seen := make(map[string]bool, len(variants))
	out := variants[:0]
	for _, v := range variants {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// ValidatePhoneNumber reports whether the number reduces to a usable
// canonical form. Validation runs on the canonicalized number, so every
// format CanonicalPhone accepts, local ones included, validates.
func ValidatePhoneNumber(phoneNumber string) error {
	canonical := CanonicalPhone(phoneNumber)
	p, err := libphonenumber.Parse(canonical, CountryCode)
	if err == nil && libphonenumber.IsValidNumber(p) {
		return nil
	}

	digits := DigitsOnly(canonical)
	if len(digits) < len(CountryPrefix)+9 || len(digits) > 15 {
		return fmt.Errorf("phone number %q is not valid", phoneNumber)
	}
	return nil
}
