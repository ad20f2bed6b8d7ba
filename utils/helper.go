package utils

import (
	"regexp"
	"strings"
)

func IsValidEmail(email string) bool {
	// Basic email validation regex pattern
	pattern := `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	regex := regexp.MustCompile(pattern)
	return regex.MatchString(email)
}

// IsEmailIdentifier classifies an invitee identifier: anything with "@" is
// treated as an email, everything else as a phone number.
func IsEmailIdentifier(identifier string) bool {
	return strings.Contains(identifier, "@")
}

func NewTrue() *bool {
	b := true
	return &b
}
