package nlp

import (
	"regexp"
	"strings"
)

// InviteCommand is a parsed "Invitar a <identifier> a <account>" phrase.
type InviteCommand struct {
	Identifier  string
	AccountName string
}

var inviteRe = regexp.MustCompile(`(?i)invitar\s+a?\s*([+\d@.\w-]+)\s+a\s+(.+)`)

// ParseInviteCommand extracts the invitee identifier (phone or email) and the
// account name from an invite phrase. Returns nil when the message does not
// match the command shape.
func ParseInviteCommand(message string) *InviteCommand {
	m := inviteRe.FindStringSubmatch(message)
	if m == nil {
		return nil
	}
	return &InviteCommand{
		Identifier:  strings.TrimSpace(m[1]),
		AccountName: strings.TrimSpace(m[2]),
	}
}
