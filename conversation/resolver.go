package conversation

import (
	"strings"

	"bitbucket.org/mmdatafocus/finbot_backend/models"
)

// accountKeywords maps colloquial money words to substrings of account
// names. Tried only after no account name appears verbatim in the message.
var accountKeywords = []struct {
	triggers []string
	nameHas  []string
}{
	{triggers: []string{"efectivo", "cash"}, nameHas: []string{"efectivo"}},
	{triggers: []string{"debito", "débito", "tarjeta"}, nameHas: []string{"debito", "débito"}},
	{triggers: []string{"ahorro"}, nameHas: []string{"ahorro"}},
}

// DetectAccount finds which of the user's accounts a message refers to.
// First pass: any account whose name appears in the message. Second pass: a
// fixed keyword table. Accounts arrive ordered by id, so on a name collision
// the oldest account wins deterministically. Returns nil when nothing
// matches; the caller then asks the user to pick.
func DetectAccount(message string, accounts []models.Account) *models.Account {
	if len(accounts) == 0 {
		return nil
	}
	messageLower := strings.ToLower(message)

	for i := range accounts {
		if strings.Contains(messageLower, strings.ToLower(accounts[i].Name)) {
			return &accounts[i]
		}
	}

	for _, kw := range accountKeywords {
		triggered := false
		for _, trigger := range kw.triggers {
			if strings.Contains(messageLower, trigger) {
				triggered = true
				break
			}
		}
		if !triggered {
			continue
		}
		for i := range accounts {
			nameLower := strings.ToLower(accounts[i].Name)
			for _, sub := range kw.nameHas {
				if strings.Contains(nameLower, sub) {
					return &accounts[i]
				}
			}
		}
	}

	return nil
}

// findAccountByName matches a typed account name against the user's accounts,
// case-insensitively; exact match first, then unique prefix/substring.
func findAccountByName(name string, accounts []models.Account) *models.Account {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil
	}
	for i := range accounts {
		if strings.ToLower(accounts[i].Name) == needle {
			return &accounts[i]
		}
	}
	for i := range accounts {
		if strings.Contains(strings.ToLower(accounts[i].Name), needle) {
			return &accounts[i]
		}
	}
	return nil
}
