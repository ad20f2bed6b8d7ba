package conversation

import (
	"regexp"
	"strconv"
	"strings"
)

// The command grammar is an ordered rule set, matched only after the oracle
// classified a message as unknown. Keeping it as a table makes the matching
// auditable without going through the classifier.

type commandKind int

const (
	cmdCreateAccount commandKind = iota
	cmdDeleteAccount
	cmdListAccounts
	cmdTransfer
	cmdRenameAccount
)

type command struct {
	kind commandKind
	args []string
}

var commandRules = []struct {
	kind commandKind
	re   *regexp.Regexp
}{
	{cmdCreateAccount, regexp.MustCompile(`(?i)^\s*crear\s+(?:nueva\s+)?cuenta\s+(.+?)\s*$`)},
	{cmdDeleteAccount, regexp.MustCompile(`(?i)^\s*(?:eliminar|borrar)\s+cuenta\s+(.+?)\s*$`)},
	{cmdListAccounts, regexp.MustCompile(`(?i)^\s*(?:mis\s+cuentas|listar\s+cuentas|ver\s+cuentas|cuentas)\s*$`)},
	{cmdTransfer, regexp.MustCompile(`(?i)^\s*transferir\s+\$?([\d.,]+)\s+de(?:sde)?\s+(.+?)\s+a\s+(.+?)\s*$`)},
	{cmdRenameAccount, regexp.MustCompile(`(?i)^\s*renombrar\s+(?:cuenta\s+)?(.+?)\s+a\s+(.+?)\s*$`)},
}

func parseCommand(text string) *command {
	for _, rule := range commandRules {
		if m := rule.re.FindStringSubmatch(text); m != nil {
			args := make([]string, 0, len(m)-1)
			for _, arg := range m[1:] {
				args = append(args, strings.TrimSpace(arg))
			}
			return &command{kind: rule.kind, args: args}
		}
	}
	return nil
}

// parseAmount reads a user-typed amount. Dots and commas are thousand
// separators in es-CL; amounts are whole units.
func parseAmount(s string) (int64, bool) {
	cleaned := strings.NewReplacer(".", "", ",", "", "$", "").Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return 0, false
	}
	amount, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil || amount <= 0 {
		return 0, false
	}
	return amount, true
}
