package conversation

import (
	"testing"

	"bitbucket.org/mmdatafocus/finbot_backend/models"
	"github.com/stretchr/testify/require"
)

func namedAccounts(names ...string) []models.Account {
	accounts := make([]models.Account, 0, len(names))
	for i, name := range names {
		accounts = append(accounts, models.Account{ID: i + 1, Name: name})
	}
	return accounts
}

func TestDetectAccount_NameMention(t *testing.T) {
	accounts := namedAccounts("Efectivo", "Cuenta Ahorros")

	got := DetectAccount("gasté 5000 del efectivo en pan", accounts)
	require.NotNil(t, got)
	require.Equal(t, "Efectivo", got.Name)
}

func TestDetectAccount_KeywordFallback(t *testing.T) {
	accounts := namedAccounts("Cuenta Débito", "Efectivo")

	// No account name in the text; "tarjeta" maps to the débito account.
	got := DetectAccount("pagué 12000 con tarjeta", accounts)
	require.NotNil(t, got)
	require.Equal(t, "Cuenta Débito", got.Name)
}

func TestDetectAccount_OldestWinsOnCollision(t *testing.T) {
	// Both names contain "ahorro"; the lower id is listed first.
	accounts := namedAccounts("Ahorro Casa", "Ahorro Viaje")

	got := DetectAccount("deposité 10000 al ahorro", accounts)
	require.NotNil(t, got)
	require.Equal(t, "Ahorro Casa", got.Name)
}

func TestDetectAccount_NoMatch(t *testing.T) {
	accounts := namedAccounts("Efectivo", "Débito")
	require.Nil(t, DetectAccount("gasté 3000 en el cine", accounts))
	require.Nil(t, DetectAccount("gasté 3000", nil))
}

func TestFindAccountByName_ExactBeforeSubstring(t *testing.T) {
	accounts := namedAccounts("Ahorros Largo Plazo", "Ahorros")

	got := findAccountByName("ahorros", accounts)
	require.NotNil(t, got)
	require.Equal(t, "Ahorros", got.Name)

	got = findAccountByName("largo", accounts)
	require.NotNil(t, got)
	require.Equal(t, "Ahorros Largo Plazo", got.Name)

	require.Nil(t, findAccountByName("inexistente", accounts))
	require.Nil(t, findAccountByName("  ", accounts))
}

func TestSelectAccount(t *testing.T) {
	refs := []AccountRef{{ID: 1, Name: "Efectivo"}, {ID: 2, Name: "Cuenta Débito"}}

	got := selectAccount("2", refs)
	require.NotNil(t, got)
	require.Equal(t, 2, got.ID)

	got = selectAccount("débito", refs)
	require.NotNil(t, got)
	require.Equal(t, 2, got.ID)

	got = selectAccount("Efectivo", refs)
	require.NotNil(t, got)
	require.Equal(t, 1, got.ID)

	require.Nil(t, selectAccount("0", refs))
	require.Nil(t, selectAccount("3", refs))
	require.Nil(t, selectAccount("otra", refs))
	require.Nil(t, selectAccount("", refs))
}
