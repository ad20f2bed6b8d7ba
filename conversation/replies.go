package conversation

import (
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/finbot_backend/models"
)

const (
	replyWelcome = "¡Bienvenido a FinanzApp! 🎉\n\nYa puedes empezar a registrar tus gastos e ingresos.\n\nEjemplos:\n- \"Gasté 5000 en supermercado\"\n- \"Recibí 50000 de freelance\""

	replyRegistrationRequired = "👋 Hola! Para usar FinanzApp primero debes crear tu cuenta en la app web.\n\nUna vez registrado con este número podrás anotar tus gastos e ingresos por aquí."

	replyGreeting = "¡Hola! 👋 Soy FinanzApp.\n\nCuéntame un gasto o ingreso y lo anoto. Por ejemplo:\n- \"Gasté 5000 en supermercado\"\n- \"Recibí 50000 de freelance\"\n\nEscribe \"ayuda\" para ver todo lo que puedo hacer."

	replyHelp = "📖 Esto es lo que puedo hacer:\n\n💸 Registrar movimientos: \"Gasté 5000 en supermercado\"\n💰 Ver tu balance: \"Cuánto tengo\"\n📋 Tus cuentas: \"mis cuentas\"\n➕ Crear cuenta: \"crear cuenta Ahorros\"\n🗑️ Eliminar cuenta: \"eliminar cuenta Ahorros\"\n✏️ Renombrar: \"renombrar Ahorros a Vacaciones\"\n🔁 Transferir: \"transferir 5000 de Efectivo a Ahorros\"\n🤝 Compartir cuenta: \"Invitar a +56912345678 a Gastos del Hogar\"\n\nEscribe \"cancelar\" en cualquier momento para salir de una operación."

	replyCancelled = "❌ Operación cancelada."

	replyNotUnderstood = "🤔 No entendí tu mensaje.\n\nPuedes anotar un movimiento (\"Gasté 5000 en supermercado\") o escribir \"ayuda\" para ver las opciones."

	replyNoAccounts = "No tienes cuentas configuradas. Crea una con \"crear cuenta <nombre>\" o contacta soporte."

	replyOperationFailed = "⚠️ Algo salió mal y no pude completar la operación. Inténtalo de nuevo en un momento."

	replySelectionRetry = "No reconocí esa cuenta. Responde con el número o el nombre de una de las opciones, o escribe \"cancelar\"."
)

// formatAmount renders a whole-unit amount with es-CL dot grouping: 5000 → "5.000".
func formatAmount(amount int64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}
	digits := fmt.Sprintf("%d", amount)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if negative {
		return "-" + b.String()
	}
	return b.String()
}

func transactionReply(kind string, category string, amount *int64, balance int64) string {
	emoji, typeText := "💸", "Gasto"
	if kind == "income" {
		emoji, typeText = "💰", "Ingreso"
	}

	amountText := "No detectado"
	if amount != nil {
		amountText = "$" + formatAmount(*amount)
	}

	reply := fmt.Sprintf("%s %s registrado\n\n", emoji, typeText)
	reply += fmt.Sprintf("📝 Categoría: %s\n", category)
	reply += fmt.Sprintf("💵 Monto: %s\n", amountText)
	reply += fmt.Sprintf("📊 Balance actual: $%s", formatAmount(balance))
	return reply
}

func balanceReply(accounts []models.Account) string {
	var b strings.Builder
	b.WriteString("📊 Tus cuentas:\n\n")
	var total int64
	for _, acc := range accounts {
		marker := ""
		if acc.IsDefault != nil && *acc.IsDefault {
			marker = " ⭐"
		}
		fmt.Fprintf(&b, "💰 %s: $%s%s\n", acc.Name, formatAmount(acc.Balance), marker)
		total += acc.Balance
	}
	fmt.Fprintf(&b, "\nTotal: $%s", formatAmount(total))
	return b.String()
}

func accountSelectionPrompt(draft *TransactionDraft, accounts []AccountRef) string {
	var b strings.Builder
	amountText := "monto no detectado"
	if draft.Amount != nil {
		amountText = "$" + formatAmount(*draft.Amount)
	}
	fmt.Fprintf(&b, "¿En qué cuenta registro este movimiento de %s?\n\n", amountText)
	for i, acc := range accounts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, acc.Name)
	}
	b.WriteString("\nResponde con el número o el nombre de la cuenta.")
	return b.String()
}

func deleteConfirmationPrompt(accountName string) string {
	return fmt.Sprintf("⚠️ Vas a eliminar la cuenta \"%s\". Esta acción es irreversible.\n\nResponde \"confirmar\" para eliminarla; cualquier otra respuesta cancela.", accountName)
}

func renameConfirmationPrompt(oldName, newName string) string {
	return fmt.Sprintf("✏️ Vas a renombrar \"%s\" a \"%s\".\n\nResponde \"renombrar\" para confirmar; cualquier otra respuesta cancela.", oldName, newName)
}

func inviteConfirmationPrompt(identifier, accountName string) string {
	return fmt.Sprintf("🤝 Vas a invitar a %s a compartir la cuenta \"%s\".\n\nResponde \"invitar\" para confirmar; cualquier otra respuesta cancela.", identifier, accountName)
}

func inviteToRegisterPrompt(identifier, accountName string) string {
	return fmt.Sprintf("🤝 %s aún no está registrado en FinanzApp. La invitación a \"%s\" quedará pendiente hasta que cree su cuenta.\n\nResponde \"invitar\" para dejarla lista; cualquier otra respuesta cancela.", identifier, accountName)
}

func invitationResponsePrompt(invitations []models.Invitation) string {
	var b strings.Builder
	if len(invitations) == 1 {
		inv := invitations[0]
		fmt.Fprintf(&b, "📨 %s te invitó a compartir la cuenta \"%s\".\n\n", invitationInviterName(inv), invitationAccountName(inv))
	} else {
		b.WriteString("📨 Tienes invitaciones pendientes:\n\n")
		for _, inv := range invitations {
			fmt.Fprintf(&b, "- \"%s\" (de %s)\n", invitationAccountName(inv), invitationInviterName(inv))
		}
		b.WriteString("\n")
	}
	b.WriteString("Responde \"aceptar\" para unirte o cualquier otra cosa para rechazar.")
	return b.String()
}

func invitationAccountName(inv models.Invitation) string {
	if inv.Account != nil {
		return inv.Account.Name
	}
	return fmt.Sprintf("cuenta #%d", inv.AccountId)
}

func invitationInviterName(inv models.Invitation) string {
	if inv.Inviter != nil {
		return inv.Inviter.Name
	}
	return "Alguien"
}
