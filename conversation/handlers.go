package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/finbot_backend/config"
	"bitbucket.org/mmdatafocus/finbot_backend/models"
	"bitbucket.org/mmdatafocus/finbot_backend/nlp"
	"bitbucket.org/mmdatafocus/finbot_backend/whatsapp"
)

func (r *Router) handleTransaction(ctx context.Context, from string, user *models.User, text string) {
	accounts, err := models.GetUserAccounts(ctx, user.ID)
	if err != nil {
		config.LogError(config.GetLogger(), "conversation", "handleTransaction", "GetUserAccounts", user.ID, err)
		r.reply(ctx, from, replyOperationFailed)
		return
	}
	if len(accounts) == 0 {
		r.reply(ctx, from, replyNoAccounts)
		return
	}

	extracted := r.classifier.ExtractTransaction(ctx, text)
	draft := &TransactionDraft{
		Kind:        extracted.Kind,
		Category:    extracted.Category,
		Amount:      extracted.Amount,
		Description: text,
	}

	var target *models.Account
	if len(accounts) == 1 {
		target = &accounts[0]
	} else {
		target = DetectAccount(text, accounts)
	}

	if target == nil {
		refs := make([]AccountRef, 0, len(accounts))
		for _, acc := range accounts {
			refs = append(refs, AccountRef{ID: acc.ID, Name: acc.Name})
		}
		r.store.Set(from, &Session{Flow: FlowAwaitingAccountSelection, Draft: draft, Accounts: refs})
		r.sendAccountChoices(ctx, from, accountSelectionPrompt(draft, refs), refs)
		return
	}

	r.postDraft(ctx, from, user, target.ID, draft)
}

// sendAccountChoices renders the selection as buttons when they fit (3 max)
// and as an interactive list otherwise. Plain numeric or name replies are
// accepted either way.
func (r *Router) sendAccountChoices(ctx context.Context, from, prompt string, refs []AccountRef) {
	if len(refs) <= 3 {
		buttons := make([]whatsapp.Button, 0, len(refs))
		for _, ref := range refs {
			buttons = append(buttons, whatsapp.Button{Title: ref.Name})
		}
		r.replyButtons(ctx, from, prompt, buttons)
		return
	}
	rows := make([]whatsapp.ListRow, 0, len(refs))
	for i, ref := range refs {
		rows = append(rows, whatsapp.ListRow{ID: fmt.Sprintf("acc_%d", i+1), Title: ref.Name})
	}
	r.replyList(ctx, from, prompt, "Elegir cuenta", []whatsapp.ListSection{{Rows: rows}})
}

// postDraft records the transaction and confirms with the new balance.
func (r *Router) postDraft(ctx context.Context, from string, user *models.User, accountId int, draft *TransactionDraft) {
	kind := models.TransactionKindExpense
	if draft.Kind == "income" {
		kind = models.TransactionKindIncome
	}

	_, err := models.PostTransaction(ctx, models.NewTransaction{
		AccountId:   accountId,
		UserId:      user.ID,
		Kind:        kind,
		Amount:      draft.Amount,
		Category:    draft.Category,
		Description: draft.Description,
	})
	if err != nil {
		config.LogError(config.GetLogger(), "conversation", "postDraft", "PostTransaction", accountId, err)
		r.reply(ctx, from, replyOperationFailed)
		return
	}

	account, err := models.GetAccountById(ctx, accountId)
	if err != nil {
		// The mutation committed; confirm without the balance line.
		config.LogError(config.GetLogger(), "conversation", "postDraft", "GetAccountById", accountId, err)
		r.reply(ctx, from, "✅ Movimiento registrado.")
		return
	}
	r.reply(ctx, from, transactionReply(draft.Kind, draft.Category, draft.Amount, account.Balance))
}

func (r *Router) handleBalance(ctx context.Context, from string, user *models.User) {
	accounts, err := models.GetUserAccounts(ctx, user.ID)
	if err != nil {
		config.LogError(config.GetLogger(), "conversation", "handleBalance", "GetUserAccounts", user.ID, err)
		r.reply(ctx, from, replyOperationFailed)
		return
	}
	if len(accounts) == 0 {
		r.reply(ctx, from, replyNoAccounts)
		return
	}
	r.reply(ctx, from, balanceReply(accounts))
}

// handleUnknown runs the local command grammar before giving up.
func (r *Router) handleUnknown(ctx context.Context, from string, user *models.User, text string) {
	if cmd := parseCommand(text); cmd != nil {
		switch cmd.kind {
		case cmdCreateAccount:
			r.handleCreateAccount(ctx, from, user, cmd.args[0])
		case cmdDeleteAccount:
			r.handleDeleteAccount(ctx, from, user, cmd.args[0])
		case cmdListAccounts:
			r.handleBalance(ctx, from, user)
		case cmdTransfer:
			r.handleTransfer(ctx, from, user, cmd.args[0], cmd.args[1], cmd.args[2])
		case cmdRenameAccount:
			r.handleRenameAccount(ctx, from, user, cmd.args[0], cmd.args[1])
		}
		return
	}

	if invite := nlp.ParseInviteCommand(text); invite != nil {
		r.handleInvite(ctx, from, user, invite)
		return
	}

	r.reply(ctx, from, replyNotUnderstood)
}

func (r *Router) handleCreateAccount(ctx context.Context, from string, user *models.User, name string) {
	account, err := models.CreateAccount(ctx, user.ID, name)
	if errors.Is(err, models.ErrDuplicateAccountName) {
		r.reply(ctx, from, fmt.Sprintf("Ya tienes una cuenta llamada \"%s\".", name))
		return
	}
	if err != nil {
		config.LogError(config.GetLogger(), "conversation", "handleCreateAccount", name, user.ID, err)
		r.reply(ctx, from, replyOperationFailed)
		return
	}
	r.reply(ctx, from, fmt.Sprintf("✅ Cuenta \"%s\" creada.", account.Name))
}

func (r *Router) handleDeleteAccount(ctx context.Context, from string, user *models.User, name string) {
	accounts, err := models.GetUserAccounts(ctx, user.ID)
	if err != nil {
		config.LogError(config.GetLogger(), "conversation", "handleDeleteAccount", name, user.ID, err)
		r.reply(ctx, from, replyOperationFailed)
		return
	}
	account := findAccountByName(name, accounts)
	if account == nil {
		r.reply(ctx, from, fmt.Sprintf("No encontré la cuenta \"%s\". Escribe \"mis cuentas\" para ver las tuyas.", name))
		return
	}

	r.store.Set(from, &Session{
		Flow:        FlowAwaitingDeleteConfirmation,
		AccountId:   account.ID,
		AccountName: account.Name,
	})
	r.replyButtons(ctx, from, deleteConfirmationPrompt(account.Name), []whatsapp.Button{
		{Title: "Confirmar"},
		{Title: "Cancelar"},
	})
}

func (r *Router) handleRenameAccount(ctx context.Context, from string, user *models.User, oldName, newName string) {
	accounts, err := models.GetUserAccounts(ctx, user.ID)
	if err != nil {
		config.LogError(config.GetLogger(), "conversation", "handleRenameAccount", oldName, user.ID, err)
		r.reply(ctx, from, replyOperationFailed)
		return
	}
	account := findAccountByName(oldName, accounts)
	if account == nil {
		r.reply(ctx, from, fmt.Sprintf("No encontré la cuenta \"%s\". Escribe \"mis cuentas\" para ver las tuyas.", oldName))
		return
	}
	for _, acc := range accounts {
		if acc.ID != account.ID && strings.EqualFold(acc.Name, newName) {
			r.reply(ctx, from, fmt.Sprintf("Ya tienes una cuenta llamada \"%s\".", acc.Name))
			return
		}
	}

	r.store.Set(from, &Session{
		Flow:        FlowAwaitingRenameConfirmation,
		AccountId:   account.ID,
		AccountName: account.Name,
		NewName:     newName,
	})
	r.reply(ctx, from, renameConfirmationPrompt(account.Name, newName))
}

func (r *Router) handleTransfer(ctx context.Context, from string, user *models.User, amountText, fromName, toName string) {
	amount, ok := parseAmount(amountText)
	if !ok {
		r.reply(ctx, from, "No entendí el monto a transferir. Ejemplo: \"transferir 5000 de Efectivo a Ahorros\".")
		return
	}

	accounts, err := models.GetUserAccounts(ctx, user.ID)
	if err != nil {
		config.LogError(config.GetLogger(), "conversation", "handleTransfer", "GetUserAccounts", user.ID, err)
		r.reply(ctx, from, replyOperationFailed)
		return
	}
	source := findAccountByName(fromName, accounts)
	if source == nil {
		r.reply(ctx, from, fmt.Sprintf("No encontré la cuenta de origen \"%s\".", fromName))
		return
	}
	destination := findAccountByName(toName, accounts)
	if destination == nil {
		r.reply(ctx, from, fmt.Sprintf("No encontré la cuenta de destino \"%s\".", toName))
		return
	}
	if source.ID == destination.ID {
		r.reply(ctx, from, "La cuenta de origen y destino no pueden ser la misma.")
		return
	}

	_, _, err = models.Transfer(ctx, source.ID, destination.ID, user.ID,
		amount, fmt.Sprintf("Transferencia de %s a %s", source.Name, destination.Name))
	if errors.Is(err, models.ErrInsufficientBalance) {
		r.reply(ctx, from, fmt.Sprintf("⚠️ Saldo insuficiente: \"%s\" tiene $%s.", source.Name, formatAmount(source.Balance)))
		return
	}
	if err != nil {
		config.LogError(config.GetLogger(), "conversation", "handleTransfer", "Transfer", source.ID, err)
		r.reply(ctx, from, replyOperationFailed)
		return
	}

	newSource, err1 := models.GetAccountById(ctx, source.ID)
	newDestination, err2 := models.GetAccountById(ctx, destination.ID)
	if err1 != nil || err2 != nil {
		r.reply(ctx, from, fmt.Sprintf("🔁 Transferencia de $%s realizada.", formatAmount(amount)))
		return
	}
	r.reply(ctx, from, fmt.Sprintf("🔁 Transferencia de $%s realizada.\n\n💰 %s: $%s\n💰 %s: $%s",
		formatAmount(amount),
		newSource.Name, formatAmount(newSource.Balance),
		newDestination.Name, formatAmount(newDestination.Balance)))
}

func (r *Router) handleInvite(ctx context.Context, from string, user *models.User, invite *nlp.InviteCommand) {
	accounts, err := models.GetUserAccounts(ctx, user.ID)
	if err != nil {
		config.LogError(config.GetLogger(), "conversation", "handleInvite", "GetUserAccounts", user.ID, err)
		r.reply(ctx, from, replyOperationFailed)
		return
	}
	account := findAccountByName(invite.AccountName, accounts)
	if account == nil {
		r.reply(ctx, from, fmt.Sprintf("No encontré la cuenta \"%s\". Escribe \"mis cuentas\" para ver las tuyas.", invite.AccountName))
		return
	}

	invitee, err := models.GetUserByEmailOrPhone(ctx, invite.Identifier)
	if err != nil {
		config.LogError(config.GetLogger(), "conversation", "handleInvite", "GetUserByEmailOrPhone", invite.Identifier, err)
		r.reply(ctx, from, replyOperationFailed)
		return
	}

	session := &Session{
		AccountId:         account.ID,
		AccountName:       account.Name,
		InviteeIdentifier: invite.Identifier,
	}
	if invitee != nil {
		session.Flow = FlowAwaitingInviteConfirmation
		r.store.Set(from, session)
		r.reply(ctx, from, inviteConfirmationPrompt(invite.Identifier, account.Name))
	} else {
		session.Flow = FlowAwaitingInviteToRegister
		r.store.Set(from, session)
		r.reply(ctx, from, inviteToRegisterPrompt(invite.Identifier, account.Name))
	}
}
