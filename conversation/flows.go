package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/finbot_backend/config"
	"bitbucket.org/mmdatafocus/finbot_backend/models"
	"bitbucket.org/mmdatafocus/finbot_backend/utils"
	"bitbucket.org/mmdatafocus/finbot_backend/whatsapp"
)

// resumeFlow interprets the message strictly as the answer to the open
// dialog. Every flow is terminal after one reply except account selection,
// which retries on an unrecognized answer.
func (r *Router) resumeFlow(ctx context.Context, from string, user *models.User, session *Session, text string) {
	switch session.Flow {
	case FlowAwaitingAccountSelection:
		r.resumeAccountSelection(ctx, from, user, session, text)
	case FlowAwaitingDeleteConfirmation:
		r.resumeDeleteConfirmation(ctx, from, session, text)
	case FlowAwaitingRenameConfirmation:
		r.resumeRenameConfirmation(ctx, from, session, text)
	case FlowAwaitingInviteConfirmation, FlowAwaitingInviteToRegister:
		r.resumeInviteConfirmation(ctx, from, user, session, text)
	case FlowAwaitingInvitationResponse:
		r.resumeInvitationResponse(ctx, from, user, session, text)
	default:
		r.store.Clear(from)
		r.reply(ctx, from, replyNotUnderstood)
	}
}

// selectAccount resolves a selection answer against the snapshot taken when
// the flow started: a 1-based index, or a name match in either direction.
func selectAccount(answer string, accounts []AccountRef) *AccountRef {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil
	}

	if index, err := strconv.Atoi(answer); err == nil {
		if index >= 1 && index <= len(accounts) {
			return &accounts[index-1]
		}
		return nil
	}

	answerLower := strings.ToLower(answer)
	for i := range accounts {
		nameLower := strings.ToLower(accounts[i].Name)
		if strings.Contains(nameLower, answerLower) || strings.Contains(answerLower, nameLower) {
			return &accounts[i]
		}
	}
	return nil
}

func (r *Router) resumeAccountSelection(ctx context.Context, from string, user *models.User, session *Session, text string) {
	selected := selectAccount(text, session.Accounts)
	if selected == nil {
		// Retry: the draft stays pending until it expires or is cancelled.
		r.reply(ctx, from, replySelectionRetry)
		return
	}
	r.store.Clear(from)
	r.postDraft(ctx, from, user, selected.ID, session.Draft)
}

func (r *Router) resumeDeleteConfirmation(ctx context.Context, from string, session *Session, text string) {
	r.store.Clear(from)

	// Anything but the exact word cancels; deletion is irreversible.
	if !strings.EqualFold(strings.TrimSpace(text), "confirmar") {
		r.reply(ctx, from, replyCancelled)
		return
	}

	if err := models.DeleteAccount(ctx, session.AccountId); err != nil {
		config.LogError(config.GetLogger(), "conversation", "resumeDeleteConfirmation", "DeleteAccount", session.AccountId, err)
		r.reply(ctx, from, replyOperationFailed)
		return
	}
	r.reply(ctx, from, fmt.Sprintf("🗑️ Cuenta \"%s\" eliminada.", session.AccountName))
}

func (r *Router) resumeRenameConfirmation(ctx context.Context, from string, session *Session, text string) {
	r.store.Clear(from)

	if !strings.Contains(strings.ToLower(text), "renombrar") {
		r.reply(ctx, from, replyCancelled)
		return
	}

	if err := models.RenameAccount(ctx, session.AccountId, session.NewName); err != nil {
		if errors.Is(err, models.ErrDuplicateAccountName) {
			r.reply(ctx, from, fmt.Sprintf("Ya tienes una cuenta llamada \"%s\".", session.NewName))
			return
		}
		config.LogError(config.GetLogger(), "conversation", "resumeRenameConfirmation", "RenameAccount", session.AccountId, err)
		r.reply(ctx, from, replyOperationFailed)
		return
	}
	r.reply(ctx, from, fmt.Sprintf("✏️ Listo! \"%s\" ahora se llama \"%s\".", session.AccountName, session.NewName))
}

func (r *Router) resumeInviteConfirmation(ctx context.Context, from string, user *models.User, session *Session, text string) {
	r.store.Clear(from)

	if !strings.Contains(strings.ToLower(text), "invitar") {
		r.reply(ctx, from, replyCancelled)
		return
	}

	invitation, err := models.CreateInvitation(ctx, session.AccountId, user.ID, session.InviteeIdentifier)
	if err != nil {
		config.LogError(config.GetLogger(), "conversation", "resumeInviteConfirmation", "CreateInvitation", session.InviteeIdentifier, err)
		r.reply(ctx, from, replyOperationFailed)
		return
	}

	r.reply(ctx, from, fmt.Sprintf("📨 Invitación enviada a %s para compartir \"%s\".", session.InviteeIdentifier, session.AccountName))

	// When the invitee is already registered with a phone, ping them right
	// away and open their response dialog.
	if invitation.UserExists && invitation.Type == models.InvitationTypePhone {
		inviteePhone := utils.DigitsOnly(invitation.InviteePhone)
		enriched, err := models.GetPendingInvitations(ctx, invitation.InviteePhone)
		if err != nil || len(enriched) == 0 {
			return
		}
		ids := make([]int, 0, len(enriched))
		for _, inv := range enriched {
			ids = append(ids, inv.ID)
		}
		r.store.Set(inviteePhone, &Session{Flow: FlowAwaitingInvitationResponse, InvitationIds: ids})
		r.store.MarkSeen(inviteePhone)
		r.replyButtons(ctx, inviteePhone, invitationResponsePrompt(enriched), []whatsapp.Button{
			{Title: "Aceptar"},
			{Title: "Rechazar"},
		})
	}
}

func (r *Router) resumeInvitationResponse(ctx context.Context, from string, user *models.User, session *Session, text string) {
	r.store.Clear(from)

	accept := strings.Contains(strings.ToLower(text), "aceptar")

	var accountNames []string
	for _, invitationId := range session.InvitationIds {
		if accept {
			invitation, err := models.AcceptInvitation(ctx, invitationId, user.ID)
			if err != nil {
				config.LogError(config.GetLogger(), "conversation", "resumeInvitationResponse", "AcceptInvitation", invitationId, err)
				continue
			}
			accountNames = append(accountNames, r.notifyInviter(ctx, invitation, user, true))
		} else {
			invitation, err := models.RejectInvitation(ctx, invitationId)
			if err != nil {
				config.LogError(config.GetLogger(), "conversation", "resumeInvitationResponse", "RejectInvitation", invitationId, err)
				continue
			}
			r.notifyInviter(ctx, invitation, user, false)
		}
	}

	if accept {
		if len(accountNames) == 0 {
			r.reply(ctx, from, replyOperationFailed)
			return
		}
		r.reply(ctx, from, fmt.Sprintf("🎉 Ahora compartes: %s", strings.Join(accountNames, ", ")))
		return
	}
	r.reply(ctx, from, "Listo, invitación rechazada. 👍")
}

// notifyInviter tells the inviting user the outcome and returns the account
// name for the invitee's confirmation.
func (r *Router) notifyInviter(ctx context.Context, invitation *models.Invitation, invitee *models.User, accepted bool) string {
	accountName := fmt.Sprintf("cuenta #%d", invitation.AccountId)
	if account, err := models.GetAccountById(ctx, invitation.AccountId); err == nil {
		accountName = account.Name
	}

	inviter, err := models.GetUserById(ctx, invitation.InviterUserId)
	if err != nil || inviter.PhoneNumber == "" {
		return accountName
	}

	var body string
	if accepted {
		body = fmt.Sprintf("✅ %s aceptó tu invitación a \"%s\".", invitee.Name, accountName)
	} else {
		body = fmt.Sprintf("❌ %s rechazó tu invitación a \"%s\".", invitee.Name, accountName)
	}
	r.reply(ctx, utils.DigitsOnly(inviter.PhoneNumber), body)
	return accountName
}
