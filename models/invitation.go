package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/finbot_backend/config"
	"bitbucket.org/mmdatafocus/finbot_backend/utils"
)

type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "pending"
	InvitationStatusAccepted InvitationStatus = "accepted"
	InvitationStatusRejected InvitationStatus = "rejected"
)

type InvitationType string

const (
	InvitationTypeEmail InvitationType = "email"
	InvitationTypePhone InvitationType = "phone"
)

var ErrInvitationClosed = errors.New("invitation already resolved")

// Invitation offers co-ownership of an account. Accepted and rejected
// invitations are terminal and never reopened.
type Invitation struct {
	ID            int              `gorm:"primary_key" json:"id"`
	AccountId     int              `gorm:"index;not null" json:"account_id"`
	InviterUserId int              `gorm:"index;not null" json:"inviter_user_id"`
	InviteeEmail  string           `gorm:"size:255;index" json:"invitee_email"`
	InviteePhone  string           `gorm:"size:32;index" json:"invitee_phone"`
	Type          InvitationType   `gorm:"size:8;not null" json:"type"`
	InviteeUserId *int             `gorm:"index" json:"invitee_user_id"`
	UserExists    bool             `gorm:"not null;default:false" json:"user_exists"`
	Status        InvitationStatus `gorm:"size:10;not null;default:'pending';index" json:"status"`
	AcceptedAt    *time.Time       `json:"accepted_at"`
	RejectedAt    *time.Time       `json:"rejected_at"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`

	// Filled in by GetPendingInvitations; never persisted.
	Account *Account `gorm:"-" json:"account,omitempty"`
	Inviter *User    `gorm:"-" json:"inviter,omitempty"`
}

// CreateInvitation classifies the identifier as email or phone, normalizes
// phones to the canonical form, and links the invitee user when one already
// exists.
func CreateInvitation(ctx context.Context, accountId, inviterUserId int, inviteeIdentifier string) (*Invitation, error) {
	invitation := Invitation{
		AccountId:     accountId,
		InviterUserId: inviterUserId,
		Status:        InvitationStatusPending,
	}

	if utils.IsEmailIdentifier(inviteeIdentifier) {
		invitation.Type = InvitationTypeEmail
		invitation.InviteeEmail = strings.TrimSpace(inviteeIdentifier)
	} else {
		invitation.Type = InvitationTypePhone
		invitation.InviteePhone = utils.CanonicalPhone(inviteeIdentifier)
	}

	existing, err := GetUserByEmailOrPhone(ctx, inviteeIdentifier)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		invitation.InviteeUserId = &existing.ID
		invitation.UserExists = true
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&invitation).Error; err != nil {
		return nil, err
	}
	return &invitation, nil
}

// GetPendingInvitations finds pending invitations for an identifier. Phone
// invitees may have been invited under any formatting of their number, so
// every variant is checked and results deduplicated by id. Results are
// enriched with the referenced account and the inviting user.
func GetPendingInvitations(ctx context.Context, identifier string) ([]Invitation, error) {
	db := config.GetDB()
	var invitations []Invitation

	if utils.IsEmailIdentifier(identifier) {
		err := db.WithContext(ctx).
			Where("invitee_email = ? AND status = ?", identifier, InvitationStatusPending).
			Order("id ASC").
			Find(&invitations).Error
		if err != nil {
			return nil, err
		}
	} else {
		seen := make(map[int]bool)
		for _, variant := range utils.PhoneVariants(identifier) {
			var batch []Invitation
			err := db.WithContext(ctx).
				Where("invitee_phone = ? AND status = ?", variant, InvitationStatusPending).
				Order("id ASC").
				Find(&batch).Error
			if err != nil {
				return nil, err
			}
			for _, inv := range batch {
				if seen[inv.ID] {
					continue
				}
				seen[inv.ID] = true
				invitations = append(invitations, inv)
			}
		}
	}

	for i := range invitations {
		if account, err := GetAccountById(ctx, invitations[i].AccountId); err == nil {
			invitations[i].Account = account
		}
		if inviter, err := GetUserById(ctx, invitations[i].InviterUserId); err == nil {
			invitations[i].Inviter = inviter
		}
	}
	return invitations, nil
}

func GetInvitationById(ctx context.Context, id int) (*Invitation, error) {
	db := config.GetDB()
	var invitation Invitation
	if err := db.WithContext(ctx).First(&invitation, id).Error; err != nil {
		return nil, err
	}
	return &invitation, nil
}

// AcceptInvitation adds userId to the account's owner set and marks the
// invitation accepted. Accepting twice is safe: the owner union is
// idempotent and the status transition only happens from pending.
func AcceptInvitation(ctx context.Context, invitationId, userId int) (*Invitation, error) {
	invitation, err := GetInvitationById(ctx, invitationId)
	if err != nil {
		return nil, err
	}
	if invitation.Status == InvitationStatusRejected {
		return nil, ErrInvitationClosed
	}

	if err := AddAccountOwner(ctx, invitation.AccountId, userId); err != nil {
		return nil, err
	}

	if invitation.Status == InvitationStatusPending {
		now := time.Now()
		db := config.GetDB()
		err = db.WithContext(ctx).Model(&Invitation{}).
			Where("id = ? AND status = ?", invitationId, InvitationStatusPending).
			Updates(map[string]interface{}{"status": InvitationStatusAccepted, "accepted_at": &now}).Error
		if err != nil {
			return nil, err
		}
		invitation.Status = InvitationStatusAccepted
		invitation.AcceptedAt = &now
	}
	return invitation, nil
}

// RejectInvitation marks a pending invitation rejected.
func RejectInvitation(ctx context.Context, invitationId int) (*Invitation, error) {
	invitation, err := GetInvitationById(ctx, invitationId)
	if err != nil {
		return nil, err
	}
	if invitation.Status != InvitationStatusPending {
		return nil, ErrInvitationClosed
	}
	now := time.Now()
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&Invitation{}).
		Where("id = ? AND status = ?", invitationId, InvitationStatusPending).
		Updates(map[string]interface{}{"status": InvitationStatusRejected, "rejected_at": &now}).Error
	if err != nil {
		return nil, err
	}
	invitation.Status = InvitationStatusRejected
	invitation.RejectedAt = &now
	return invitation, nil
}
