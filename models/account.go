package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/finbot_backend/config"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var ErrDuplicateAccountName = errors.New("account name already in use")

// Account balance is maintained exclusively through the atomic increments in
// transaction.go; nothing else may write the balance column.
type Account struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	IsDefault *bool     `gorm:"not null;default:false" json:"is_default"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AccountOwner models collaborative ownership. The composite unique index
// makes the owner union idempotent: re-adding an owner is a tolerated
// duplicate-key insert, mirroring a document store's arrayUnion.
type AccountOwner struct {
	ID        int       `gorm:"primary_key" json:"id"`
	AccountId int       `gorm:"not null;uniqueIndex:idx_account_owner" json:"account_id"`
	UserId    int       `gorm:"not null;index;uniqueIndex:idx_account_owner" json:"user_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// sqlite (tests)
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetUserAccounts returns every account the user owns or co-owns, ordered by
// id so that first-match account detection stays deterministic.
func GetUserAccounts(ctx context.Context, userId int) ([]Account, error) {
	db := config.GetDB()
	var accounts []Account
	err := db.WithContext(ctx).
		Joins("JOIN account_owners ON account_owners.account_id = accounts.id").
		Where("account_owners.user_id = ?", userId).
		Order("accounts.id ASC").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func GetAccountById(ctx context.Context, id int) (*Account, error) {
	db := config.GetDB()
	var account Account
	if err := db.WithContext(ctx).First(&account, id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func GetAccountOwners(ctx context.Context, accountId int) ([]User, error) {
	db := config.GetDB()
	var owners []User
	err := db.WithContext(ctx).
		Joins("JOIN account_owners ON account_owners.user_id = users.id").
		Where("account_owners.account_id = ?", accountId).
		Order("users.id ASC").
		Find(&owners).Error
	if err != nil {
		return nil, err
	}
	return owners, nil
}

// CreateAccount creates an account owned by userId. Names are unique per
// owner, compared case-insensitively.
func CreateAccount(ctx context.Context, userId int, name string) (*Account, error) {
	existing, err := GetUserAccounts(ctx, userId)
	if err != nil {
		return nil, err
	}
	for _, acc := range existing {
		if strings.EqualFold(acc.Name, name) {
			return nil, ErrDuplicateAccountName
		}
	}

	db := config.GetDB()
	account := Account{Name: name}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&account).Error; err != nil {
			return err
		}
		return tx.Create(&AccountOwner{AccountId: account.ID, UserId: userId}).Error
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// DeleteAccount removes the account and its ownership rows. Ledger entries
// are never deleted; they keep referencing the dead account id.
func DeleteAccount(ctx context.Context, accountId int) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", accountId).Delete(&AccountOwner{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Account{}, accountId).Error
	})
}

// RenameAccount changes the display name. The uniqueness rule from
// CreateAccount still holds: the new name must not collide, case-insensitively,
// with another account any current owner already has.
func RenameAccount(ctx context.Context, accountId int, newName string) error {
	owners, err := GetAccountOwners(ctx, accountId)
	if err != nil {
		return err
	}
	for _, owner := range owners {
		accounts, err := GetUserAccounts(ctx, owner.ID)
		if err != nil {
			return err
		}
		for _, acc := range accounts {
			if acc.ID != accountId && strings.EqualFold(acc.Name, newName) {
				return ErrDuplicateAccountName
			}
		}
	}

	db := config.GetDB()
	return db.WithContext(ctx).Model(&Account{}).
		Where("id = ?", accountId).
		Update("name", newName).Error
}

// AddAccountOwner grants co-ownership. Idempotent: re-adding the same owner
// is a no-op.
func AddAccountOwner(ctx context.Context, accountId, userId int) error {
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&AccountOwner{AccountId: accountId, UserId: userId}).Error
	if err != nil && !isDuplicateKeyErr(err) {
		return err
	}
	return nil
}

// SetDefaultAccount marks accountId as the user's default and clears the flag
// on their other accounts.
func SetDefaultAccount(ctx context.Context, userId, accountId int) error {
	accounts, err := GetUserAccounts(ctx, userId)
	if err != nil {
		return err
	}
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, acc := range accounts {
			if err := tx.Model(&Account{}).
				Where("id = ?", acc.ID).
				Update("is_default", acc.ID == accountId).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
