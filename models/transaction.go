package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/finbot_backend/config"
	"bitbucket.org/mmdatafocus/finbot_backend/utils"
	"gorm.io/gorm"
)

type TransactionKind string

const (
	TransactionKindIncome  TransactionKind = "income"
	TransactionKindExpense TransactionKind = "expense"
)

const TransferCategory = "Transferencia"

var ErrInsufficientBalance = errors.New("insufficient balance")

// Transaction is an immutable ledger entry: rows are only ever inserted.
// A nil Amount means the classifier could not extract a number; the row is
// still recorded but the balance is untouched.
type Transaction struct {
	ID          int             `gorm:"primary_key" json:"id"`
	AccountId   int             `gorm:"index;not null" json:"account_id" binding:"required"`
	UserId      int             `gorm:"index;not null" json:"user_id" binding:"required"`
	Kind        TransactionKind `gorm:"size:12;not null" json:"kind" binding:"required"`
	Amount      *int64          `json:"amount"`
	Category    string          `gorm:"size:50" json:"category"`
	Description string          `gorm:"type:text" json:"description"`
	Source      string          `gorm:"size:20;not null;default:'whatsapp'" json:"source"`
	MessageId   string          `gorm:"size:128;index" json:"message_id"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (t *Transaction) signedAmount() int64 {
	if t.Amount == nil {
		return 0
	}
	if t.Kind == TransactionKindIncome {
		return *t.Amount
	}
	return -*t.Amount
}

// applyIncrement mutates the account balance with a single relative UPDATE.
// It never reads the prior balance, so concurrent postings against the same
// account cannot lose increments.
func applyIncrement(tx *gorm.DB, accountId int, delta int64) error {
	return tx.Model(&Account{}).
		Where("id = ?", accountId).
		UpdateColumn("balance", gorm.Expr("balance + ?", delta)).Error
}

type NewTransaction struct {
	AccountId   int
	UserId      int
	Kind        TransactionKind
	Amount      *int64
	Category    string
	Description string
	Source      string
}

// PostTransaction records the ledger entry, then applies the atomic balance
// increment when an amount was detected.
func PostTransaction(ctx context.Context, input NewTransaction) (*Transaction, error) {
	db := config.GetDB()

	source := input.Source
	if source == "" {
		source = "whatsapp"
	}
	messageId, _ := utils.GetCorrelationIdFromContext(ctx)

	transaction := Transaction{
		AccountId:   input.AccountId,
		UserId:      input.UserId,
		Kind:        input.Kind,
		Amount:      input.Amount,
		Category:    input.Category,
		Description: input.Description,
		Source:      source,
		MessageId:   messageId,
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&transaction).Error; err != nil {
			return err
		}
		if transaction.Amount == nil {
			return nil
		}
		return applyIncrement(tx, transaction.AccountId, transaction.signedAmount())
	})
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

// Transfer moves amount between two accounts as one all-or-nothing unit: the
// expense leg, the income leg and both increments commit together or not at
// all. The balance precondition is checked against the snapshot fetched here;
// a stale read can at worst let the source go negative, never half-apply.
func Transfer(ctx context.Context, fromAccountId, toAccountId, userId int, amount int64, description string) (expense *Transaction, income *Transaction, err error) {
	from, err := GetAccountById(ctx, fromAccountId)
	if err != nil {
		return nil, nil, err
	}
	if from.Balance < amount {
		return nil, nil, ErrInsufficientBalance
	}

	messageId, _ := utils.GetCorrelationIdFromContext(ctx)

	out := Transaction{
		AccountId:   fromAccountId,
		UserId:      userId,
		Kind:        TransactionKindExpense,
		Amount:      &amount,
		Category:    TransferCategory,
		Description: description,
		Source:      "whatsapp",
		MessageId:   messageId,
	}
	in := Transaction{
		AccountId:   toAccountId,
		UserId:      userId,
		Kind:        TransactionKindIncome,
		Amount:      &amount,
		Category:    TransferCategory,
		Description: description,
		Source:      "whatsapp",
		MessageId:   messageId,
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&out).Error; err != nil {
			return err
		}
		if err := applyIncrement(tx, fromAccountId, -amount); err != nil {
			return err
		}
		if err := tx.Create(&in).Error; err != nil {
			return err
		}
		return applyIncrement(tx, toAccountId, amount)
	})
	if err != nil {
		return nil, nil, err
	}
	return &out, &in, nil
}

// LedgerBalance recomputes an account balance from its ledger entries. The
// stored balance column must always equal this sum.
func LedgerBalance(ctx context.Context, accountId int) (int64, error) {
	db := config.GetDB()
	var balance int64
	err := db.WithContext(ctx).Model(&Transaction{}).
		Where("account_id = ? AND amount IS NOT NULL", accountId).
		Select("COALESCE(SUM(CASE WHEN kind = 'income' THEN amount ELSE -amount END), 0)").
		Scan(&balance).Error
	return balance, err
}

// GetAccountTransactions returns the ledger entries for an account, newest
// first.
func GetAccountTransactions(ctx context.Context, accountId int, limit int) ([]Transaction, error) {
	db := config.GetDB()
	var transactions []Transaction
	q := db.WithContext(ctx).
		Where("account_id = ?", accountId).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&transactions).Error; err != nil {
		return nil, err
	}
	return transactions, nil
}
