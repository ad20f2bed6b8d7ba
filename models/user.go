package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/finbot_backend/config"
	"bitbucket.org/mmdatafocus/finbot_backend/utils"
	"gorm.io/gorm"
)

// User is created by the web registration flow, never from chat. A user with
// no email is "incomplete" and must not transact through the bot.
type User struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	PhoneNumber string    `gorm:"size:32;index" json:"phone_number"`
	Email       string    `gorm:"size:255;index" json:"email"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) IsComplete() bool {
	return u.PhoneNumber != "" && u.Email != ""
}

// GetUserByPhone tries every formatting variant of the number, since the
// registration form accepts numbers in any format.
func GetUserByPhone(ctx context.Context, phoneNumber string) (*User, error) {
	db := config.GetDB()
	for _, variant := range utils.PhoneVariants(phoneNumber) {
		var user User
		err := db.WithContext(ctx).Where("phone_number = ?", variant).First(&user).Error
		if err == nil {
			return &user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func GetUserByEmail(ctx context.Context, email string) (*User, error) {
	db := config.GetDB()
	var user User
	err := db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUserByEmailOrPhone(ctx context.Context, identifier string) (*User, error) {
	if utils.IsEmailIdentifier(identifier) {
		return GetUserByEmail(ctx, identifier)
	}
	return GetUserByPhone(ctx, identifier)
}

func GetUserById(ctx context.Context, id int) (*User, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// RegisterUser creates a user together with their personal default account.
// Used by the registration backend and cmd/seed-user, not by chat handlers.
func RegisterUser(ctx context.Context, name, phoneNumber, email string) (*User, error) {
	db := config.GetDB()
	user := User{
		Name:        name,
		PhoneNumber: utils.CanonicalPhone(phoneNumber),
		Email:       email,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		account := Account{
			Name:      "Cuenta Personal",
			IsDefault: utils.NewTrue(),
		}
		if err := tx.Create(&account).Error; err != nil {
			return err
		}
		return tx.Create(&AccountOwner{AccountId: account.ID, UserId: user.ID}).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}
