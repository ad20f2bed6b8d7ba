package models

import (
	"log"

	"bitbucket.org/mmdatafocus/finbot_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&Account{}, &AccountOwner{},
		&Transaction{},
		&Invitation{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
