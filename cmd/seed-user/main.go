// seed-user registers a user with their personal account. Registration has no
// self-service flow over WhatsApp yet, so onboarding happens with this tool.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//     go run ./cmd/seed-user -name "Ana Pérez" -phone +56912345678 -email ana@example.com
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/finbot_backend/config"
	"bitbucket.org/mmdatafocus/finbot_backend/models"
	"bitbucket.org/mmdatafocus/finbot_backend/utils"
)

func main() {
	name := flag.String("name", "", "display name")
	phone := flag.String("phone", "", "phone number in any common format")
	email := flag.String("email", "", "email address")
	flag.Parse()

	if *name == "" || *phone == "" {
		fmt.Fprintln(os.Stderr, "usage: seed-user -name NAME -phone PHONE [-email EMAIL]")
		os.Exit(2)
	}
	if *email != "" && !utils.IsValidEmail(*email) {
		fmt.Fprintf(os.Stderr, "invalid email: %q\n", *email)
		os.Exit(2)
	}
	if err := utils.ValidatePhoneNumber(*phone); err != nil {
		fmt.Fprintf(os.Stderr, "invalid phone number %q: %v\n", *phone, err)
		os.Exit(2)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	if existing, err := models.GetUserByPhone(ctx, *phone); err != nil {
		fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
		os.Exit(1)
	} else if existing != nil {
		fmt.Printf("User already registered: id=%d name=%q phone=%q\n", existing.ID, existing.Name, existing.PhoneNumber)
		return
	}

	user, err := models.RegisterUser(ctx, *name, *phone, *email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to register user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Registered user: id=%d name=%q phone=%q\n", user.ID, user.Name, user.PhoneNumber)
}
