package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/ItsMariusBC/TrainStats/pkg/config"
	"github.com/ItsMariusBC/TrainStats/pkg/db"
	"github.com/ItsMariusBC/TrainStats/pkg/models"
)

// createadmin bootstraps an ADMIN account directly in the database. Useful
// on a fresh install when no seed credentials were configured, or after
// locking the last admin out.
func main() {
	email := flag.String("email", "", "email address of the admin account")
	name := flag.String("name", "Admin", "display name")
	password := flag.String("password", "", "password (at least 8 characters)")
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: createadmin -email <email> -password <password> [-name <name>]")
		os.Exit(2)
	}
	if len(*password) < 8 {
		fmt.Fprintln(os.Stderr, "password must be at least 8 characters")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	database, err := db.New(&cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate database: %v\n", err)
		os.Exit(1)
	}

	repo := db.NewRepository(database)

	if _, err := repo.GetUserByEmail(*email); err == nil {
		fmt.Fprintf(os.Stderr, "an account already exists for %s\n", *email)
		os.Exit(1)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		fmt.Fprintf(os.Stderr, "failed to look up account: %v\n", err)
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), cfg.Security.BcryptCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	admin := &models.User{
		Email:    *email,
		Name:     *name,
		Password: string(hash),
		Role:     models.RoleAdmin,
	}
	if err := repo.CreateUser(admin); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create admin: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("created admin %s (id %d)\n", admin.Email, admin.ID)
}
