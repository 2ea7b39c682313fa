// Command create_admin bootstraps the first admin account. It reuses the
// server configuration, so the same .env that runs the API creates the user.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/arvichandar/facemark-api/pkg/config"
	"github.com/arvichandar/facemark-api/pkg/database"
)

func main() {
	var (
		email    string
		password string
		fullName string
	)

	flag.StringVar(&email, "email", "", "Admin email (required)")
	flag.StringVar(&password, "password", "", "Admin password (required)")
	flag.StringVar(&fullName, "name", "Administrator", "Admin display name")
	flag.Parse()

	if email == "" || password == "" {
		log.Fatal("both -email and -password are required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer db.Close() //nolint:errcheck

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()
	_, err = db.Exec(`
		INSERT INTO users (id, email, password_hash, full_name, role, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'ADMIN', true, $5, $5)
		ON CONFLICT (email) DO UPDATE
		SET password_hash = EXCLUDED.password_hash, active = true, updated_at = EXCLUDED.updated_at`,
		uuid.NewString(), email, string(hash), fullName, now)
	if err != nil {
		log.Fatalf("create admin: %v", err)
	}

	log.Printf("admin account ready: %s", email)
}
