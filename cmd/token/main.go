// Command token prints a bearer token for an existing user, signed with
// JWT_SECRET and carrying the user's stored role.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"studiobook/internal/auth"
	"studiobook/internal/config"
	"studiobook/internal/db"
	"studiobook/internal/user"
	"studiobook/internal/viewer"
)

func main() {
	email := flag.String("email", "", "email of the user to issue a token for")
	ttl := flag.Duration("ttl", auth.DefaultTokenTTL, "token lifetime")
	flag.Parse()

	if err := run(*email, *ttl); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(email string, ttl time.Duration) error {
	if email == "" {
		flag.Usage()
		return errors.New("-email is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	u, err := user.NewRepository(database).FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("looking up %s: %w", email, err)
	}

	token, err := auth.IssueToken(viewer.Identity{UserID: u.ID, Email: u.Email, Role: u.Role}, cfg.JWTSecret, ttl)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
