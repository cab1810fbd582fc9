package store

import (
	"context"
	"log"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"teaflow/backend/internal/domain"
)

// SeedStaffAccounts creates the initial manager and barista accounts when
// the user store is empty, so a fresh deployment can log in. Passwords come
// from SEED_MANAGER_PASSWORD and SEED_BARISTA_PASSWORD; unset values fall
// back to dev defaults with a warning. A store that already has accounts is
// left untouched.
func SeedStaffAccounts(ctx context.Context, repo Repository) error {
	users, err := repo.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	baristaPwd := envOr("SEED_BARISTA_PASSWORD", "barista123")
	if os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_BARISTA_PASSWORD") == "" {
		log.Println("[store] WARNING: using default dev credentials. Set SEED_MANAGER_PASSWORD and SEED_BARISTA_PASSWORD to override.")
	}

	now := time.Now().UTC()
	for _, account := range []struct {
		username string
		password string
		role     string
	}{
		{"manager", managerPwd, domain.RoleManager},
		{"barista", baristaPwd, domain.RoleBarista},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(account.password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		err = repo.CreateUser(ctx, domain.UserAccount{
			Username:  account.username,
			Password:  string(hash),
			Role:      account.role,
			Active:    true,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
