package db

import (
	"context"
	"errors"

	"github.com/geocoder89/authhub/internal/config"
	"github.com/geocoder89/authhub/internal/domain/user"
)

type PasswordHasher interface {
	HashPassword(plain string) (string, error)
}

// EnsureAdminUser creates the configured admin account once. It is a no-op
// when no admin credentials are configured or the email already exists.
func EnsureAdminUser(ctx context.Context, store user.Store, hasher PasswordHasher, cfg config.Config) (bool, error) {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return false, nil
	}

	email := user.NormalizeEmail(cfg.AdminEmail, cfg.EmailCaseInsensitive)

	// check if the user exists
	_, err := store.FindByEmail(ctx, email)

	if err == nil {
		return false, nil
	}

	if !errors.Is(err, user.ErrNotFound) {
		return false, err
	}

	hash, err := hasher.HashPassword(cfg.AdminPassword)

	if err != nil {
		return false, err
	}

	_, err = store.Create(ctx, user.NewUser{
		FirstName:    cfg.AdminFirstName,
		LastName:     cfg.AdminLastName,
		Email:        email,
		PasswordHash: hash,
		Role:         user.RoleAdmin,
	})

	if errors.Is(err, user.ErrEmailTaken) {
		// another instance won the race
		return false, nil
	}

	return err == nil, err
}
