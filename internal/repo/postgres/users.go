package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type UsersRepo struct {
	pool *pgxpool.Pool
}

func NewUsersRepo(pool *pgxpool.Pool) *UsersRepo {
	return &UsersRepo{pool: pool}
}

func (r *UsersRepo) FindByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := r.pool.QueryRow(
		ctx,
		`SELECT id, first_name, last_name, email, password_hash, role, created_at, updated_at
         FROM users
         WHERE email = $1`,
		email,
	).Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	if err != nil {
		return user.User{}, mapErr(err)
	}
	return u, nil
}

// FindByID leaves password_hash out of the projection.
func (r *UsersRepo) FindByID(ctx context.Context, id string) (user.User, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT id, first_name, last_name, email, role, created_at, updated_at
         FROM users
         WHERE id = $1`,
		id,
	)

	u, err := scanPublic(row)
	if err != nil {
		return user.User{}, mapErr(err)
	}
	return u, nil
}

func (r *UsersRepo) Create(ctx context.Context, nu user.NewUser) (user.User, error) {
	now := time.Now().UTC()

	role := nu.Role
	if role == "" {
		role = user.RoleUser
	}

	u := user.User{
		ID:           uuid.NewString(),
		FirstName:    nu.FirstName,
		LastName:     nu.LastName,
		Email:        nu.Email,
		PasswordHash: nu.PasswordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, first_name, last_name, email, password_hash, role, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
		u.ID, u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Role, u.CreatedAt, u.UpdatedAt,
	)

	if err != nil {
		return user.User{}, mapErr(err)
	}

	return u, nil
}

func (r *UsersRepo) UpdateProfile(ctx context.Context, id string, upd user.ProfileUpdate) (user.User, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE users
		SET first_name = COALESCE($2::text, first_name),
		    last_name  = COALESCE($3::text, last_name),
		    email      = COALESCE($4::text, email),
		    updated_at = $5
		WHERE id = $1
		RETURNING id, first_name, last_name, email, role, created_at, updated_at`,
		id, upd.FirstName, upd.LastName, upd.Email, time.Now().UTC(),
	)

	u, err := scanPublic(row)
	if err != nil {
		return user.User{}, mapErr(err)
	}
	return u, nil
}

func (r *UsersRepo) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users`)
	if err != nil {
		return 0, fmt.Errorf("delete users: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanPublic(row pgx.Row) (user.User, error) {
	var u user.User

	err := row.Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return user.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", user.ErrEmailTaken, pgErr.ConstraintName)
	}

	return err
}
