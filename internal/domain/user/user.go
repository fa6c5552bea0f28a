package user

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already in use")
)

type User struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Public is the only user shape the API returns.
type Public struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

func (u User) Public() Public {
	return Public{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      u.Role,
	}
}

type NewUser struct {
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Role         string
}

// ProfileUpdate carries a partial update; nil fields are left alone.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Email     *string
}

func (p ProfileUpdate) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Email == nil
}

// Store is the credential store contract shared by every backend.
// FindByEmail returns the password hash, FindByID never does.
type Store interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, nu NewUser) (User, error)
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (User, error)
	DeleteAll(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// maxbytes caps the password at bcrypt's 72 byte input limit; max would
// count runes.
type RegisterRequest struct {
	FirstName string `json:"firstName" binding:"required,notblank,max=100"`
	LastName  string `json:"lastName" binding:"required,notblank,max=100"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8,maxbytes=72"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	FirstName *string `json:"firstName" binding:"omitempty,notblank,max=100"`
	LastName  *string `json:"lastName" binding:"omitempty,notblank,max=100"`
	Email     *string `json:"email" binding:"omitempty,email"`
}

func (r UpdateProfileRequest) ToUpdate(normalize func(string) string) ProfileUpdate {
	upd := ProfileUpdate{
		FirstName: trimmed(r.FirstName),
		LastName:  trimmed(r.LastName),
	}

	if r.Email != nil {
		e := normalize(*r.Email)
		upd.Email = &e
	}

	return upd
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// NormalizeEmail trims and, when caseInsensitive is set, lower-cases.
func NormalizeEmail(email string, caseInsensitive bool) string {
	email = strings.TrimSpace(email)
	if caseInsensitive {
		email = strings.ToLower(email)
	}
	return email
}
