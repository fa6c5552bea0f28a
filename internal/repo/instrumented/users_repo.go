package instrumented

import (
	"context"

	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/observability"
)

// UsersRepo records latency and error class for every store call.
type UsersRepo struct {
	next user.Store
	prom *observability.Prom
}

func NewUsersRepo(next user.Store, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{next: next, prom: prom}
}

func (r *UsersRepo) FindByEmail(ctx context.Context, email string) (u user.User, err error) {
	err = r.prom.ObserveStore("find_by_email", func() error {
		u, err = r.next.FindByEmail(ctx, email)
		return err
	})
	return u, err
}

func (r *UsersRepo) FindByID(ctx context.Context, id string) (u user.User, err error) {
	err = r.prom.ObserveStore("find_by_id", func() error {
		u, err = r.next.FindByID(ctx, id)
		return err
	})
	return u, err
}

func (r *UsersRepo) Create(ctx context.Context, nu user.NewUser) (u user.User, err error) {
	err = r.prom.ObserveStore("create", func() error {
		u, err = r.next.Create(ctx, nu)
		return err
	})
	return u, err
}

func (r *UsersRepo) UpdateProfile(ctx context.Context, id string, upd user.ProfileUpdate) (u user.User, err error) {
	err = r.prom.ObserveStore("update_profile", func() error {
		u, err = r.next.UpdateProfile(ctx, id, upd)
		return err
	})
	return u, err
}

func (r *UsersRepo) DeleteAll(ctx context.Context) (n int64, err error) {
	err = r.prom.ObserveStore("delete_all", func() error {
		n, err = r.next.DeleteAll(ctx)
		return err
	})
	return n, err
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.prom.ObserveStore("ping", func() error {
		return r.next.Ping(ctx)
	})
}
