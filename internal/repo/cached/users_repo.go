package cached

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/geocoder89/authhub/internal/cache"
	"github.com/geocoder89/authhub/internal/domain/user"
)

// UsersRepo caches FindByID, which the access guard calls on every
// protected request. Cache failures are logged and never fail the call.
type UsersRepo struct {
	user.Store
	cache cache.Cache
	log   *slog.Logger
}

func NewUsersRepo(next user.Store, c cache.Cache, log *slog.Logger) *UsersRepo {
	if log == nil {
		log = slog.Default()
	}
	return &UsersRepo{Store: next, cache: c, log: log}
}

func (r *UsersRepo) FindByID(ctx context.Context, id string) (user.User, error) {
	b, ok, err := r.cache.Get(ctx, id)
	if err != nil {
		r.log.WarnContext(ctx, "user cache get failed", "user_id", id, "err", err)
	}

	if ok {
		var u user.User
		if err := json.Unmarshal(b, &u); err == nil {
			return u, nil
		}
		_ = r.cache.Delete(ctx, id)
	}

	// read before the store call; a write that lands in between bumps it
	epoch, epochErr := r.cache.Epoch(ctx)

	u, err := r.Store.FindByID(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	u.PasswordHash = ""
	if epochErr == nil {
		r.fill(ctx, id, u, epoch)
	}

	return u, nil
}

// fill caches u unless a write happened since epoch was read. The epoch is
// checked again after Set: a writer that bumped in between may already have
// evicted, so the entry is dropped here instead.
func (r *UsersRepo) fill(ctx context.Context, id string, u user.User, epoch int64) {
	if cur, err := r.cache.Epoch(ctx); err != nil || cur != epoch {
		return
	}

	b, err := json.Marshal(u)
	if err != nil {
		return
	}

	if err := r.cache.Set(ctx, id, b); err != nil {
		r.log.WarnContext(ctx, "user cache set failed", "user_id", id, "err", err)
		return
	}

	if cur, err := r.cache.Epoch(ctx); err != nil || cur != epoch {
		if err := r.cache.Delete(ctx, id); err != nil {
			r.log.WarnContext(ctx, "user cache evict failed", "user_id", id, "err", err)
		}
	}
}

func (r *UsersRepo) UpdateProfile(ctx context.Context, id string, upd user.ProfileUpdate) (user.User, error) {
	u, err := r.Store.UpdateProfile(ctx, id, upd)

	r.bumpEpoch(ctx)
	if delErr := r.cache.Delete(ctx, id); delErr != nil {
		r.log.WarnContext(ctx, "user cache evict failed", "user_id", id, "err", delErr)
	}

	return u, err
}

func (r *UsersRepo) DeleteAll(ctx context.Context) (int64, error) {
	n, err := r.Store.DeleteAll(ctx)

	r.bumpEpoch(ctx)
	if clrErr := r.cache.Clear(ctx); clrErr != nil {
		r.log.ErrorContext(ctx, "user cache clear failed", "err", clrErr)
	}

	return n, err
}

// bumpEpoch runs after the store write and before the eviction.
func (r *UsersRepo) bumpEpoch(ctx context.Context) {
	if err := r.cache.BumpEpoch(ctx); err != nil {
		r.log.ErrorContext(ctx, "user cache epoch bump failed", "err", err)
	}
}
