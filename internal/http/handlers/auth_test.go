package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/authhub/internal/auth"
	"github.com/geocoder89/authhub/internal/config"
	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/http/handlers"
	"github.com/geocoder89/authhub/internal/http/middlewares"
	"github.com/geocoder89/authhub/internal/security"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// Make sure Gin does not spam the console during the test
func init() {
	gin.SetMode(gin.TestMode)
}

// Fake repository implementation of the handlers.UserStore interface
type fakeUsersRepo struct {
	findByEmailFn func(ctx context.Context, email string) (user.User, error)
	createFn      func(ctx context.Context, nu user.NewUser) (user.User, error)
	updateFn      func(ctx context.Context, id string, upd user.ProfileUpdate) (user.User, error)
	deleteAllFn   func(ctx context.Context) (int64, error)
}

func (f *fakeUsersRepo) FindByEmail(ctx context.Context, email string) (user.User, error) {
	if f.findByEmailFn != nil {
		return f.findByEmailFn(ctx, email)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUsersRepo) Create(ctx context.Context, nu user.NewUser) (user.User, error) {
	if f.createFn != nil {
		return f.createFn(ctx, nu)
	}
	return user.User{
		ID:           "u-1",
		FirstName:    nu.FirstName,
		LastName:     nu.LastName,
		Email:        nu.Email,
		PasswordHash: nu.PasswordHash,
		Role:         nu.Role,
	}, nil
}

func (f *fakeUsersRepo) UpdateProfile(ctx context.Context, id string, upd user.ProfileUpdate) (user.User, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, id, upd)
	}
	return user.User{ID: id}, nil
}

func (f *fakeUsersRepo) DeleteAll(ctx context.Context) (int64, error) {
	if f.deleteAllFn != nil {
		return f.deleteAllFn(ctx)
	}
	return 0, nil
}

type failingIssuer struct{}

func (failingIssuer) Issue(string) (string, time.Time, error) {
	return "", time.Time{}, errors.New("signing key unavailable")
}

type failingHasher struct{ *security.Hasher }

func (failingHasher) HashPassword(string) (string, error) {
	return "", errors.New("hash failed")
}

var testHasher = security.NewHasher(bcrypt.MinCost)

// recordingHasher counts the hashes CheckPassword is asked to compare against.
type recordingHasher struct {
	*security.Hasher
	mu      sync.Mutex
	checked []string
}

func (r *recordingHasher) CheckPassword(hash, plain string) error {
	r.mu.Lock()
	r.checked = append(r.checked, hash)
	r.mu.Unlock()
	return r.Hasher.CheckPassword(hash, plain)
}

func testConfig() config.Config {
	return config.Config{Env: "test", EmailCaseInsensitive: true}
}

func newAuthHandler(repo *fakeUsersRepo) *handlers.AuthHandler {
	return handlers.NewAuthHandler(repo, testHasher, auth.NewManager("test-secret", time.Hour), testConfig(), nil, nil)
}

// small helper function which returns the gin engine to mount one handler per test
func setupRouter(method, path string, h ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()

	r.Handle(method, path, h...)

	return r
}

// withUser stands in for the access guard.
func withUser(u user.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := middlewares.NewAuthMiddleware(staticVerifier{id: u.ID}, staticFinder{u: u}, nil, nil)
		c.Request.Header.Set("Authorization", "Bearer static")
		m.RequireAuth()(c)
	}
}

type staticVerifier struct{ id string }

func (s staticVerifier) Verify(string) (*auth.Claims, error) {
	return &auth.Claims{UserID: s.id}, nil
}

type staticFinder struct{ u user.User }

func (s staticFinder) FindByID(context.Context, string) (user.User, error) {
	return s.u, nil
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRegisterHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		repoSetUp      func(*fakeUsersRepo)
		handler        *handlers.AuthHandler
		wantStatusCode int
		wantCode       string
	}{
		{
			name:           "success",
			body:           `{"firstName":"A","lastName":"B","email":"A@X.com","password":"secret123"}`,
			wantStatusCode: http.StatusCreated,
		},
		{
			name: "email already registered",
			body: `{"firstName":"A","lastName":"B","email":"a@x.com","password":"secret123"}`,
			repoSetUp: func(f *fakeUsersRepo) {
				f.findByEmailFn = func(context.Context, string) (user.User, error) {
					return user.User{ID: "existing"}, nil
				}
			},
			wantStatusCode: http.StatusBadRequest,
			wantCode:       "duplicate_key",
		},
		{
			name: "lost the unique index race",
			body: `{"firstName":"A","lastName":"B","email":"a@x.com","password":"secret123"}`,
			repoSetUp: func(f *fakeUsersRepo) {
				f.createFn = func(context.Context, user.NewUser) (user.User, error) {
					return user.User{}, user.ErrEmailTaken
				}
			},
			wantStatusCode: http.StatusBadRequest,
			wantCode:       "duplicate_key",
		},
		{
			name:           "missing fields",
			body:           `{"email":"a@x.com"}`,
			wantStatusCode: http.StatusBadRequest,
			wantCode:       "validation_error",
		},
		{
			name: "store failure is generic",
			body: `{"firstName":"A","lastName":"B","email":"a@x.com","password":"secret123"}`,
			repoSetUp: func(f *fakeUsersRepo) {
				f.createFn = func(context.Context, user.NewUser) (user.User, error) {
					return user.User{}, errors.New("pq: connection reset by peer")
				}
			},
			wantStatusCode: http.StatusInternalServerError,
			wantCode:       "internal_error",
		},
		{
			name:           "hash failure is a bad request",
			body:           `{"firstName":"A","lastName":"B","email":"a@x.com","password":"secret123"}`,
			handler:        handlers.NewAuthHandler(&fakeUsersRepo{}, failingHasher{testHasher}, auth.NewManager("s", time.Hour), testConfig(), nil, nil),
			wantStatusCode: http.StatusBadRequest,
			wantCode:       "validation_error",
		},
		{
			name:           "token failure",
			body:           `{"firstName":"A","lastName":"B","email":"a@x.com","password":"secret123"}`,
			handler:        handlers.NewAuthHandler(&fakeUsersRepo{}, testHasher, failingIssuer{}, testConfig(), nil, nil),
			wantStatusCode: http.StatusInternalServerError,
			wantCode:       "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeUsersRepo{}
			if tt.repoSetUp != nil {
				tt.repoSetUp(repo)
			}

			h := tt.handler
			if h == nil {
				h = newAuthHandler(repo)
			}

			w := doJSON(setupRouter(http.MethodPost, "/register", h.Register), http.MethodPost, "/register", tt.body)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if strings.Contains(strings.ToLower(w.Body.String()), "password") && w.Code == http.StatusCreated {
				t.Fatalf("response leaks password data: %s", w.Body.String())
			}

			if tt.wantCode != "" {
				var env struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				}
				_ = json.Unmarshal(w.Body.Bytes(), &env)
				if env.Code != tt.wantCode {
					t.Fatalf("got code %q, want %q", env.Code, tt.wantCode)
				}
				if strings.Contains(env.Message, "pq:") {
					t.Fatalf("internal detail leaked: %q", env.Message)
				}
			}
		})
	}
}

func TestRegisterHandler_ResponseShapeAndCookie(t *testing.T) {
	var created user.NewUser
	repo := &fakeUsersRepo{
		createFn: func(_ context.Context, nu user.NewUser) (user.User, error) {
			created = nu
			return user.User{ID: "u-1", FirstName: nu.FirstName, LastName: nu.LastName, Email: nu.Email, PasswordHash: nu.PasswordHash, Role: nu.Role}, nil
		},
	}
	h := newAuthHandler(repo)

	w := doJSON(setupRouter(http.MethodPost, "/register", h.Register), http.MethodPost, "/register",
		`{"firstName":"A","lastName":"B","email":"a@x.com","password":"secret123"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("got %d body=%s", w.Code, w.Body.String())
	}

	var resp handlers.AuthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "success" || resp.Token == "" || resp.User.Email != "a@x.com" || resp.User.FirstName != "A" || resp.User.Role != user.RoleUser {
		t.Fatalf("unexpected response: %+v", resp)
	}

	if created.PasswordHash == "" || created.PasswordHash == "secret123" {
		t.Fatalf("password must be stored hashed, got %q", created.PasswordHash)
	}

	c := findCookie(w, auth.CookieName)
	if c == nil {
		t.Fatalf("jwt cookie not set")
	}
	if c.Value != resp.Token || !c.HttpOnly || c.SameSite != http.SameSiteLaxMode || c.Secure {
		t.Fatalf("unexpected cookie: %+v", c)
	}
	if c.MaxAge <= 0 {
		t.Fatalf("cookie should have a positive max-age")
	}
}

func TestRegisterHandler_SecureCookieInProduction(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	h := handlers.NewAuthHandler(&fakeUsersRepo{}, testHasher, auth.NewManager("s", time.Hour), cfg, nil, nil)

	w := doJSON(setupRouter(http.MethodPost, "/register", h.Register), http.MethodPost, "/register",
		`{"firstName":"A","lastName":"B","email":"a@x.com","password":"secret123"}`)

	if c := findCookie(w, auth.CookieName); c == nil || !c.Secure {
		t.Fatalf("expected secure cookie, got %+v", c)
	}
}

func TestLoginHandler(t *testing.T) {
	hash, err := testHasher.HashPassword("secret123")
	if err != nil {
		t.Fatal(err)
	}

	repo := &fakeUsersRepo{
		findByEmailFn: func(_ context.Context, email string) (user.User, error) {
			if email == "a@x.com" {
				return user.User{ID: "u-1", FirstName: "A", LastName: "B", Email: email, PasswordHash: hash, Role: user.RoleUser}, nil
			}
			return user.User{}, user.ErrNotFound
		},
	}
	r := setupRouter(http.MethodPost, "/login", newAuthHandler(repo).Login)

	t.Run("success", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/login", `{"email":" A@x.com ","password":"secret123"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("got %d body=%s", w.Code, w.Body.String())
		}

		var resp handlers.AuthResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Token == "" || resp.User.ID != "u-1" || resp.User.FirstName != "A" || resp.User.LastName != "B" {
			t.Fatalf("unexpected response: %+v", resp)
		}
		if strings.Contains(w.Body.String(), hash) {
			t.Fatalf("hash leaked")
		}
		if findCookie(w, auth.CookieName) == nil {
			t.Fatalf("jwt cookie not set")
		}
	})

	t.Run("wrong password and unknown email are indistinguishable", func(t *testing.T) {
		wrong := doJSON(r, http.MethodPost, "/login", `{"email":"a@x.com","password":"nope-nope"}`)
		unknown := doJSON(r, http.MethodPost, "/login", `{"email":"ghost@x.com","password":"secret123"}`)

		if wrong.Code != http.StatusUnauthorized || unknown.Code != http.StatusUnauthorized {
			t.Fatalf("got %d and %d", wrong.Code, unknown.Code)
		}
		if wrong.Body.String() != unknown.Body.String() {
			t.Fatalf("bodies differ:\n%s\n%s", wrong.Body.String(), unknown.Body.String())
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/login", `{"email":"a@x.com"}`)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("got %d", w.Code)
		}
	})
}

func TestLoginHandler_UnknownEmailStillComparesAHash(t *testing.T) {
	hasher := &recordingHasher{Hasher: testHasher}
	h := handlers.NewAuthHandler(&fakeUsersRepo{}, hasher, auth.NewManager("s", time.Hour), testConfig(), nil, nil)
	r := setupRouter(http.MethodPost, "/login", h.Login)

	for i := 0; i < 2; i++ {
		w := doJSON(r, http.MethodPost, "/login", `{"email":"ghost@x.com","password":"secret123"}`)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("got %d, want 401", w.Code)
		}
	}

	if len(hasher.checked) != 2 {
		t.Fatalf("expected a bcrypt comparison per unknown email, got %d", len(hasher.checked))
	}
	if !strings.HasPrefix(hasher.checked[0], "$2") || hasher.checked[0] != hasher.checked[1] {
		t.Fatalf("expected one reusable bcrypt hash, got %q", hasher.checked)
	}
	if cost, err := bcrypt.Cost([]byte(hasher.checked[0])); err != nil || cost != bcrypt.MinCost {
		t.Fatalf("dummy hash should use the hasher's cost, got %d (%v)", cost, err)
	}
}

func TestLoginHandler_StoreFailure(t *testing.T) {
	repo := &fakeUsersRepo{
		findByEmailFn: func(context.Context, string) (user.User, error) {
			return user.User{}, errors.New("timeout")
		},
	}
	r := setupRouter(http.MethodPost, "/login", newAuthHandler(repo).Login)

	w := doJSON(r, http.MethodPost, "/login", `{"email":"a@x.com","password":"secret123"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("got %d", w.Code)
	}
}

func TestLogoutHandler(t *testing.T) {
	r := setupRouter(http.MethodGet, "/logout", newAuthHandler(&fakeUsersRepo{}).Logout)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logout", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}

	c := findCookie(w, auth.CookieName)
	if c == nil || c.Value != auth.LoggedOutValue || !c.HttpOnly {
		t.Fatalf("unexpected logout cookie: %+v", c)
	}
	if c.MaxAge > 10 {
		t.Fatalf("logout cookie should expire quickly, max-age=%d", c.MaxAge)
	}
}

func TestMeHandler(t *testing.T) {
	h := newAuthHandler(&fakeUsersRepo{})
	u := user.User{ID: "u-1", FirstName: "A", LastName: "B", Email: "a@x.com", Role: user.RoleUser, PasswordHash: "hash"}

	r := setupRouter(http.MethodGet, "/me", withUser(u), h.Me)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("got %d body=%s", w.Code, w.Body.String())
	}

	var resp handlers.UserResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Data.User.Email != "a@x.com" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if strings.Contains(w.Body.String(), "hash") {
		t.Fatalf("hash leaked: %s", w.Body.String())
	}

	// without the guard there is no identity
	w = httptest.NewRecorder()
	setupRouter(http.MethodGet, "/me", h.Me).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", w.Code)
	}
}

func TestUpdateProfileHandler(t *testing.T) {
	u := user.User{ID: "u-1", FirstName: "A", LastName: "B", Email: "a@x.com", Role: user.RoleUser}

	tests := []struct {
		name           string
		body           string
		updateFn       func(ctx context.Context, id string, upd user.ProfileUpdate) (user.User, error)
		wantStatusCode int
	}{
		{
			name: "success",
			body: `{"firstName":"Ada","email":"ADA@x.com"}`,
			updateFn: func(_ context.Context, id string, upd user.ProfileUpdate) (user.User, error) {
				if id != "u-1" || *upd.FirstName != "Ada" || *upd.Email != "ada@x.com" || upd.LastName != nil {
					return user.User{}, errors.New("unexpected update")
				}
				return user.User{ID: id, FirstName: "Ada", LastName: "B", Email: "ada@x.com", Role: user.RoleUser}, nil
			},
			wantStatusCode: http.StatusOK,
		},
		{name: "empty update", body: `{}`, wantStatusCode: http.StatusBadRequest},
		{name: "blank first name", body: `{"firstName":"  "}`, wantStatusCode: http.StatusBadRequest},
		{name: "invalid email", body: `{"email":"nope"}`, wantStatusCode: http.StatusBadRequest},
		{
			name: "duplicate email",
			body: `{"email":"taken@x.com"}`,
			updateFn: func(context.Context, string, user.ProfileUpdate) (user.User, error) {
				return user.User{}, user.ErrEmailTaken
			},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "user vanished",
			body: `{"lastName":"C"}`,
			updateFn: func(context.Context, string, user.ProfileUpdate) (user.User, error) {
				return user.User{}, user.ErrNotFound
			},
			wantStatusCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newAuthHandler(&fakeUsersRepo{updateFn: tt.updateFn})
			r := setupRouter(http.MethodPatch, "/profile", withUser(u), h.UpdateProfile)

			w := doJSON(r, http.MethodPatch, "/profile", tt.body)
			if w.Code != tt.wantStatusCode {
				t.Fatalf("got %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

func TestDeleteAllHandler(t *testing.T) {
	h := newAuthHandler(&fakeUsersRepo{
		deleteAllFn: func(context.Context) (int64, error) { return 3, nil },
	})
	admin := user.User{ID: "admin-1", Role: user.RoleAdmin}

	r := setupRouter(http.MethodDelete, "/delete", withUser(admin), h.DeleteAll)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/delete", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}

	var resp struct {
		Data struct {
			Deleted int64 `json:"deleted"`
		} `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Data.Deleted != 3 {
		t.Fatalf("got deleted=%d", resp.Data.Deleted)
	}
}
