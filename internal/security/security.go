// Package security guards the manager pages with HTTP basic login against
// configured managers and a role check.
package security

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/catalogue-manager/internal/domain/auth"
	"github.com/xenking/catalogue-manager/pkg/httpmiddleware"
)

var _ auth.Repository = (*Static)(nil)

// Static is an in-memory auth.Repository, filled from configuration.
type Static struct {
	managers map[string]auth.Manager
}

// NewStatic indexes managers by username. Duplicate or empty usernames are
// rejected, as are password hashes bcrypt cannot read.
func NewStatic(managers []auth.Manager) (*Static, error) {
	s := &Static{managers: make(map[string]auth.Manager, len(managers))}
	for _, m := range managers {
		if m.Username == "" {
			return nil, errors.New("manager username is empty")
		}
		if _, ok := s.managers[m.Username]; ok {
			return nil, errors.Errorf("duplicate manager %q", m.Username)
		}
		if _, err := bcrypt.Cost([]byte(m.PasswordHash)); err != nil {
			return nil, errors.Wrapf(err, "manager %q password hash", m.Username)
		}
		s.managers[m.Username] = m
	}
	return s, nil
}

// FindByUsername implements auth.Repository.
func (s *Static) FindByUsername(_ context.Context, username string) (*auth.Manager, error) {
	m, ok := s.managers[username]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &m, nil
}

type managerKey struct{}

// ManagerFromContext returns the manager signed in for the request.
func ManagerFromContext(ctx context.Context) (auth.Manager, bool) {
	m, ok := ctx.Value(managerKey{}).(auth.Manager)
	return m, ok
}

// unknownUserHash is compared against when the username does not exist, so
// that both failure paths pay for a bcrypt comparison.
var unknownUserHash = sync.OnceValue(func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("unknown manager"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
})

// Authenticator checks basic credentials on every request.
type Authenticator struct {
	managers auth.Repository
	realm    string
}

// NewAuthenticator returns an Authenticator that challenges with realm.
func NewAuthenticator(managers auth.Repository, realm string) *Authenticator {
	return &Authenticator{managers: managers, realm: realm}
}

// Require lets the request through only for a signed-in manager holding
// role. Missing or wrong credentials get 401 with a basic challenge,
// a manager without the role gets 403.
func (a *Authenticator) Require(role string) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			m, err := a.authenticate(ctx, r)
			switch {
			case errors.Is(err, errUnauthorized):
				w.Header().Set("WWW-Authenticate", `Basic realm="`+a.realm+`", charset="UTF-8"`)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			case err != nil:
				zctx.From(ctx).Error("Manager lookup failed", zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			ctx = zctx.With(ctx, zap.String("manager", m.Username))
			if !m.HasRole(role) {
				zctx.From(ctx).Warn("Access denied", zap.String("role", role))
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}

			ctx = context.WithValue(ctx, managerKey{}, *m)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

var errUnauthorized = errors.New("unauthorized")

func (a *Authenticator) authenticate(ctx context.Context, r *http.Request) (*auth.Manager, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, errUnauthorized
	}

	m, err := a.managers.FindByUsername(ctx, username)
	if errors.Is(err, auth.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(unknownUserHash(), []byte(password))
		return nil, errUnauthorized
	}
	if err != nil {
		return nil, errors.Wrap(err, "find manager")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)); err != nil {
		return nil, errUnauthorized
	}
	return m, nil
}
