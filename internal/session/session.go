package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgerrors "github.com/batjin/foodrush-storefront/pkg/errors"
	"github.com/batjin/foodrush-storefront/pkg/events"
	"github.com/batjin/foodrush-storefront/pkg/logger"
)

// ManagerParams carries the dependencies for NewManager.
type ManagerParams struct {
	Bus    *events.Bus
	Logger *logger.Logger
}

// Manager holds the bearer credentials for the current user. The token is
// never validated locally; the backend is the authority and the manager only
// reads unverified claims to learn which user the cart belongs to.
type Manager struct {
	bus  *events.Bus
	logg *logger.Logger

	mu     sync.RWMutex
	token  string
	userID string
}

func NewManager(params ManagerParams) (*Manager, error) {
	if params.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Manager{bus: params.Bus, logg: params.Logger}, nil
}

// SetCredentials installs a bearer token. The user id is taken from userID
// when given, otherwise resolved from the token claims. A transition into
// the authenticated state is announced on the bus; refreshing the token for
// the same user is silent.
func (m *Manager) SetCredentials(ctx context.Context, token string, userID string) error {
	if token == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "token is required")
	}
	if tokenExpired(token) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "token is expired")
	}
	if userID == "" {
		resolved, err := userIDFromToken(token)
		if err != nil {
			return err
		}
		userID = resolved
	}

	m.mu.Lock()
	sameUser := m.userID == userID && m.token != ""
	m.token = token
	m.userID = userID
	m.mu.Unlock()

	if sameUser {
		m.logg.Debug(m.logg.WithUserID(ctx, userID), "session token refreshed")
		return nil
	}

	m.logg.Info(m.logg.WithUserID(ctx, userID), "session authenticated")
	m.bus.Publish(events.SessionChanged{Authenticated: true, UserID: userID})
	return nil
}

// Clear drops the credentials. Clearing an empty session is silent.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	wasAuthenticated := m.token != ""
	m.token = ""
	m.userID = ""
	m.mu.Unlock()

	if !wasAuthenticated {
		return
	}
	m.logg.Info(ctx, "session cleared")
	m.bus.Publish(events.SessionChanged{Authenticated: false})
}

// Token returns the current bearer token, empty when signed out. Satisfies
// the backend client's token provider.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// UserID returns the id of the signed-in user, empty when signed out.
func (m *Manager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userID
}

// Authenticated reports whether credentials are installed.
func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != ""
}

// userIDFromToken reads the user id out of the JWT payload without verifying
// the signature. Accepts sub first, then the legacy userId and id claims.
func userIDFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "token is not a parseable JWT")
	}

	for _, key := range []string{"sub", "userId", "id"} {
		if value, ok := claims[key].(string); ok && value != "" {
			return value, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "token carries no user id claim")
}

// tokenExpired reports whether a parseable JWT carries an exp claim in the
// past. Opaque tokens and tokens without exp pass; the backend still rejects
// them on first use.
func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
