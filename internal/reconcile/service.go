package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/batjin/foodrush-storefront/internal/cart"
	"github.com/batjin/foodrush-storefront/pkg/backend"
	"github.com/batjin/foodrush-storefront/pkg/events"
	"github.com/batjin/foodrush-storefront/pkg/logger"
	"github.com/batjin/foodrush-storefront/pkg/metrics"
)

// Mode names which cart store is authoritative right now.
type Mode string

const (
	// ModeLocal: the device-local store is authoritative. Guest sessions,
	// and signed-in sessions whose migration failed, run in this mode.
	ModeLocal Mode = "local"
	// ModeServer: the backend cart is authoritative. Only reachable after
	// a completed migration.
	ModeServer Mode = "server"
)

// State is the migration lifecycle for the current session.
type State string

const (
	StateGuest         State = "guest"
	StateMigrating     State = "migrating"
	StateAuthenticated State = "authenticated"
)

// Syncer is the slice of the backend client the reconciler uses.
type Syncer interface {
	SyncCart(ctx context.Context, userID string, items []backend.Item) error
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Local   *cart.Store
	Server  Syncer
	Bus     *events.Bus
	Logger  *logger.Logger
	Metrics *metrics.StorefrontMetrics
}

// Service moves the guest cart onto the user's server cart exactly once per
// sign-in and decides which store is authoritative. The migration is
// all-or-nothing: a failed upload restores the local cart from its backup
// snapshot and the session stays in local mode.
type Service struct {
	local   *cart.Store
	server  Syncer
	bus     *events.Bus
	logg    *logger.Logger
	metrics *metrics.StorefrontMetrics

	mu     sync.Mutex
	state  State
	synced bool
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Local == nil {
		return nil, fmt.Errorf("local cart store is required")
	}
	if params.Server == nil {
		return nil, fmt.Errorf("server cart syncer is required")
	}
	if params.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Service{
		local:   params.Local,
		server:  params.Server,
		bus:     params.Bus,
		logg:    params.Logger,
		metrics: params.Metrics,
		state:   StateGuest,
	}, nil
}

// Start reacts to session transitions on the bus. Sign-in triggers the
// migration; sign-out resets to guest so a later sign-in migrates again.
func (s *Service) Start(ctx context.Context) *events.Subscription {
	return s.bus.Subscribe(func(event events.Event) {
		changed, ok := event.(events.SessionChanged)
		if !ok {
			return
		}
		if !changed.Authenticated {
			s.Reset(ctx)
			return
		}
		if err := s.Migrate(ctx, changed.UserID); err != nil {
			s.logg.Error(s.logg.WithUserID(ctx, changed.UserID), "cart migration failed", err)
		}
	})
}

// State returns the current migration state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mode reports which store reads and writes should go to. The server cart
// only becomes authoritative once the migration has completed; until then
// the local store keeps serving, so a failed sync degrades instead of
// losing the cart.
func (s *Service) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAuthenticated && s.synced {
		return ModeServer
	}
	return ModeLocal
}

// Reset returns to the guest state and re-arms the one-shot migration
// guard. Called on sign-out.
func (s *Service) Reset(ctx context.Context) {
	s.mu.Lock()
	changed := s.state != StateGuest || s.synced
	s.state = StateGuest
	s.synced = false
	s.mu.Unlock()

	if changed {
		s.logg.Info(ctx, "cart back in local mode")
		s.bus.Publish(events.CartChanged{})
	}
}

// Migrate uploads the guest cart to the user's server cart. At most one
// migration runs per session: re-entrant calls while one is in flight, and
// calls after a completed migration, return immediately without touching
// the network.
func (s *Service) Migrate(ctx context.Context, userID string) error {
	s.mu.Lock()
	if s.synced || s.state == StateMigrating {
		s.mu.Unlock()
		return nil
	}
	s.state = StateMigrating
	s.mu.Unlock()

	err := s.migrate(ctx, userID)
	s.mu.Lock()
	if err != nil {
		s.state = StateGuest
		s.synced = false
	} else {
		s.state = StateAuthenticated
		s.synced = true
	}
	s.mu.Unlock()

	if err != nil {
		s.bus.Publish(events.Notice{
			Level:   events.NoticeError,
			Message: "We couldn't move your cart to your account. It stays available on this device.",
		})
		return err
	}

	// Flips readers over to the server cart.
	s.bus.Publish(events.CartChanged{})
	return nil
}

func (s *Service) migrate(ctx context.Context, userID string) error {
	ctx = s.logg.WithUserID(ctx, userID)

	lines, err := s.local.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading local cart: %w", err)
	}
	if len(lines) == 0 {
		s.logg.Info(ctx, "no guest cart to migrate")
		return nil
	}

	if err := s.local.Snapshot(ctx); err != nil {
		return fmt.Errorf("snapshotting cart before migration: %w", err)
	}

	started := time.Now()
	syncErr := s.server.SyncCart(ctx, userID, cart.ToItems(lines))
	s.metrics.ObserveSync(time.Since(started), syncErr)

	if syncErr != nil {
		// The local cart must come back exactly as it was. Rollback
		// failures are reported alongside the sync failure, not instead
		// of it.
		if restoreErr := s.local.RestoreBackup(ctx); restoreErr != nil {
			s.logg.Error(ctx, "restoring cart backup after failed sync", restoreErr)
			return multierr.Append(
				fmt.Errorf("syncing cart: %w", syncErr),
				fmt.Errorf("restoring backup: %w", restoreErr),
			)
		}
		return fmt.Errorf("syncing cart: %w", syncErr)
	}

	var cleanup error
	if err := s.local.Clear(ctx); err != nil {
		cleanup = multierr.Append(cleanup, fmt.Errorf("clearing local cart: %w", err))
	}
	if err := s.local.ClearBackup(ctx); err != nil {
		cleanup = multierr.Append(cleanup, fmt.Errorf("clearing cart backup: %w", err))
	}
	if cleanup != nil {
		// The upload went through; local leftovers are recovered by the
		// startup rule, not by failing the migration.
		s.logg.Error(ctx, "cleaning up after cart migration", cleanup)
	}

	s.logg.Info(s.logg.WithField(ctx, "lines", len(lines)), "guest cart migrated to server")
	return nil
}
