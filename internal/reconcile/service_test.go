package reconcile

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batjin/foodrush-storefront/internal/cart"
	"github.com/batjin/foodrush-storefront/pkg/backend"
	"github.com/batjin/foodrush-storefront/pkg/config"
	"github.com/batjin/foodrush-storefront/pkg/db"
	"github.com/batjin/foodrush-storefront/pkg/db/models"
	"github.com/batjin/foodrush-storefront/pkg/events"
	"github.com/batjin/foodrush-storefront/pkg/logger"
	"github.com/batjin/foodrush-storefront/pkg/types"
)

type stubSyncer struct {
	mu    sync.Mutex
	calls []syncCall
	fn    func(ctx context.Context, userID string, items []backend.Item) error
}

type syncCall struct {
	userID string
	items  []backend.Item
}

func (s *stubSyncer) SyncCart(ctx context.Context, userID string, items []backend.Item) error {
	s.mu.Lock()
	s.calls = append(s.calls, syncCall{userID: userID, items: items})
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(ctx, userID, items)
	}
	return nil
}

func (s *stubSyncer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []events.Notice
}

func (r *noticeRecorder) handle(event events.Event) {
	if notice, ok := event.(events.Notice); ok {
		r.mu.Lock()
		r.notices = append(r.notices, notice)
		r.mu.Unlock()
	}
}

func (r *noticeRecorder) all() []events.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Notice(nil), r.notices...)
}

func testLine(foodID string, qty int, size *string) cart.Line {
	return cart.Line{
		FoodID:       foodID,
		Quantity:     qty,
		SelectedSize: size,
		Food: types.FoodSnapshot{
			ID:    foodID,
			Name:  "item-" + foodID,
			Price: decimal.NewFromInt(5000),
		},
	}
}

func newFixture(t *testing.T) (*Service, *cart.Store, *stubSyncer, *events.Bus) {
	t.Helper()

	logg := logger.New(logger.Options{
		ServiceName: "reconcile-test",
		Level:       zerolog.Disabled,
		Output:      io.Discard,
	})

	client, err := db.New(context.Background(), config.LocalDBConfig{
		Path: filepath.Join(t.TempDir(), "cart.db"),
	}, logg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.DB().AutoMigrate(&models.CartLine{}, &models.Slot{}))

	bus := events.NewBus()
	store, err := cart.NewStore(cart.StoreParams{DB: client, Bus: bus, Logger: logg})
	require.NoError(t, err)

	syncer := &stubSyncer{}
	service, err := NewService(ServiceParams{
		Local:  store,
		Server: syncer,
		Bus:    bus,
		Logger: logg,
	})
	require.NoError(t, err)
	return service, store, syncer, bus
}

func TestNewServiceValidatesParams(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestMigrateUploadsAndClearsLocal(t *testing.T) {
	service, store, syncer, _ := newFixture(t)
	ctx := context.Background()

	size := "L"
	require.NoError(t, store.Add(ctx, testLine("f1", 2, nil)))
	require.NoError(t, store.Add(ctx, testLine("f2", 1, &size)))

	require.NoError(t, service.Migrate(ctx, "u-1"))

	require.Equal(t, 1, syncer.callCount())
	assert.Equal(t, "u-1", syncer.calls[0].userID)
	assert.Len(t, syncer.calls[0].items, 2)

	lines, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)

	_, hasBackup, err := store.Backup(ctx)
	require.NoError(t, err)
	assert.False(t, hasBackup)

	assert.Equal(t, StateAuthenticated, service.State())
	assert.Equal(t, ModeServer, service.Mode())
}

func TestMigrateEmptyCartSkipsNetwork(t *testing.T) {
	service, _, syncer, _ := newFixture(t)

	require.NoError(t, service.Migrate(context.Background(), "u-1"))

	assert.Zero(t, syncer.callCount())
	assert.Equal(t, ModeServer, service.Mode())
}

func TestMigrateFailureRestoresLocalCart(t *testing.T) {
	service, store, syncer, bus := newFixture(t)
	ctx := context.Background()

	rec := &noticeRecorder{}
	sub := bus.Subscribe(rec.handle)
	defer sub.Close()

	require.NoError(t, store.Add(ctx, testLine("f1", 2, nil)))
	before, err := store.Load(ctx)
	require.NoError(t, err)

	syncer.fn = func(context.Context, string, []backend.Item) error {
		return errors.New("backend down")
	}

	require.Error(t, service.Migrate(ctx, "u-1"))

	after, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	assert.Equal(t, StateGuest, service.State())
	assert.Equal(t, ModeLocal, service.Mode())

	notices := rec.all()
	require.Len(t, notices, 1)
	assert.Equal(t, events.NoticeError, notices[0].Level)
}

func TestMigrateRunsAtMostOncePerSession(t *testing.T) {
	service, store, syncer, _ := newFixture(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, testLine("f1", 1, nil)))

	require.NoError(t, service.Migrate(ctx, "u-1"))
	require.NoError(t, service.Migrate(ctx, "u-1"))
	require.NoError(t, service.Migrate(ctx, "u-1"))

	assert.Equal(t, 1, syncer.callCount())
}

func TestMigrateRetriesAfterFailure(t *testing.T) {
	service, store, syncer, _ := newFixture(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, testLine("f1", 1, nil)))

	syncer.fn = func(context.Context, string, []backend.Item) error {
		return errors.New("backend down")
	}
	require.Error(t, service.Migrate(ctx, "u-1"))

	syncer.fn = nil
	require.NoError(t, service.Migrate(ctx, "u-1"))

	assert.Equal(t, 2, syncer.callCount())
	assert.Equal(t, ModeServer, service.Mode())
}

func TestResetReArmsGuard(t *testing.T) {
	service, store, syncer, _ := newFixture(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, testLine("f1", 1, nil)))
	require.NoError(t, service.Migrate(ctx, "u-1"))
	require.Equal(t, 1, syncer.callCount())

	service.Reset(ctx)
	assert.Equal(t, StateGuest, service.State())
	assert.Equal(t, ModeLocal, service.Mode())

	require.NoError(t, store.Add(ctx, testLine("f2", 1, nil)))
	require.NoError(t, service.Migrate(ctx, "u-1"))
	assert.Equal(t, 2, syncer.callCount())
}

func TestStartDrivesMigrationFromSessionEvents(t *testing.T) {
	service, store, syncer, bus := newFixture(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, testLine("f1", 1, nil)))

	sub := service.Start(ctx)
	defer sub.Close()

	bus.Publish(events.SessionChanged{Authenticated: true, UserID: "u-1"})
	bus.Publish(events.SessionChanged{Authenticated: true, UserID: "u-1"})

	assert.Equal(t, 1, syncer.callCount())
	assert.Equal(t, ModeServer, service.Mode())

	bus.Publish(events.SessionChanged{Authenticated: false})
	assert.Equal(t, ModeLocal, service.Mode())
}
