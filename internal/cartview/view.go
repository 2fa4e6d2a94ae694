package cartview

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/batjin/foodrush-storefront/internal/cart"
	"github.com/batjin/foodrush-storefront/internal/reconcile"
	"github.com/batjin/foodrush-storefront/pkg/backend"
	pkgerrors "github.com/batjin/foodrush-storefront/pkg/errors"
	"github.com/batjin/foodrush-storefront/pkg/events"
	"github.com/batjin/foodrush-storefront/pkg/logger"
)

// ServerCart is the slice of the backend client the view dispatches to.
type ServerCart interface {
	Cart(ctx context.Context, userID string) ([]backend.Item, error)
	AddItem(ctx context.Context, req backend.AddItemRequest) error
	UpdateItem(ctx context.Context, lineID string, quantity int) error
	RemoveItem(ctx context.Context, lineID string) error
	ClearCart(ctx context.Context, userID string) error
}

// Resolver reports which store is authoritative.
type Resolver interface {
	Mode() reconcile.Mode
}

// Session supplies the signed-in user id for server cart calls.
type Session interface {
	UserID() string
}

// ViewParams carries the dependencies for NewView.
type ViewParams struct {
	Local   *cart.Store
	Server  ServerCart
	Modes   Resolver
	Session Session
	Bus     *events.Bus
	Logger  *logger.Logger
}

// View is the read model the UI surface serves from. Mutations apply to the
// in-memory copy first, then dispatch to whichever store is authoritative;
// a failed dispatch throws the optimistic copy away and reloads.
type View struct {
	local   *cart.Store
	server  ServerCart
	modes   Resolver
	session Session
	bus     *events.Bus
	logg    *logger.Logger

	mu       sync.Mutex
	items    []cart.Line
	inflight map[string]bool
}

func NewView(params ViewParams) (*View, error) {
	if params.Local == nil {
		return nil, fmt.Errorf("local cart store is required")
	}
	if params.Server == nil {
		return nil, fmt.Errorf("server cart client is required")
	}
	if params.Modes == nil {
		return nil, fmt.Errorf("mode resolver is required")
	}
	if params.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if params.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &View{
		local:    params.Local,
		server:   params.Server,
		modes:    params.Modes,
		session:  params.Session,
		bus:      params.Bus,
		logg:     params.Logger,
		inflight: make(map[string]bool),
	}, nil
}

// Start loads the initial state and keeps the view in step with the bus:
// any cart or session change triggers a reload from the authoritative
// store.
func (v *View) Start(ctx context.Context) *events.Subscription {
	v.Reload(ctx)
	return v.bus.Subscribe(func(event events.Event) {
		switch event.(type) {
		case events.CartChanged, events.SessionChanged:
			v.Reload(ctx)
		}
	})
}

// Reload replaces the in-memory copy with the authoritative store's
// contents. On failure the previous copy stays; the view never goes blank
// over one missed read.
func (v *View) Reload(ctx context.Context) {
	lines, err := v.loadAuthoritative(ctx)
	if err != nil {
		v.logg.Error(ctx, "reloading cart view", err)
		return
	}
	v.mu.Lock()
	v.items = lines
	v.mu.Unlock()
}

func (v *View) loadAuthoritative(ctx context.Context) ([]cart.Line, error) {
	if v.modes.Mode() == reconcile.ModeServer {
		items, err := v.server.Cart(ctx, v.session.UserID())
		if err != nil {
			return nil, err
		}
		return cart.FromItems(items), nil
	}
	return v.local.Load(ctx)
}

// Items returns a copy of the current cart lines.
func (v *View) Items() []cart.Line {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]cart.Line(nil), v.items...)
}

// ItemCount sums quantities across the cart.
func (v *View) ItemCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cart.Count(v.items)
}

// TotalPrice sums price times quantity across the cart. Delivery fee is
// added at checkout, never here.
func (v *View) TotalPrice() decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cart.Total(v.items)
}

// Add puts a line in the cart.
func (v *View) Add(ctx context.Context, line cart.Line) error {
	if line.FoodID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart line has no food id")
	}
	line.Quantity = cart.ClampQuantity(line.Quantity)

	key := variantKey(line)
	if !v.begin(key) {
		return nil
	}
	defer v.end(key)

	v.mu.Lock()
	v.items = cart.Merge(v.items, line)
	v.mu.Unlock()

	var err error
	if v.modes.Mode() == reconcile.ModeServer {
		err = v.server.AddItem(ctx, backend.AddItemRequest{
			UserID:       v.session.UserID(),
			FoodID:       line.FoodID,
			Quantity:     line.Quantity,
			SelectedSize: line.SelectedSize,
			Food:         line.Food,
		})
	} else {
		err = v.local.Add(ctx, line)
	}
	return v.settle(ctx, "adding cart line", err)
}

// SetQuantity replaces a line's quantity. In server mode a line that lost
// its server id is not mutated blind; the view reloads instead.
func (v *View) SetQuantity(ctx context.Context, line cart.Line, quantity int) error {
	quantity = cart.ClampQuantity(quantity)

	key := variantKey(line)
	if !v.begin(key) {
		return nil
	}
	defer v.end(key)

	serverMode := v.modes.Mode() == reconcile.ModeServer
	if serverMode && line.ID == "" {
		v.logg.Warn(ctx, "server cart line without id, reloading instead of updating")
		v.Reload(ctx)
		return nil
	}

	v.applyOptimistic(line, func(l *cart.Line) { l.Quantity = quantity })

	var err error
	if serverMode {
		err = v.server.UpdateItem(ctx, line.ID, quantity)
	} else {
		err = v.local.SetQuantity(ctx, line, quantity)
	}
	return v.settle(ctx, "updating cart line", err)
}

// Remove deletes a line. Same id policy as SetQuantity.
func (v *View) Remove(ctx context.Context, line cart.Line) error {
	key := variantKey(line)
	if !v.begin(key) {
		return nil
	}
	defer v.end(key)

	serverMode := v.modes.Mode() == reconcile.ModeServer
	if serverMode && line.ID == "" {
		v.logg.Warn(ctx, "server cart line without id, reloading instead of removing")
		v.Reload(ctx)
		return nil
	}

	v.mu.Lock()
	kept := v.items[:0:0]
	for _, item := range v.items {
		if !item.SameVariant(line) {
			kept = append(kept, item)
		}
	}
	v.items = kept
	v.mu.Unlock()

	var err error
	if serverMode {
		err = v.server.RemoveItem(ctx, line.ID)
	} else {
		err = v.local.Remove(ctx, line)
	}
	return v.settle(ctx, "removing cart line", err)
}

// Clear empties the cart.
func (v *View) Clear(ctx context.Context) error {
	v.mu.Lock()
	v.items = nil
	v.mu.Unlock()

	var err error
	if v.modes.Mode() == reconcile.ModeServer {
		err = v.server.ClearCart(ctx, v.session.UserID())
	} else {
		err = v.local.Clear(ctx)
	}
	return v.settle(ctx, "clearing cart", err)
}

// settle finalizes a dispatch: failures drop the optimistic state, reload
// from the authoritative store, and tell the user.
func (v *View) settle(ctx context.Context, action string, err error) error {
	if err == nil {
		return nil
	}
	v.logg.Error(ctx, action+" failed, reloading cart", err)
	v.Reload(ctx)
	v.bus.Publish(events.Notice{
		Level:   events.NoticeError,
		Message: "That didn't go through. Your cart was refreshed.",
	})
	return err
}

func (v *View) applyOptimistic(target cart.Line, mutate func(*cart.Line)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.items {
		if v.items[i].SameVariant(target) {
			mutate(&v.items[i])
			return
		}
	}
}

// begin marks a mutation target in flight. A second mutation for the same
// target while one is pending is dropped rather than queued.
func (v *View) begin(key string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.inflight[key] {
		return false
	}
	v.inflight[key] = true
	return true
}

func (v *View) end(key string) {
	v.mu.Lock()
	delete(v.inflight, key)
	v.mu.Unlock()
}

func variantKey(line cart.Line) string {
	if line.ID != "" {
		return "id:" + line.ID
	}
	if line.SelectedSize != nil {
		return line.FoodID + "|" + *line.SelectedSize
	}
	return line.FoodID
}
