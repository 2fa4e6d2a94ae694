package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/batjin/foodrush-storefront/api/controllers"
	"github.com/batjin/foodrush-storefront/api/middleware"
	"github.com/batjin/foodrush-storefront/pkg/config"
	"github.com/batjin/foodrush-storefront/pkg/logger"
)

// Deps carries everything the local surface serves from.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Cart     controllers.CartView
	Session  controllers.Session
	Checkout controllers.Checkout
	Payments controllers.Payments
	Registry *prometheus.Registry
}

// NewRouter assembles the local HTTP surface.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer(deps.Logger))
	r.Use(middleware.RequestID(deps.Logger))
	r.Use(middleware.Logging(deps.Logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", controllers.HealthLive(deps.Config))
	r.Get("/readyz", controllers.HealthReady(deps.Config, deps.DB))

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", controllers.CartFetch(deps.Cart, deps.Logger))
		r.Post("/items", controllers.CartAdd(deps.Cart, deps.Logger))
		r.Patch("/items/quantity", controllers.CartSetQuantity(deps.Cart, deps.Logger))
		r.Delete("/items", controllers.CartRemove(deps.Cart, deps.Logger))
		r.Delete("/", controllers.CartClear(deps.Cart, deps.Logger))
	})

	r.Route("/session", func(r chi.Router) {
		r.Get("/", controllers.SessionFetch(deps.Session, deps.Logger))
		r.Post("/login", controllers.SessionLogin(deps.Session, deps.Logger))
		r.Post("/logout", controllers.SessionLogout(deps.Session, deps.Logger))
	})

	r.Post("/checkout", controllers.CheckoutCreate(deps.Checkout, deps.Logger))

	r.Route("/payment", func(r chi.Router) {
		r.Get("/{orderID}", controllers.PaymentFetch(deps.Payments, deps.Logger))
		r.Post("/{orderID}/cancel", controllers.PaymentCancel(deps.Payments, deps.Logger))
	})

	return r
}
