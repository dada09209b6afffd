package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clearcart/api/internal/platform/config"
	"github.com/clearcart/api/internal/repositories"
	"github.com/clearcart/api/internal/services"
)

// Services bundles the service-layer contracts handlers rely upon. Concrete
// implementations are assembled in NewContainer.
type Services struct {
	Identity services.IdentityService
	Pricing  services.PricingService
	Checkout services.CheckoutService
	Orders   services.OrderService
	Catalog  services.CatalogService
	System   services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Option customises container construction.
type Option func(*containerConfig)

type containerConfig struct {
	publisher services.OrderEventPublisher
	logger    *zap.Logger
	clock     func() time.Time
}

// WithPublisher injects the order event publisher. Without one the checkout
// and order services skip event emission.
func WithPublisher(publisher services.OrderEventPublisher) Option {
	return func(cfg *containerConfig) {
		cfg.publisher = publisher
	}
}

// WithLogger routes service-level events through the supplied logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *containerConfig) {
		cfg.logger = logger
	}
}

// WithClock overrides the wall clock, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(cfg *containerConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies. Production wiring supplies
// the Firestore-backed registry; tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	cc := containerConfig{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cc)
		}
	}

	svc, err := buildServices(ctx, reg, cc)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients and any other held resources.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cc containerConfig) (Services, error) {
	var svc Services

	identity, err := services.NewIdentityService(services.IdentityServiceDeps{})
	if err != nil {
		return Services{}, fmt.Errorf("build identity service: %w", err)
	}
	svc.Identity = identity

	if catalogRepo := reg.Catalog(); catalogRepo != nil {
		catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
			Catalog: catalogRepo,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build catalog service: %w", err)
		}
		svc.Catalog = catalogSvc

		if discountRepo := reg.Discounts(); discountRepo != nil {
			pricingSvc, err := services.NewPricingService(services.PricingServiceDeps{
				Catalog:   catalogRepo,
				Discounts: discountRepo,
				Clock:     cc.clock,
				Logger:    eventLogger(cc.logger, "pricing"),
			})
			if err != nil {
				return Services{}, fmt.Errorf("build pricing service: %w", err)
			}
			svc.Pricing = pricingSvc
		}
	}

	if orderRepo := reg.Orders(); orderRepo != nil {
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Orders:    orderRepo,
			Publisher: cc.publisher,
			Clock:     cc.clock,
			Logger:    eventLogger(cc.logger, "orders"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc

		if counterRepo := reg.Counters(); counterRepo != nil {
			checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
				Identity:  identity,
				Orders:    orderRepo,
				Counters:  counterRepo,
				Publisher: cc.publisher,
				Clock:     cc.clock,
				Logger:    eventLogger(cc.logger, "checkout"),
			})
			if err != nil {
				return Services{}, fmt.Errorf("build checkout service: %w", err)
			}
			svc.Checkout = checkoutSvc
		}
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			Health: healthRepo,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

// eventLogger adapts a zap logger to the event-style closure services accept.
// A nil logger yields nil, letting each service fall back to its no-op.
func eventLogger(logger *zap.Logger, scope string) func(ctx context.Context, event string, fields map[string]any) {
	if logger == nil {
		return nil
	}
	scoped := logger.Named(scope)
	return func(_ context.Context, event string, fields map[string]any) {
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		scoped.Info(event, zapFields...)
	}
}
