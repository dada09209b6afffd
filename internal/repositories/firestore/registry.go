package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/iterator"

	pfirestore "github.com/clearcart/api/internal/platform/firestore"
	"github.com/clearcart/api/internal/repositories"
)

const firestoreProbeTimeout = 1500 * time.Millisecond

// Registry bundles the Firestore-backed repositories behind the accessor
// interface services are wired against. All repositories share the provider's
// lazily created client, so closing the registry closes every repository.
type Registry struct {
	provider *pfirestore.Provider

	catalog   *CatalogRepository
	discounts *DiscountRepository
	orders    *OrderRepository
	counters  *CounterRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises registry construction.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	orderOpts    []OrderRepositoryOption
	extraChecks  []repositories.DependencyCheck
	probeTimeout time.Duration
}

// WithOrderRepositoryOptions forwards options to the order repository, such
// as commit timeout and retry budget.
func WithOrderRepositoryOptions(opts ...OrderRepositoryOption) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.orderOpts = append(cfg.orderOpts, opts...)
	}
}

// WithHealthChecks registers additional dependency probes alongside the
// built-in Firestore probe.
func WithHealthChecks(checks ...repositories.DependencyCheck) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.extraChecks = append(cfg.extraChecks, checks...)
	}
}

// WithFirestoreProbeTimeout bounds the readiness probe against Firestore.
func WithFirestoreProbeTimeout(timeout time.Duration) RegistryOption {
	return func(cfg *registryConfig) {
		if timeout > 0 {
			cfg.probeTimeout = timeout
		}
	}
}

// NewRegistry wires every Firestore repository against a shared provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	cfg := registryConfig{probeTimeout: firestoreProbeTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	catalog, err := NewCatalogRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	discounts, err := NewDiscountRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	orders, err := NewOrderRepository(provider, cfg.orderOpts...)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	checks := append([]repositories.DependencyCheck{
		{
			Name:    "firestore",
			Timeout: cfg.probeTimeout,
			Check:   firestoreProbe(provider),
		},
	}, cfg.extraChecks...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	return &Registry{
		provider:  provider,
		catalog:   catalog,
		discounts: discounts,
		orders:    orders,
		counters:  counters,
		health:    health,
	}, nil
}

// firestoreProbe lists a single collection to confirm the client can reach
// the backend. An empty database answers iterator.Done, which still proves
// connectivity.
func firestoreProbe(provider *pfirestore.Provider) func(context.Context) error {
	return func(ctx context.Context) error {
		client, err := provider.Client(ctx)
		if err != nil {
			return err
		}
		iter := client.Collections(ctx)
		if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
			return err
		}
		return nil
	}
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Catalog returns the catalog read repository.
func (r *Registry) Catalog() repositories.CatalogRepository { return r.catalog }

// Discounts returns the discount code repository.
func (r *Registry) Discounts() repositories.DiscountRepository { return r.discounts }

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Counters returns the sequence counter repository.
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

// Health returns the dependency health repository.
func (r *Registry) Health() repositories.HealthRepository { return r.health }
