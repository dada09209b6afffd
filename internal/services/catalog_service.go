package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/repositories"
)

var (
	// ErrCatalogInvalidInput indicates the request failed validation.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates no item or combination matches the ID.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogUnavailable indicates a downstream dependency failure.
	ErrCatalogUnavailable = errors.New("catalog: temporarily unavailable")
)

// CatalogServiceDeps bundles collaborators for the catalog service.
type CatalogServiceDeps struct {
	Catalog repositories.CatalogRepository
}

type catalogService struct {
	catalog repositories.CatalogRepository
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs the catalog read service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("catalog service: catalog repository is required")
	}
	return &catalogService{catalog: deps.Catalog}, nil
}

func (s *catalogService) GetItem(ctx context.Context, itemID string) (domain.CatalogItem, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.CatalogItem{}, fmt.Errorf("%w: item id is required", ErrCatalogInvalidInput)
	}
	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		return domain.CatalogItem{}, translateCatalogRepoError(err)
	}
	return item, nil
}

func (s *catalogService) GetCombination(ctx context.Context, combinationID string) (domain.AttributeCombination, error) {
	combinationID = strings.TrimSpace(combinationID)
	if combinationID == "" {
		return domain.AttributeCombination{}, fmt.Errorf("%w: combination id is required", ErrCatalogInvalidInput)
	}
	combination, err := s.catalog.GetCombination(ctx, combinationID)
	if err != nil {
		return domain.AttributeCombination{}, translateCatalogRepoError(err)
	}
	return combination, nil
}

func (s *catalogService) ListCombinations(ctx context.Context, itemID string) ([]domain.AttributeCombination, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, fmt.Errorf("%w: item id is required", ErrCatalogInvalidInput)
	}
	combinations, err := s.catalog.ListCombinations(ctx, itemID)
	if err != nil {
		return nil, translateCatalogRepoError(err)
	}
	return combinations, nil
}

func (s *catalogService) ListLowStock(ctx context.Context, query LowStockQuery) (domain.CursorPage[domain.CatalogItem], error) {
	if query.Threshold < 0 {
		return domain.CursorPage[domain.CatalogItem]{}, fmt.Errorf("%w: threshold must not be negative", ErrCatalogInvalidInput)
	}
	page, err := s.catalog.ListLowStock(ctx, repositories.LowStockQuery{
		Threshold: query.Threshold,
		PageSize:  query.Pagination.PageSize,
		PageToken: query.Pagination.PageToken,
	})
	if err != nil {
		return domain.CursorPage[domain.CatalogItem]{}, translateCatalogRepoError(err)
	}
	return page, nil
}

func translateCatalogRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
}
