package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/clearcart/api/internal/domain"
	pfirestore "github.com/clearcart/api/internal/platform/firestore"
	"github.com/clearcart/api/internal/platform/pagination"
	"github.com/clearcart/api/internal/repositories"
)

const (
	catalogItemsCollection = "catalogItems"
	combinationsCollection = "attributeCombinations"
)

type catalogItemDocument struct {
	Name              string    `firestore:"name"`
	UnitPrice         int64     `firestore:"unitPrice"`
	Currency          string    `firestore:"currency"`
	Available         int64     `firestore:"available"`
	LowStockThreshold int64     `firestore:"lowStockThreshold"`
	StockDelta        int64     `firestore:"stockDelta"`
	Active            bool      `firestore:"active"`
	CreatedAt         time.Time `firestore:"createdAt"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

// recalculate keeps the queryable low-stock delta in sync with the counter.
func (d *catalogItemDocument) recalculate() {
	d.StockDelta = d.Available - d.LowStockThreshold
}

func (d catalogItemDocument) toDomain(id string) domain.CatalogItem {
	return domain.CatalogItem{
		ID:                id,
		Name:              d.Name,
		UnitPrice:         d.UnitPrice,
		Currency:          d.Currency,
		Available:         d.Available,
		LowStockThreshold: d.LowStockThreshold,
		Active:            d.Active,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

type combinationDocument struct {
	ItemRef    string            `firestore:"itemRef"`
	Name       string            `firestore:"name"`
	Attributes map[string]string `firestore:"attributes"`
	UnitPrice  int64             `firestore:"unitPrice"`
	Currency   string            `firestore:"currency"`
	Available  int64             `firestore:"available"`
	Active     bool              `firestore:"active"`
	CreatedAt  time.Time         `firestore:"createdAt"`
	UpdatedAt  time.Time         `firestore:"updatedAt"`
}

func (d combinationDocument) toDomain(id string) domain.AttributeCombination {
	return domain.AttributeCombination{
		ID:         id,
		ItemID:     d.ItemRef,
		Name:       d.Name,
		Attributes: d.Attributes,
		UnitPrice:  d.UnitPrice,
		Currency:   d.Currency,
		Available:  d.Available,
		Active:     d.Active,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// CatalogRepository reads catalog items and attribute combinations.
type CatalogRepository struct {
	provider     *pfirestore.Provider
	items        *pfirestore.Collection[catalogItemDocument]
	combinations *pfirestore.Collection[combinationDocument]
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		provider:     provider,
		items:        pfirestore.NewCollection[catalogItemDocument](provider, catalogItemsCollection, nil),
		combinations: pfirestore.NewCollection[combinationDocument](provider, combinationsCollection, nil),
	}, nil
}

// GetItem fetches one catalog item.
func (r *CatalogRepository) GetItem(ctx context.Context, itemID string) (domain.CatalogItem, error) {
	if r == nil || r.items == nil {
		return domain.CatalogItem{}, errors.New("catalog repository not initialised")
	}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.CatalogItem{}, errors.New("catalog get item: id is required")
	}
	doc, err := r.items.Get(ctx, itemID)
	if err != nil {
		return domain.CatalogItem{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// GetCombination fetches one attribute combination.
func (r *CatalogRepository) GetCombination(ctx context.Context, combinationID string) (domain.AttributeCombination, error) {
	if r == nil || r.combinations == nil {
		return domain.AttributeCombination{}, errors.New("catalog repository not initialised")
	}
	combinationID = strings.TrimSpace(combinationID)
	if combinationID == "" {
		return domain.AttributeCombination{}, errors.New("catalog get combination: id is required")
	}
	doc, err := r.combinations.Get(ctx, combinationID)
	if err != nil {
		return domain.AttributeCombination{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListCombinations returns the combinations attached to an item, ordered by
// name.
func (r *CatalogRepository) ListCombinations(ctx context.Context, itemID string) ([]domain.AttributeCombination, error) {
	if r == nil || r.combinations == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, errors.New("catalog list combinations: item id is required")
	}

	docs, err := r.combinations.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("itemRef", "==", itemID).OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	combinations := make([]domain.AttributeCombination, 0, len(docs))
	for _, doc := range docs {
		combinations = append(combinations, doc.Data.toDomain(doc.ID))
	}
	return combinations, nil
}

// ListLowStock pages through items whose availability dropped to or below the
// threshold. With a zero threshold each item's own configured threshold
// applies, via the denormalised stockDelta field.
func (r *CatalogRepository) ListLowStock(ctx context.Context, query repositories.LowStockQuery) (domain.CursorPage[domain.CatalogItem], error) {
	if r == nil || r.items == nil {
		return domain.CursorPage[domain.CatalogItem]{}, errors.New("catalog repository not initialised")
	}

	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	if pageSize > pagination.DefaultMaxPageSize {
		pageSize = pagination.DefaultMaxPageSize
	}

	orderField := "stockDelta"
	var bound any = int64(0)
	if query.Threshold > 0 {
		orderField = "available"
		bound = query.Threshold
	}

	cursor, err := pagination.DecodeToken(query.PageToken)
	if err != nil {
		return domain.CursorPage[domain.CatalogItem]{}, err
	}

	docs, err := r.items.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where(orderField, "<=", bound).
			OrderBy(orderField, firestore.Asc).
			OrderBy(firestore.DocumentID, firestore.Asc).
			Limit(pageSize + 1)
		if !cursor.IsZero() && len(cursor.StartAfter) == 2 {
			q = q.StartAfter(cursorInt(cursor.StartAfter[0]), cursor.StartAfter[1])
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.CatalogItem]{}, err
	}

	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}

	items := make([]domain.CatalogItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}

	var nextToken string
	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		sortValue := last.Data.StockDelta
		if query.Threshold > 0 {
			sortValue = last.Data.Available
		}
		nextToken, err = pagination.EncodeToken(pagination.Cursor{StartAfter: []any{sortValue, last.ID}})
		if err != nil {
			return domain.CursorPage[domain.CatalogItem]{}, err
		}
	}

	return domain.CursorPage[domain.CatalogItem]{
		Items:         items,
		NextPageToken: nextToken,
		HasMore:       hasMore,
	}, nil
}

// cursorInt normalises numeric cursor values that round-tripped through JSON.
func cursorInt(value any) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		var parsed int64
		_, _ = fmt.Sscanf(v, "%d", &parsed)
		return parsed
	default:
		return 0
	}
}
