package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/repositories"
)

var (
	// ErrQuoteInvalidInput indicates the quote request itself was malformed.
	ErrQuoteInvalidInput = errors.New("quote: invalid input")
	// ErrQuoteUnknownReference indicates a line referenced an item or
	// combination that does not exist or is not sellable.
	ErrQuoteUnknownReference = errors.New("quote: unknown reference")
	// ErrQuoteDiscountInvalid indicates the supplied discount code cannot be
	// applied.
	ErrQuoteDiscountInvalid = errors.New("quote: discount invalid")
	// ErrQuoteUnavailable indicates a downstream dependency failure.
	ErrQuoteUnavailable = errors.New("quote: temporarily unavailable")
)

// PricingServiceDeps bundles collaborators for the pricing service.
type PricingServiceDeps struct {
	Catalog   repositories.CatalogRepository
	Discounts repositories.DiscountRepository
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type pricingService struct {
	catalog   repositories.CatalogRepository
	discounts repositories.DiscountRepository
	now       func() time.Time
	log       func(ctx context.Context, event string, fields map[string]any)
}

var _ PricingService = (*pricingService)(nil)

// NewPricingService constructs the quote calculator.
func NewPricingService(deps PricingServiceDeps) (PricingService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("pricing service: catalog repository is required")
	}
	if deps.Discounts == nil {
		return nil, errors.New("pricing service: discount repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &pricingService{
		catalog:   deps.Catalog,
		discounts: deps.Discounts,
		now:       func() time.Time { return clock().UTC() },
		log:       logger,
	}, nil
}

// Quote prices the requested lines against current catalog data. It neither
// reserves availability nor consumes discount usage; the commit transaction
// re-reads and re-prices everything.
func (s *pricingService) Quote(ctx context.Context, cmd QuoteCommand) (Quote, error) {
	cartLines, err := normalizeCartLines(cmd.Lines)
	if err != nil {
		if errors.Is(err, ErrCartEmpty) {
			return Quote{}, fmt.Errorf("%w: cart is empty", ErrQuoteInvalidInput)
		}
		return Quote{}, fmt.Errorf("%w: %v", ErrQuoteInvalidInput, err)
	}

	orderLines := make([]domain.OrderLine, 0, len(cartLines))
	currency := ""
	for _, line := range cartLines {
		priced, err := s.priceLine(ctx, line)
		if err != nil {
			return Quote{}, err
		}
		if currency == "" {
			currency = priced.currency
		} else if priced.currency != currency {
			return Quote{}, fmt.Errorf("%w: mixed currencies %s and %s", ErrQuoteInvalidInput, currency, priced.currency)
		}
		orderLines = append(orderLines, priced.line)
	}

	now := s.now()
	var appliedCode *domain.DiscountCode
	code := strings.ToUpper(strings.TrimSpace(cmd.DiscountCode))
	if code != "" {
		resolved, err := s.discounts.GetByCode(ctx, code)
		if err != nil {
			var discountErr *repositories.DiscountError
			if errors.As(err, &discountErr) {
				return Quote{}, fmt.Errorf("%w: %s", ErrQuoteDiscountInvalid, discountErr.Message)
			}
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return Quote{}, fmt.Errorf("%w: code not found", ErrQuoteDiscountInvalid)
			}
			return Quote{}, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
		}
		appliedCode = &resolved
	}

	totals, err := domain.PriceOrder(orderLines, appliedCode, now)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDiscountNotRedeemable), errors.Is(err, domain.ErrDiscountMalformed):
			return Quote{}, fmt.Errorf("%w: %v", ErrQuoteDiscountInvalid, err)
		default:
			return Quote{}, fmt.Errorf("%w: %v", ErrQuoteInvalidInput, err)
		}
	}

	s.log(ctx, "pricing.quote", map[string]any{
		"lines":    len(orderLines),
		"subtotal": totals.Subtotal,
		"total":    totals.Total,
	})

	return Quote{
		Lines:        orderLines,
		Currency:     currency,
		DiscountCode: code,
		Totals:       totals,
	}, nil
}

type pricedLine struct {
	line     domain.OrderLine
	currency string
}

func (s *pricingService) priceLine(ctx context.Context, line domain.CartLine) (pricedLine, error) {
	if line.CombinationID != "" {
		combination, err := s.catalog.GetCombination(ctx, line.CombinationID)
		if err != nil {
			return pricedLine{}, s.translateCatalogError(err, "combination "+line.CombinationID)
		}
		if !combination.Active {
			return pricedLine{}, fmt.Errorf("%w: combination %s is inactive", ErrQuoteUnknownReference, line.CombinationID)
		}
		total, err := domain.LineTotal(combination.UnitPrice, line.Quantity)
		if err != nil {
			return pricedLine{}, fmt.Errorf("%w: %v", ErrQuoteInvalidInput, err)
		}
		return pricedLine{
			line: domain.OrderLine{
				ItemID:        combination.ItemID,
				CombinationID: combination.ID,
				Name:          combination.Name,
				Attributes:    combination.Attributes,
				Quantity:      line.Quantity,
				UnitPrice:     combination.UnitPrice,
				LineTotal:     total,
			},
			currency: combination.Currency,
		}, nil
	}

	item, err := s.catalog.GetItem(ctx, line.ItemID)
	if err != nil {
		return pricedLine{}, s.translateCatalogError(err, "item "+line.ItemID)
	}
	if !item.Active {
		return pricedLine{}, fmt.Errorf("%w: item %s is inactive", ErrQuoteUnknownReference, line.ItemID)
	}
	total, err := domain.LineTotal(item.UnitPrice, line.Quantity)
	if err != nil {
		return pricedLine{}, fmt.Errorf("%w: %v", ErrQuoteInvalidInput, err)
	}
	return pricedLine{
		line: domain.OrderLine{
			ItemID:    item.ID,
			Name:      item.Name,
			Quantity:  line.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: total,
		},
		currency: item.Currency,
	}, nil
}

func (s *pricingService) translateCatalogError(err error, ref string) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %s not found", ErrQuoteUnknownReference, ref)
	}
	return fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
}
