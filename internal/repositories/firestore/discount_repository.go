package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/clearcart/api/internal/domain"
	pfirestore "github.com/clearcart/api/internal/platform/firestore"
	"github.com/clearcart/api/internal/repositories"
)

const discountCodesCollection = "discountCodes"

type discountDocument struct {
	Kind       string    `firestore:"kind"`
	Value      int64     `firestore:"value"`
	Currency   string    `firestore:"currency,omitempty"`
	StartsAt   time.Time `firestore:"startsAt,omitempty"`
	EndsAt     time.Time `firestore:"endsAt,omitempty"`
	UsageLimit int64     `firestore:"usageLimit"`
	UsageCount int64     `firestore:"usageCount"`
	Active     bool      `firestore:"active"`
}

func (d discountDocument) toDomain(code string) domain.DiscountCode {
	return domain.DiscountCode{
		Code:       code,
		Kind:       domain.DiscountKind(d.Kind),
		Value:      d.Value,
		Currency:   d.Currency,
		StartsAt:   d.StartsAt,
		EndsAt:     d.EndsAt,
		UsageLimit: d.UsageLimit,
		UsageCount: d.UsageCount,
		Active:     d.Active,
	}
}

// redeemError maps the first failing redemption rule to a typed error, or
// nil when the code can be applied at the given instant.
func (d discountDocument) redeemError(code string, now time.Time) *repositories.DiscountError {
	switch {
	case !d.Active:
		return repositories.NewDiscountError(repositories.DiscountErrorInactive, "discount code "+code+" is inactive", nil)
	case !d.StartsAt.IsZero() && now.Before(d.StartsAt):
		return repositories.NewDiscountError(repositories.DiscountErrorNotStarted, "discount code "+code+" is not yet valid", nil)
	case !d.EndsAt.IsZero() && now.After(d.EndsAt):
		return repositories.NewDiscountError(repositories.DiscountErrorExpired, "discount code "+code+" has expired", nil)
	case d.UsageLimit > 0 && d.UsageCount >= d.UsageLimit:
		return repositories.NewDiscountError(repositories.DiscountErrorExhausted, "discount code "+code+" usage limit reached", nil)
	default:
		return nil
	}
}

// normalizeDiscountCode maps user input onto the document ID convention:
// codes are stored uppercase.
func normalizeDiscountCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// DiscountRepository reads discount code definitions.
type DiscountRepository struct {
	provider *pfirestore.Provider
	codes    *pfirestore.Collection[discountDocument]
}

var _ repositories.DiscountRepository = (*DiscountRepository)(nil)

// NewDiscountRepository constructs a Firestore-backed discount repository.
func NewDiscountRepository(provider *pfirestore.Provider) (*DiscountRepository, error) {
	if provider == nil {
		return nil, errors.New("discount repository requires firestore provider")
	}
	return &DiscountRepository{
		provider: provider,
		codes:    pfirestore.NewCollection[discountDocument](provider, discountCodesCollection, nil),
	}, nil
}

// GetByCode fetches a discount code definition. The lookup is
// case-insensitive.
func (r *DiscountRepository) GetByCode(ctx context.Context, code string) (domain.DiscountCode, error) {
	if r == nil || r.codes == nil {
		return domain.DiscountCode{}, errors.New("discount repository not initialised")
	}
	normalized := normalizeDiscountCode(code)
	if normalized == "" {
		return domain.DiscountCode{}, repositories.NewDiscountError(repositories.DiscountErrorNotFound, "discount code is required", nil)
	}

	doc, err := r.codes.Get(ctx, normalized)
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.DiscountCode{}, repositories.NewDiscountError(repositories.DiscountErrorNotFound, "discount code "+normalized+" not found", err)
		}
		return domain.DiscountCode{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}
