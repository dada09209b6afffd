package services

import (
	"errors"
	"fmt"
	"strings"

	domain "github.com/clearcart/api/internal/domain"
)

var (
	// ErrCartEmpty indicates a checkout or quote with no purchasable lines.
	ErrCartEmpty = errors.New("cart: empty")
	// ErrCartInvalidLine indicates a line that references nothing, references
	// both an item and a combination, or has a non-positive quantity.
	ErrCartInvalidLine = errors.New("cart: invalid line")
)

// normalizeCartLines validates the requested lines and merges duplicates that
// reference the same item or combination. Each line must reference exactly one
// of the two ledgers; quantities for the same reference are summed.
func normalizeCartLines(lines []QuoteLine) ([]domain.CartLine, error) {
	if len(lines) == 0 {
		return nil, ErrCartEmpty
	}

	merged := make([]domain.CartLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for i, line := range lines {
		itemID := strings.TrimSpace(line.ItemID)
		combinationID := strings.TrimSpace(line.CombinationID)
		if (itemID == "") == (combinationID == "") {
			return nil, fmt.Errorf("%w: line %d must reference exactly one of item or combination", ErrCartInvalidLine, i)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %d quantity must be positive", ErrCartInvalidLine, i)
		}

		key := "item:" + itemID
		if combinationID != "" {
			key = "combination:" + combinationID
		}
		if at, ok := index[key]; ok {
			merged[at].Quantity += line.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, domain.CartLine{
			ItemID:        itemID,
			CombinationID: combinationID,
			Quantity:      line.Quantity,
		})
	}
	return merged, nil
}
