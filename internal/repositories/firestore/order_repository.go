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

const ordersCollection = "orders"

type orderLineDocument struct {
	ItemRef        string            `firestore:"itemRef,omitempty"`
	CombinationRef string            `firestore:"combinationRef,omitempty"`
	Name           string            `firestore:"name"`
	Attributes     map[string]string `firestore:"attributes,omitempty"`
	Quantity       int64             `firestore:"qty"`
	UnitPrice      int64             `firestore:"unitPrice"`
	LineTotal      int64             `firestore:"lineTotal"`
}

type orderAddressDocument struct {
	Line1      string `firestore:"line1,omitempty"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city,omitempty"`
	Region     string `firestore:"region,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty"`
	Country    string `firestore:"country,omitempty"`
}

type orderContactDocument struct {
	Email   string               `firestore:"email"`
	Name    string               `firestore:"name,omitempty"`
	Phone   string               `firestore:"phone,omitempty"`
	Address orderAddressDocument `firestore:"address,omitempty"`
}

type orderDocument struct {
	Number         string               `firestore:"number"`
	OwnerRef       string               `firestore:"ownerRef"`
	OwnerKind      string               `firestore:"ownerKind"`
	Contact        orderContactDocument `firestore:"contact"`
	Lines          []orderLineDocument  `firestore:"lines"`
	Currency       string               `firestore:"currency"`
	DiscountCode   string               `firestore:"discountCode,omitempty"`
	Subtotal       int64                `firestore:"subtotal"`
	DiscountAmount int64                `firestore:"discountAmount"`
	Total          int64                `firestore:"total"`
	Status         string               `firestore:"status"`
	PaymentStatus  string               `firestore:"paymentStatus"`
	PlacedAt       time.Time            `firestore:"placedAt"`
	ProcessingAt   *time.Time           `firestore:"processingAt,omitempty"`
	ShippedAt      *time.Time           `firestore:"shippedAt,omitempty"`
	DeliveredAt    *time.Time           `firestore:"deliveredAt,omitempty"`
	CancelledAt    *time.Time           `firestore:"cancelledAt,omitempty"`
	PaidAt         *time.Time           `firestore:"paidAt,omitempty"`
	RefundedAt     *time.Time           `firestore:"refundedAt,omitempty"`
	CreatedAt      time.Time            `firestore:"createdAt"`
	UpdatedAt      time.Time            `firestore:"updatedAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	lines := make([]orderLineDocument, len(order.Lines))
	for i, line := range order.Lines {
		lines[i] = orderLineDocument{
			ItemRef:        line.ItemID,
			CombinationRef: line.CombinationID,
			Name:           line.Name,
			Attributes:     line.Attributes,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			LineTotal:      line.LineTotal,
		}
	}
	return orderDocument{
		Number:    order.Number,
		OwnerRef:  order.OwnerRef,
		OwnerKind: string(order.OwnerKind),
		Contact: orderContactDocument{
			Email: order.Contact.Email,
			Name:  order.Contact.Name,
			Phone: order.Contact.Phone,
			Address: orderAddressDocument{
				Line1:      order.Contact.Address.Line1,
				Line2:      order.Contact.Address.Line2,
				City:       order.Contact.Address.City,
				Region:     order.Contact.Address.Region,
				PostalCode: order.Contact.Address.PostalCode,
				Country:    order.Contact.Address.Country,
			},
		},
		Lines:          lines,
		Currency:       order.Currency,
		DiscountCode:   order.DiscountCode,
		Subtotal:       order.Totals.Subtotal,
		DiscountAmount: order.Totals.DiscountAmount,
		Total:          order.Totals.Total,
		Status:         string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		PlacedAt:       order.PlacedAt,
		ProcessingAt:   order.ProcessingAt,
		ShippedAt:      order.ShippedAt,
		DeliveredAt:    order.DeliveredAt,
		CancelledAt:    order.CancelledAt,
		PaidAt:         order.PaidAt,
		RefundedAt:     order.RefundedAt,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	lines := make([]domain.OrderLine, len(d.Lines))
	for i, line := range d.Lines {
		lines[i] = domain.OrderLine{
			ItemID:        line.ItemRef,
			CombinationID: line.CombinationRef,
			Name:          line.Name,
			Attributes:    line.Attributes,
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
			LineTotal:     line.LineTotal,
		}
	}
	return domain.Order{
		ID:        id,
		Number:    d.Number,
		OwnerRef:  d.OwnerRef,
		OwnerKind: domain.OwnerKind(d.OwnerKind),
		Contact: domain.Contact{
			Email: d.Contact.Email,
			Name:  d.Contact.Name,
			Phone: d.Contact.Phone,
			Address: domain.Address{
				Line1:      d.Contact.Address.Line1,
				Line2:      d.Contact.Address.Line2,
				City:       d.Contact.Address.City,
				Region:     d.Contact.Address.Region,
				PostalCode: d.Contact.Address.PostalCode,
				Country:    d.Contact.Address.Country,
			},
		},
		Lines:        lines,
		Currency:     d.Currency,
		DiscountCode: d.DiscountCode,
		Totals: domain.OrderTotals{
			Subtotal:       d.Subtotal,
			DiscountAmount: d.DiscountAmount,
			Total:          d.Total,
		},
		Status:        domain.OrderStatus(d.Status),
		PaymentStatus: domain.PaymentStatus(d.PaymentStatus),
		PlacedAt:      d.PlacedAt,
		ProcessingAt:  d.ProcessingAt,
		ShippedAt:     d.ShippedAt,
		DeliveredAt:   d.DeliveredAt,
		CancelledAt:   d.CancelledAt,
		PaidAt:        d.PaidAt,
		RefundedAt:    d.RefundedAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// OrderRepository persists orders. Commit performs the whole checkout write
// set in a single Firestore transaction.
type OrderRepository struct {
	provider     *pfirestore.Provider
	orders       *pfirestore.Collection[orderDocument]
	items        *pfirestore.Collection[catalogItemDocument]
	combinations *pfirestore.Collection[combinationDocument]
	discounts    *pfirestore.Collection[discountDocument]
	txAttempts   int
	txTimeout    time.Duration
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// OrderRepositoryOption customises commit transaction behaviour.
type OrderRepositoryOption func(*OrderRepository)

// WithCommitAttempts overrides the contention retry budget for commits.
func WithCommitAttempts(attempts int) OrderRepositoryOption {
	return func(r *OrderRepository) {
		if attempts > 0 {
			r.txAttempts = attempts
		}
	}
}

// WithCommitTimeout bounds the total duration of a commit transaction.
func WithCommitTimeout(timeout time.Duration) OrderRepositoryOption {
	return func(r *OrderRepository) {
		if timeout > 0 {
			r.txTimeout = timeout
		}
	}
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider, opts ...OrderRepositoryOption) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	repo := &OrderRepository{
		provider:     provider,
		orders:       pfirestore.NewCollection[orderDocument](provider, ordersCollection, nil),
		items:        pfirestore.NewCollection[catalogItemDocument](provider, catalogItemsCollection, nil),
		combinations: pfirestore.NewCollection[combinationDocument](provider, combinationsCollection, nil),
		discounts:    pfirestore.NewCollection[discountDocument](provider, discountCodesCollection, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// lineRead pairs a requested line with the catalog document read inside the
// commit transaction.
type lineRead struct {
	request domain.CartLine
	itemRef *firestore.DocumentRef
	item    *catalogItemDocument
	combo   *combinationDocument
}

// Commit atomically checks and decrements availability for every line,
// validates and consumes the discount code, and creates the order document.
// On any failure the transaction aborts and no counter or document changes.
func (r *OrderRepository) Commit(ctx context.Context, req repositories.OrderCommitRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return domain.Order{}, errors.New("order commit: order id is required")
	}
	if req.Owner.IsZero() {
		return domain.Order{}, errors.New("order commit: owner is required")
	}
	if len(req.Lines) == 0 {
		return domain.Order{}, errors.New("order commit: at least one line is required")
	}

	now := req.Now.UTC()
	discountCode := normalizeDiscountCode(req.DiscountCode)

	var committed domain.Order
	txErr := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.Doc(ctx, req.OrderID)
		if err != nil {
			return err
		}

		// All reads must precede writes inside a Firestore transaction.
		var discountDoc *discountDocument
		var discountRef *firestore.DocumentRef
		if discountCode != "" {
			discountRef, err = r.discounts.Doc(ctx, discountCode)
			if err != nil {
				return err
			}
			doc, err := r.discounts.GetTx(ctx, tx, discountCode)
			if err != nil {
				var repoErr *pfirestore.Error
				if errors.As(err, &repoErr) && repoErr.IsNotFound() {
					return repositories.NewDiscountError(repositories.DiscountErrorNotFound, "discount code "+discountCode+" not found", err)
				}
				return err
			}
			discountDoc = &doc.Data
		}

		reads := make([]lineRead, 0, len(req.Lines))
		for _, line := range req.Lines {
			read := lineRead{request: line}
			switch {
			case line.CombinationID != "":
				read.itemRef, err = r.combinations.Doc(ctx, line.CombinationID)
				if err != nil {
					return err
				}
				doc, err := r.combinations.GetTx(ctx, tx, line.CombinationID)
				if err != nil {
					var repoErr *pfirestore.Error
					if errors.As(err, &repoErr) && repoErr.IsNotFound() {
						return repositories.NewLedgerError(repositories.LedgerErrorRefNotFound, line.CombinationID, "combination "+line.CombinationID+" not found", err)
					}
					return err
				}
				read.combo = &doc.Data
			case line.ItemID != "":
				read.itemRef, err = r.items.Doc(ctx, line.ItemID)
				if err != nil {
					return err
				}
				doc, err := r.items.GetTx(ctx, tx, line.ItemID)
				if err != nil {
					var repoErr *pfirestore.Error
					if errors.As(err, &repoErr) && repoErr.IsNotFound() {
						return repositories.NewLedgerError(repositories.LedgerErrorRefNotFound, line.ItemID, "item "+line.ItemID+" not found", err)
					}
					return err
				}
				read.item = &doc.Data
			default:
				return errors.New("order commit: line must reference an item or combination")
			}
			reads = append(reads, read)
		}

		// Validate availability and the discount window against the state
		// read inside this transaction.
		if discountDoc != nil {
			if redeemErr := discountDoc.redeemError(discountCode, now); redeemErr != nil {
				return redeemErr
			}
		}

		currency := ""
		orderLines := make([]domain.OrderLine, 0, len(reads))
		for i := range reads {
			read := &reads[i]
			qty := read.request.Quantity

			var ref, name, lineCurrency string
			var attributes map[string]string
			var unitPrice, available int64
			var active bool
			var itemID, combinationID string

			if read.combo != nil {
				ref = read.request.CombinationID
				combinationID = read.request.CombinationID
				itemID = read.combo.ItemRef
				name = read.combo.Name
				attributes = read.combo.Attributes
				unitPrice = read.combo.UnitPrice
				lineCurrency = read.combo.Currency
				available = read.combo.Available
				active = read.combo.Active
			} else {
				ref = read.request.ItemID
				itemID = read.request.ItemID
				name = read.item.Name
				unitPrice = read.item.UnitPrice
				lineCurrency = read.item.Currency
				available = read.item.Available
				active = read.item.Active
			}

			if !active {
				return repositories.NewLedgerError(repositories.LedgerErrorRefInactive, ref, ref+" is not sellable", nil)
			}
			if available < qty {
				return repositories.NewLedgerError(repositories.LedgerErrorInsufficient, ref, fmt.Sprintf("insufficient availability for %s: want %d, have %d", ref, qty, available), nil)
			}
			if currency == "" {
				currency = lineCurrency
			} else if lineCurrency != "" && lineCurrency != currency {
				return fmt.Errorf("order commit: mixed currencies %s and %s", currency, lineCurrency)
			}

			lineTotal, err := domain.LineTotal(unitPrice, qty)
			if err != nil {
				return err
			}
			orderLines = append(orderLines, domain.OrderLine{
				ItemID:        itemID,
				CombinationID: combinationID,
				Name:          name,
				Attributes:    attributes,
				Quantity:      qty,
				UnitPrice:     unitPrice,
				LineTotal:     lineTotal,
			})
		}

		var appliedCode *domain.DiscountCode
		if discountDoc != nil {
			code := discountDoc.toDomain(discountCode)
			appliedCode = &code
		}
		totals, err := domain.PriceOrder(orderLines, appliedCode, now)
		if err != nil {
			return err
		}

		// Writes: decrement every touched counter, consume the code, create
		// the order.
		for i := range reads {
			read := &reads[i]
			qty := read.request.Quantity
			if read.combo != nil {
				doc := *read.combo
				doc.Available -= qty
				doc.UpdatedAt = now
				if err := tx.Set(read.itemRef, doc); err != nil {
					return err
				}
			} else {
				doc := *read.item
				doc.Available -= qty
				doc.UpdatedAt = now
				doc.recalculate()
				if err := tx.Set(read.itemRef, doc); err != nil {
					return err
				}
			}
		}

		if discountDoc != nil {
			doc := *discountDoc
			doc.UsageCount++
			if err := tx.Set(discountRef, doc); err != nil {
				return err
			}
		}

		order := domain.Order{
			ID:            req.OrderID,
			Number:        req.Number,
			OwnerRef:      req.Owner.Ref(),
			OwnerKind:     req.Owner.Kind,
			Contact:       req.Contact,
			Lines:         orderLines,
			Currency:      currency,
			DiscountCode:  discountCode,
			Totals:        totals,
			Status:        domain.OrderStatusPending,
			PaymentStatus: domain.PaymentStatusUnpaid,
			PlacedAt:      now,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(orderRef, newOrderDocument(order)); err != nil {
			return err
		}
		committed = order
		return nil
	}, pfirestore.WithTxAttempts(r.txAttempts), pfirestore.WithTxTimeout(r.txTimeout))
	if txErr != nil {
		return domain.Order{}, txErr
	}
	return committed, nil
}

// FindByID fetches one order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order find: id is required")
	}
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List pages through orders, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.orders == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	if pageSize > pagination.DefaultMaxPageSize {
		pageSize = pagination.DefaultMaxPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	var startAfter []any
	if !cursor.IsZero() {
		if len(cursor.StartAfter) != 2 {
			return domain.CursorPage[domain.Order]{}, pagination.ErrInvalidPageToken
		}
		raw, _ := cursor.StartAfter[0].(string)
		placedAt, parseErr := time.Parse(time.RFC3339Nano, raw)
		if parseErr != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, parseErr)
		}
		startAfter = []any{placedAt, cursor.StartAfter[1]}
	}

	docs, err := r.orders.Query(ctx, func(query firestore.Query) firestore.Query {
		if filter.OwnerRef != "" {
			query = query.Where("ownerRef", "==", filter.OwnerRef)
		}
		if filter.Email != "" {
			query = query.Where("contact.email", "==", filter.Email)
		}
		if len(filter.Status) > 0 {
			statuses := make([]string, len(filter.Status))
			for i, status := range filter.Status {
				statuses[i] = string(status)
			}
			query = query.Where("status", "in", statuses)
		}
		query = query.
			OrderBy("placedAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc).
			Limit(pageSize + 1)
		if startAfter != nil {
			query = query.StartAfter(startAfter...)
		}
		return query
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}

	var nextToken string
	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		nextToken, err = pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.Data.PlacedAt.Format(time.RFC3339Nano), last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
	}

	return domain.CursorPage[domain.Order]{
		Items:         orders,
		NextPageToken: nextToken,
		HasMore:       hasMore,
	}, nil
}

// Update applies a mutation to the order inside a transaction so concurrent
// transitions cannot both pass the state machine checks.
func (r *OrderRepository) Update(ctx context.Context, orderID string, apply repositories.OrderMutator) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order update: id is required")
	}
	if apply == nil {
		return domain.Order{}, errors.New("order update: mutator is required")
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.Doc(ctx, orderID)
		if err != nil {
			return err
		}
		doc, err := r.orders.GetTx(ctx, tx, orderID)
		if err != nil {
			return err
		}

		next, err := apply(doc.Data.toDomain(doc.ID))
		if err != nil {
			return err
		}
		if err := tx.Set(ref, newOrderDocument(next)); err != nil {
			return err
		}
		updated = next
		return nil
	}, pfirestore.WithTxAttempts(r.txAttempts), pfirestore.WithTxTimeout(r.txTimeout))
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}
