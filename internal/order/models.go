package order

import (
	"time"

	"libreria/pkg/domain"
	dErrors "libreria/pkg/domain-errors"
)

// Status is the order lifecycle state. An order starts as the owner's cart
// (DRAFT), is submitted with proof of payment, and is then resolved by an
// administrator. ACCEPTED and REJECTED are terminal.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusAccepted  Status = "ACCEPTED"
	StatusRejected  Status = "REJECTED"
)

// Terminal reports whether no further transition exists.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// ParseResolution validates an admin-supplied target status. Only the two
// terminal states are legal resolutions.
func ParseResolution(s string) (Status, error) {
	switch Status(s) {
	case StatusAccepted, StatusRejected:
		return Status(s), nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "status must be ACCEPTED or REJECTED")
	}
}

// Item is one line of an order. UnitPrice is captured in cents at the moment
// of addition and never recomputed, so historical orders keep the price paid.
type Item struct {
	ID        domain.ItemID
	BookID    domain.BookID
	UnitPrice int64
	Quantity  int
}

// Subtotal returns price times quantity.
func (i *Item) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// Order doubles as cart (DRAFT) and purchase record (everything after).
// Version implements optimistic locking: every Update must carry the
// version it loaded, and the store rejects stale writers so two clients
// mutating one cart cannot erase each other's items.
type Order struct {
	ID        domain.OrderID
	UserID    domain.UserID
	Items     []Item
	Status    Status
	Total     int64
	ProofRef  string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecomputeTotal derives Total from the items. The stored total is always
// server-computed; client-supplied totals are never trusted.
func (o *Order) RecomputeTotal() {
	var total int64
	for i := range o.Items {
		total += o.Items[i].Subtotal()
	}
	o.Total = total
}

// ItemByBook returns the item holding the given book, or nil.
func (o *Order) ItemByBook(bookID domain.BookID) *Item {
	for i := range o.Items {
		if o.Items[i].BookID == bookID {
			return &o.Items[i]
		}
	}
	return nil
}

// RemoveItemByID deletes the item in place; reports whether it was present.
func (o *Order) RemoveItemByID(itemID domain.ItemID) bool {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			o.Items = append(o.Items[:i], o.Items[i+1:]...)
			return true
		}
	}
	return false
}
