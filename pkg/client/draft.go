package client

import (
	"context"
	"fmt"
	"net/http"
)

// DraftItem is one line of the draft as the origin reports it.
type DraftItem struct {
	ID        string `json:"id"`
	BookID    string `json:"book_id"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}

// Order mirrors the origin's order representation.
type Order struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Status    string      `json:"status"`
	Items     []DraftItem `json:"items"`
	Total     int64       `json:"total"`
	ProofRef  string      `json:"proof_ref,omitempty"`
	CreatedAt string      `json:"created_at"`
	UpdatedAt string      `json:"updated_at"`
}

// HasBook reports whether the order already carries the given book.
func (o *Order) HasBook(bookID string) bool {
	for _, item := range o.Items {
		if item.BookID == bookID {
			return true
		}
	}
	return false
}

// DraftManager drives the cart through the relay. It holds no local cart
// state: every mutation re-fetches the current draft first, so a draft
// submitted or replaced from another device is picked up instead of mutated
// blindly. The origin stays authoritative; there is no cross-client locking.
type DraftManager struct {
	client *Client
}

// NewDraftManager builds a manager over the given client.
func NewDraftManager(c *Client) *DraftManager {
	return &DraftManager{client: c}
}

// Draft returns the caller's current draft, creating one on the origin if
// absent.
func (m *DraftManager) Draft(ctx context.Context) (*Order, error) {
	var o Order
	if err := m.client.do(ctx, http.MethodGet, "/api/orders/my-draft", nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

type addItemsRequest struct {
	Items []addItemEntry `json:"items"`
}

type addItemEntry struct {
	BookID   string `json:"book_id"`
	Quantity int    `json:"quantity"`
}

// AddItem adds a book to the draft. The freshly fetched draft is checked
// first: a book already present is rejected with ErrDuplicateItem before any
// mutation is sent. On success the reloaded draft is returned.
func (m *DraftManager) AddItem(ctx context.Context, bookID string, quantity int) (*Order, error) {
	draft, err := m.Draft(ctx)
	if err != nil {
		return nil, err
	}
	if draft.HasBook(bookID) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, bookID)
	}

	req := addItemsRequest{Items: []addItemEntry{{BookID: bookID, Quantity: quantity}}}
	path := fmt.Sprintf("/api/orders/%s/items", draft.ID)
	if err := m.client.do(ctx, http.MethodPost, path, req, nil); err != nil {
		return nil, err
	}
	return m.Draft(ctx)
}

// RemoveItem deletes one line from the draft and returns the reloaded draft.
func (m *DraftManager) RemoveItem(ctx context.Context, itemID string) (*Order, error) {
	draft, err := m.Draft(ctx)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/api/orders/%s/items/%s", draft.ID, itemID)
	if err := m.client.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return nil, err
	}
	return m.Draft(ctx)
}

type attachProofRequest struct {
	ProofRef string `json:"proof_ref"`
}

// SubmitProof attaches proof of payment to the current draft, submitting it.
// The returned order is in SUBMITTED state; the next Draft call starts a
// fresh cart.
func (m *DraftManager) SubmitProof(ctx context.Context, proofRef string) (*Order, error) {
	draft, err := m.Draft(ctx)
	if err != nil {
		return nil, err
	}
	var o Order
	path := fmt.Sprintf("/api/orders/%s/proof", draft.ID)
	if err := m.client.do(ctx, http.MethodPost, path, attachProofRequest{ProofRef: proofRef}, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Orders lists the caller's orders; staff callers get the review queue.
func (m *DraftManager) Orders(ctx context.Context) ([]Order, error) {
	var orders []Order
	if err := m.client.do(ctx, http.MethodGet, "/api/orders", nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

type resolveRequest struct {
	Status string `json:"status"`
}

// Resolve marks a submitted order ACCEPTED or REJECTED. Staff only; the
// origin enforces the privilege.
func (m *DraftManager) Resolve(ctx context.Context, orderID, status string) (*Order, error) {
	var o Order
	path := fmt.Sprintf("/api/orders/%s", orderID)
	if err := m.client.do(ctx, http.MethodPatch, path, resolveRequest{Status: status}, &o); err != nil {
		return nil, err
	}
	return &o, nil
}
