package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	authmw "libreria/internal/auth/middleware"
	"libreria/internal/order"
	ordersvc "libreria/internal/order/service"
	"libreria/internal/transport/shared"
	"libreria/pkg/domain"
	dErrors "libreria/pkg/domain-errors"
)

// Service is the slice of the order service the handler consumes.
type Service interface {
	Draft(ctx context.Context, actor ordersvc.Actor) (*order.Order, error)
	AddItems(ctx context.Context, actor ordersvc.Actor, orderID domain.OrderID, adds []ordersvc.AddItem) (*order.Order, error)
	RemoveItem(ctx context.Context, actor ordersvc.Actor, orderID domain.OrderID, itemID domain.ItemID) (*order.Order, error)
	AttachProof(ctx context.Context, actor ordersvc.Actor, orderID domain.OrderID, proofRef string) (*order.Order, error)
	Resolve(ctx context.Context, actor ordersvc.Actor, orderID domain.OrderID, target order.Status) (*order.Order, error)
	ListForActor(ctx context.Context, actor ordersvc.Actor) ([]*order.Order, error)
}

// Handler exposes the cart and order endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates the order Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the order routes. The session gate and CSRF gate are
// applied by the caller so they can be shared with the auth routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/orders", h.handleList)
	r.Get("/orders/my-draft", h.handleDraft)
	r.Post("/orders/{orderID}/items", h.handleAddItems)
	r.Delete("/orders/{orderID}/items/{itemID}", h.handleRemoveItem)
	r.Post("/orders/{orderID}/proof", h.handleAttachProof)
	r.With(authmw.RequireStaff(h.logger)).Patch("/orders/{orderID}", h.handleResolve)
}

func (h *Handler) handleDraft(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	o, err := h.service.Draft(r.Context(), actor)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toOrderResponse(o))
}

type addItemRequest struct {
	BookID   string `json:"book_id"`
	Quantity int    `json:"quantity"`
}

type addItemsRequest struct {
	Items []addItemRequest `json:"items"`
}

func (h *Handler) handleAddItems(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	orderID, err := domain.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req addItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	adds := make([]ordersvc.AddItem, 0, len(req.Items))
	for _, item := range req.Items {
		bookID, err := domain.ParseBookID(item.BookID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		adds = append(adds, ordersvc.AddItem{BookID: bookID, Quantity: item.Quantity})
	}

	o, err := h.service.AddItems(r.Context(), actor, orderID, adds)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	orderID, err := domain.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	itemID, err := domain.ParseItemID(chi.URLParam(r, "itemID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	o, err := h.service.RemoveItem(r.Context(), actor, orderID, itemID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toOrderResponse(o))
}

type attachProofRequest struct {
	ProofRef string `json:"proof_ref"`
}

func (h *Handler) handleAttachProof(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	orderID, err := domain.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req attachProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	o, err := h.service.AttachProof(r.Context(), actor, orderID, req.ProofRef)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toOrderResponse(o))
}

type resolveRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	orderID, err := domain.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	target, err := order.ParseResolution(req.Status)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	o, err := h.service.Resolve(r.Context(), actor, orderID, target)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	orders, err := h.service.ListForActor(r.Context(), actor)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (ordersvc.Actor, bool) {
	user := authmw.GetUser(r.Context())
	if user == nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return ordersvc.Actor{}, false
	}
	return ordersvc.Actor{UserID: user.ID, IsStaff: user.IsStaff}, true
}

type itemResponse struct {
	ID        string `json:"id"`
	BookID    string `json:"book_id"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}

type orderResponse struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Status    string         `json:"status"`
	Items     []itemResponse `json:"items"`
	Total     int64          `json:"total"`
	ProofRef  string         `json:"proof_ref,omitempty"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]itemResponse, 0, len(o.Items))
	for i := range o.Items {
		item := &o.Items[i]
		items = append(items, itemResponse{
			ID:        item.ID.String(),
			BookID:    item.BookID.String(),
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Subtotal:  item.Subtotal(),
		})
	}
	return orderResponse{
		ID:        o.ID.String(),
		UserID:    o.UserID.String(),
		Status:    string(o.Status),
		Items:     items,
		Total:     o.Total,
		ProofRef:  o.ProofRef,
		CreatedAt: o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
