package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libreria/internal/auth"
	"libreria/internal/catalog"
	ordersvc "libreria/internal/order/service"
	orderstore "libreria/internal/order/store"
	"libreria/pkg/domain"
	"libreria/pkg/testutil"
)

type harness struct {
	router http.Handler
	books  *catalog.InMemory
	buyer  *auth.User
	staff  *auth.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	books := catalog.NewInMemory()
	svc := ordersvc.New(orderstore.NewInMemory(), books)

	r := chi.NewRouter()
	New(svc, log).Register(r)

	return &harness{
		router: r,
		books:  books,
		buyer:  &auth.User{ID: domain.UserID(uuid.New()), Username: "ana"},
		staff:  &auth.User{ID: domain.UserID(uuid.New()), Username: "admin", IsStaff: true},
	}
}

func (h *harness) draftID(t *testing.T) string {
	t.Helper()
	req := testutil.WithUser(testutil.NewRequest(t, http.MethodGet, "/orders/my-draft"), h.buyer)
	rr := testutil.DoRequest(h.router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[struct {
		ID string `json:"id"`
	}](t, rr)
	return resp.ID
}

func TestHandler_Draft(t *testing.T) {
	h := newHarness(t)

	testutil.Given(t, "an authenticated buyer", func(t *testing.T) {
		testutil.When(t, "fetching the draft twice", func(t *testing.T) {
			first := h.draftID(t)
			second := h.draftID(t)

			testutil.Then(t, "both calls return the same cart", func(t *testing.T) {
				assert.Equal(t, first, second)
			})
		})
	})
}

func TestHandler_AddItems_BadInput(t *testing.T) {
	h := newHarness(t)
	draftID := h.draftID(t)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"malformed json", "{", http.StatusBadRequest, "bad_request"},
		{"bad book id", map[string]any{"items": []map[string]any{{"book_id": "nope", "quantity": 1}}}, http.StatusBadRequest, "invalid_input"},
		{"unknown book", map[string]any{"items": []map[string]any{{"book_id": uuid.NewString(), "quantity": 1}}}, http.StatusBadRequest, "validation_failed"},
		{"no items", map[string]any{"items": []map[string]any{}}, http.StatusBadRequest, "validation_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if s, ok := tt.body.(string); ok {
				req = testutil.NewJSONRequest(t, http.MethodPost, "/orders/"+draftID+"/items", nil)
				req.Body = io.NopCloser(strings.NewReader(s))
			} else {
				req = testutil.NewJSONRequest(t, http.MethodPost, "/orders/"+draftID+"/items", tt.body)
			}
			rr := testutil.DoRequest(h.router, testutil.WithUser(req, h.buyer))
			testutil.AssertStatusAndError(t, rr, tt.status, tt.code)
		})
	}
}

func TestHandler_AddAndRemoveItem(t *testing.T) {
	h := newHarness(t)
	draftID := h.draftID(t)

	bookID := domain.BookID(uuid.New())
	require.NoError(t, h.books.Put(context.Background(), &catalog.Book{
		ID:     bookID,
		Title:  "Ficciones",
		Author: "Borges",
		Price:  1500,
	}))

	req := testutil.NewJSONRequest(t, http.MethodPost, "/orders/"+draftID+"/items", map[string]any{
		"items": []map[string]any{{"book_id": bookID.String(), "quantity": 2}},
	})
	rr := testutil.DoRequest(h.router, testutil.WithUser(req, h.buyer))
	testutil.AssertStatus(t, rr, http.StatusOK)

	resp := testutil.UnmarshalResponse[struct {
		Items []struct {
			ID       string `json:"id"`
			Subtotal int64  `json:"subtotal"`
		} `json:"items"`
		Total int64 `json:"total"`
	}](t, rr)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(3000), resp.Items[0].Subtotal)
	assert.Equal(t, int64(3000), resp.Total)

	req = testutil.WithUser(testutil.NewRequest(t, http.MethodDelete, "/orders/"+draftID+"/items/"+resp.Items[0].ID), h.buyer)
	rr = testutil.DoRequest(h.router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	emptied := testutil.UnmarshalResponse[struct {
		Total int64 `json:"total"`
	}](t, rr)
	assert.Zero(t, emptied.Total)
}

func TestHandler_ResolveRequiresStaff(t *testing.T) {
	h := newHarness(t)
	draftID := h.draftID(t)

	req := testutil.NewJSONRequest(t, http.MethodPatch, "/orders/"+draftID, map[string]string{"status": "ACCEPTED"})
	rr := testutil.DoRequest(h.router, testutil.WithUser(req, h.buyer))
	testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
}

func TestHandler_ResolveValidatesStatus(t *testing.T) {
	h := newHarness(t)
	draftID := h.draftID(t)

	req := testutil.NewJSONRequest(t, http.MethodPatch, "/orders/"+draftID, map[string]string{"status": "SHIPPED"})
	rr := testutil.DoRequest(h.router, testutil.WithUser(req, h.staff))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_failed")
}

func TestHandler_MissingUserContext(t *testing.T) {
	h := newHarness(t)

	// Mounted without the session gate the handler still fails closed.
	req := testutil.NewRequest(t, http.MethodGet, "/orders/my-draft")
	rr := testutil.DoRequest(h.router, req)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

