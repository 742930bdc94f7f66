// Package catalog is the read-side the order service prices items against.
// Catalog management (create/update, covers, genres) lives elsewhere; orders
// only ever need to resolve a book to its current price.
package catalog

import "libreria/pkg/domain"

// Book is the priced catalog entry.
type Book struct {
	ID     domain.BookID
	Title  string
	Author string
	ISBN   string
	// Price is in cents. Prices captured onto order items at add time do
	// not change when this value changes.
	Price int64
	// SalesCount is the running total of units sold across accepted
	// orders.
	SalesCount int64
}
