package domain

import (
	"github.com/google/uuid"

	dErrors "libreria/pkg/domain-errors"
)

// Typed IDs keep user, session, order and item identifiers from being mixed
// up at compile time. Construct from external input via the Parse helpers;
// direct casting bypasses validation.
type (
	UserID    uuid.UUID
	SessionID uuid.UUID
	OrderID   uuid.UUID
	ItemID    uuid.UUID
	BookID    uuid.UUID
)

func parseUUID(s string, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be nil")
	}
	return u, nil
}

// ParseUserID validates and returns a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

// ParseSessionID validates and returns a SessionID.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session id")
	return SessionID(u), err
}

// ParseOrderID validates and returns an OrderID.
func ParseOrderID(s string) (OrderID, error) {
	u, err := parseUUID(s, "order id")
	return OrderID(u), err
}

// ParseItemID validates and returns an ItemID.
func ParseItemID(s string) (ItemID, error) {
	u, err := parseUUID(s, "item id")
	return ItemID(u), err
}

// ParseBookID validates and returns a BookID.
func ParseBookID(s string) (BookID, error) {
	u, err := parseUUID(s, "book id")
	return BookID(u), err
}

func (id UserID) String() string    { return uuid.UUID(id).String() }
func (id SessionID) String() string { return uuid.UUID(id).String() }
func (id OrderID) String() string   { return uuid.UUID(id).String() }
func (id ItemID) String() string    { return uuid.UUID(id).String() }
func (id BookID) String() string    { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id OrderID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ItemID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id BookID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
