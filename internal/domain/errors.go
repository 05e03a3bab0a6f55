package domain

import "errors"

var (
	// ErrInvalidCategory is returned when a category triple is outside the
	// taxonomy bounds. Rejected before any state is touched.
	ErrInvalidCategory = errors.New("invalid category")

	// ErrInvalidAmount is returned for a non-positive quantity.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidPrice is returned for a non-positive unit price.
	ErrInvalidPrice = errors.New("invalid unit price")

	// ErrInvalidType is returned for an unknown enquiry type.
	ErrInvalidType = errors.New("invalid enquiry type")

	// ErrNotFound is returned when an enquiry id does not exist.
	ErrNotFound = errors.New("enquiry not found")

	// ErrNotOwner is returned when an enquiry exists but belongs to a
	// different player.
	ErrNotOwner = errors.New("enquiry owned by another player")

	// ErrEnquiryLimit is returned when a player has reached the cap on
	// concurrently open enquiries.
	ErrEnquiryLimit = errors.New("enquiry limit reached")

	// ErrRankOutOfRange is returned by the k-th order statistics queries
	// when k exceeds the cell size.
	ErrRankOutOfRange = errors.New("rank out of range")

	// ErrHourSaturated is returned when a record hour holds as many raw
	// events as it has offset keys and another one cannot be placed.
	ErrHourSaturated = errors.New("record hour saturated")
)

// ValidationError wraps a rejection that happened at the boundary, before
// any mutation, together with the offending field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return "validation failed [" + e.Field + "]: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed ledger flush or snapshot write. The
// in-memory state stays authoritative; the affected leaf remains dirty.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return "persistence failed [" + e.Path + "]: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
