package domain

import "github.com/pkg/errors"

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateIdentity = errors.New("record already exists")
	ErrVersionConflict   = errors.New("version conflict")
	ErrMalformedToken    = errors.New("malformed concurrency token")
	ErrInsufficientStock = errors.New("insufficient stock")

	ErrInvalidPayload   = errors.New("invalid payload")
	ErrInvalidQuantity  = errors.New("quantity must be a positive number")
	ErrDuplicateRequest = errors.New("duplicate request")
)
