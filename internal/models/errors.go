package models

import "errors"

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyProcessed is returned when a write group touches an item that
	// a concurrent delivery has already marked processed. Nothing is written.
	ErrAlreadyProcessed = errors.New("item already processed")
)
