package pagesync

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfRange           = errors.New("page out of range")
	ErrStaleApply           = errors.New("stale remote page")
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrPageCountFixed       = errors.New("page count already set")
	ErrNotController        = errors.New("client is not the controller")
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotImplemented       = errors.New("not implemented")
)

type OutOfRangeError struct {
	Page  int
	Count int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("page %d out of range [0, %d)", e.Page, e.Count)
}

func (e *OutOfRangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// StaleApplyError reports a remote page this client cannot show yet, usually
// because its document has not finished loading.
type StaleApplyError struct {
	Page  int
	Count int
}

func (e *StaleApplyError) Error() string {
	if e.Count == 0 {
		return fmt.Sprintf("remote page %d arrived before document load", e.Page)
	}
	return fmt.Sprintf("remote page %d beyond page count %d", e.Page, e.Count)
}

func (e *StaleApplyError) Is(target error) bool {
	return target == ErrStaleApply
}
