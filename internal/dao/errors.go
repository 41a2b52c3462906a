package dao

import (
	"database/sql"
	"errors"
	"fmt"
)

// Data-layer fault taxonomy. The service layer never lets these escape to
// its callers; they are wrapped into a business-level error after rollback.

// RetrievalError indicates a read failure or zero rows on a single-entity get
type RetrievalError struct {
	Resource string
	Err      error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("failed to retrieve %s: %v", e.Resource, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// IsNotFound reports whether the retrieval failed because no rows matched
func (e *RetrievalError) IsNotFound() bool {
	return errors.Is(e.Err, sql.ErrNoRows)
}

// InsertionError indicates a SQL failure on insert or an insert that
// affected zero rows
type InsertionError struct {
	Resource string
	Err      error
}

func (e *InsertionError) Error() string {
	return fmt.Sprintf("failed to store %s: %v", e.Resource, e.Err)
}

func (e *InsertionError) Unwrap() error { return e.Err }

// UpdateError indicates a SQL failure on update or an update that affected
// zero rows
type UpdateError struct {
	Resource string
	Err      error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("failed to update %s: %v", e.Resource, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }

// DeletionError indicates a SQL failure on delete
type DeletionError struct {
	Resource string
	Err      error
}

func (e *DeletionError) Error() string {
	return fmt.Sprintf("failed to delete %s: %v", e.Resource, e.Err)
}

func (e *DeletionError) Unwrap() error { return e.Err }

var (
	errNoRowsAffected         = errors.New("no rows affected")
	errUnknownHistoryCategory = errors.New("unknown history category")
)
