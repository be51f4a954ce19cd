// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/codesight-dev/codesight/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Repository persists finished assessment sessions.
type Repository interface {
	// SaveSubmission writes a finalized submission with its intervention
	// history and signal ledger in one transaction.
	SaveSubmission(ctx context.Context, sub *domain.Submission) error

	// GetSubmission retrieves a submission by session ID. Returns
	// ErrNotFound when the session was never submitted.
	GetSubmission(ctx context.Context, sessionID string) (*domain.Submission, error)

	// ListSessionIDs returns the submitted session IDs for a candidate,
	// most recent first.
	ListSessionIDs(ctx context.Context, candidateID string) ([]string, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
