// Package blocksource reads block hashes and transaction ids from a chain.
// Both reads are polled; callers treat every failure as "try again later".
package blocksource

import (
	"context"
	"errors"
	"fmt"
)

// ErrBlockNotFound means the requested block has not been mined yet.
var ErrBlockNotFound = errors.New("block not found")

// Source is the block data contract used by round resolution.
type Source interface {
	BlockHashAtHeight(ctx context.Context, height int64) (string, error)
	TransactionIDsForBlock(ctx context.Context, hash string) ([]string, error)
}

// UpstreamError is a failure of the data source itself, distinct from the
// block not existing yet.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("block source %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func upstream(op string, err error) error {
	return &UpstreamError{Op: op, Err: err}
}
