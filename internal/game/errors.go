package game

import (
	"errors"
	"fmt"
)

// Class groups refusals so callers can render them without knowing every reason.
type Class int

const (
	ClassValidation Class = iota + 1
	ClassPrecondition
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassPrecondition:
		return "precondition"
	default:
		return "unknown"
	}
}

// Class sentinels, matched with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrPrecondition = errors.New("precondition failed")
)

// Reasons.
var (
	ErrInvalidDuration      = errors.New("duration must be positive")
	ErrInvalidGuessValue    = errors.New("guess out of range")
	ErrInvalidTarget        = errors.New("target block must not be negative")
	ErrMissingUser          = errors.New("user id is required")
	ErrEmptyMessage         = errors.New("message text is empty")
	ErrInvalidPrize         = errors.New("prize amounts must not be negative")
	ErrRoundNotFound        = errors.New("round not found")
	ErrRoundNotOpen         = errors.New("round is not open")
	ErrRoundExpired         = errors.New("round has expired")
	ErrDuplicateGuess       = errors.New("user already guessed in this round")
	ErrRoundAlreadyOpen     = errors.New("another round is already open")
	ErrRoundAlreadyFinished = errors.New("round is already finished")
)

// RefusalError is returned by reducers when a request is rejected before any
// table is touched.
type RefusalError struct {
	Class   Class
	Reason  error
	RoundID uint64
	Detail  string
}

func (e *RefusalError) Error() string {
	msg := e.Reason.Error()
	if e.RoundID != 0 {
		msg = fmt.Sprintf("round %d: %s", e.RoundID, msg)
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *RefusalError) Unwrap() error { return e.Reason }

// Is matches the class sentinel in addition to the wrapped reason.
func (e *RefusalError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Class == ClassValidation
	case ErrPrecondition:
		return e.Class == ClassPrecondition
	}
	return false
}

func invalid(reason error, detail string) error {
	return &RefusalError{Class: ClassValidation, Reason: reason, Detail: detail}
}

func refuse(reason error, roundID uint64) error {
	return &RefusalError{Class: ClassPrecondition, Reason: reason, RoundID: roundID}
}

// IsRefusal reports whether err is a typed refusal and returns it.
func IsRefusal(err error) (*RefusalError, bool) {
	var r *RefusalError
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
