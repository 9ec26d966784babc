package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the service wraps exactly one of these.
var (
	// ErrNotFound marks a missing match, question, player or reward.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists marks a create-only write that hit an existing record.
	ErrAlreadyExists = errors.New("already exists")
	// ErrFailedPrecondition marks missing input or a record in the wrong state.
	ErrFailedPrecondition = errors.New("failed precondition")
	// ErrInternal marks an unexpected store or transport failure.
	ErrInternal = errors.New("internal")
)

var (
	// ErrMatchNotFound is returned when a match id does not resolve.
	ErrMatchNotFound = fmt.Errorf("match %w", ErrNotFound)
	// ErrQuestionNotFound is returned when a question key does not resolve.
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	// ErrChoicesNotFound is returned when a question has no choices for a locale or none is marked correct.
	ErrChoicesNotFound = fmt.Errorf("question choices %w", ErrNotFound)
	// ErrPlayerNotFound is returned when a player profile or match player record is missing.
	ErrPlayerNotFound = fmt.Errorf("player %w", ErrNotFound)
	// ErrRewardNotFound is returned when a match has no reward configured for a locale.
	ErrRewardNotFound = fmt.Errorf("reward %w", ErrNotFound)
	// ErrAnswerExists is returned when a player answers the same question twice.
	ErrAnswerExists = fmt.Errorf("answer %w", ErrAlreadyExists)
	// ErrMatchExists is returned when scheduling a match id that is already taken.
	ErrMatchExists = fmt.Errorf("match %w", ErrAlreadyExists)
	// ErrNotSubscribed is returned when a player answers a match they never joined.
	ErrNotSubscribed = fmt.Errorf("player not subscribed to match: %w", ErrFailedPrecondition)
	// ErrLeaseLost is returned when another runner took over a match.
	ErrLeaseLost = fmt.Errorf("match lease lost: %w", ErrFailedPrecondition)
	// ErrInvalidRating is returned when a rating is outside 1..5.
	ErrInvalidRating = fmt.Errorf("rating must be between 1 and 5: %w", ErrFailedPrecondition)
)

// MissingInput reports a required caller field that was left empty.
func MissingInput(field string) error {
	return fmt.Errorf("missing %s: %w", field, ErrFailedPrecondition)
}

// Internal wraps an unexpected failure of op so it classifies as ErrInternal.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, errors.Join(ErrInternal, err))
}

// Kind identifies the class of an error.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindAlreadyExists      Kind = "already_exists"
	KindFailedPrecondition Kind = "failed_precondition"
	KindInternal           Kind = "internal"
)

// KindOf classifies err. Anything not wrapping a known kind is internal.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ErrFailedPrecondition):
		return KindFailedPrecondition
	default:
		return KindInternal
	}
}
