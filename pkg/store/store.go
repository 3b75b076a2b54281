package store

import (
	"context"
	"errors"

	"pawmatch/pkg/domain"
)

var (
	// ErrDuplicateSwipe reports that a Swipe already exists for the
	// (user, pet) pair. The first decision is authoritative; callers treat
	// this as a normal outcome, not a fault.
	ErrDuplicateSwipe = errors.New("swipe already recorded for this user and pet")

	// ErrConsistency reports that a uniqueness invariant failed despite the
	// store's constraint, e.g. a conflicting insert whose winning row cannot
	// be read back. It signals a bug and is never swallowed.
	ErrConsistency = errors.New("store consistency violation")
)

// Store is the persistence boundary of the swipe core. Implementations must
// enforce one-row-per-(user,pet) for both swipes and matches at the
// constraint level, so concurrent writers race on the store, not in
// application code.
type Store interface {
	SavePet(ctx context.Context, p domain.Pet) error
	GetPet(ctx context.Context, id string) (domain.Pet, bool, error)
	AppendPetPhoto(ctx context.Context, petID, photoKey string) error
	// ListAdoptablePets returns available pets the given user has not swiped
	// on yet (set subtraction against the user's swipe history).
	ListAdoptablePets(ctx context.Context, userID string) ([]domain.Pet, error)

	SaveUser(ctx context.Context, u domain.AppUser) error
	GetUser(ctx context.Context, id string) (domain.AppUser, bool, error)

	// CreateSwipe persists a swipe, returning ErrDuplicateSwipe when the
	// (user, pet) pair is already decided.
	CreateSwipe(ctx context.Context, s domain.Swipe) error
	GetSwipe(ctx context.Context, userID, petID string) (domain.Swipe, bool, error)
	ListSwipedPetIDs(ctx context.Context, userID string) ([]string, error)

	// CreateMatchIfAbsent inserts the match unless one already exists for
	// the pair; the returned bool reports whether a new row was created.
	// On conflict the pre-existing match is returned instead.
	CreateMatchIfAbsent(ctx context.Context, m domain.Match) (domain.Match, bool, error)
	GetMatch(ctx context.Context, userID, petID string) (domain.Match, bool, error)
	ListMatchesByUser(ctx context.Context, userID string) ([]domain.Match, error)
}
