package ports

import (
	"context"

	"github.com/ersonp/kin-core/internal/domain/entities"
)

// Profiles reads person records owned by the profile collaborator.
type Profiles interface {
	// FindPersonByID finds a person by ID. Returns nil if not found.
	FindPersonByID(ctx context.Context, id string) (*entities.Person, error)
}

// GenderGuesser is a heuristic of last resort for people without a declared gender.
// Its answer only picks a tentative label; it is never stored as the person's gender.
type GenderGuesser interface {
	GuessGender(name string) entities.Gender
}
