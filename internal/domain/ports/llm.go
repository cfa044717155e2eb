// Package ports defines interfaces for external service communication.
package ports

import (
	"context"

	"github.com/ersonp/kin-core/internal/domain/entities"
)

// RelationshipGuesser is an optional natural-language inference collaborator.
// Its output is advisory and is re-validated before use.
type RelationshipGuesser interface {
	// Infer guesses how a relates to b ("a is the Code of b").
	Infer(ctx context.Context, a, b *entities.Person) (*Guess, error)
}

// Guess is the answer of a RelationshipGuesser. An empty Code means no guess.
type Guess struct {
	Code       entities.RelationType `json:"code"`
	Confidence float64               `json:"confidence"`
	Reasoning  string                `json:"reasoning"`
}
