package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/ports"
)

// PersonService manages the person registry.
type PersonService struct {
	relationalDB ports.RelationalDB
}

// NewPersonService creates a new PersonService.
func NewPersonService(relationalDB ports.RelationalDB) *PersonService {
	return &PersonService{
		relationalDB: relationalDB,
	}
}

// Add registers a new person. Names are unique, case-insensitively.
func (s *PersonService) Add(ctx context.Context, name string, gender entities.Gender, birthDate *time.Time) (*entities.Person, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	existing, err := s.relationalDB.FindPersonByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("finding person: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s (id: %s)", entities.ErrDuplicatePerson, name, existing.ID)
	}
	return s.create(ctx, name, gender, birthDate)
}

// FindOrCreate finds a person by name or creates it if not found. A found
// person's unknown gender and missing birth date are filled in; declared
// values are never overwritten.
func (s *PersonService) FindOrCreate(ctx context.Context, name string, gender entities.Gender, birthDate *time.Time) (*entities.Person, bool, error) {
	p, err := s.relationalDB.FindPersonByName(ctx, name)
	if err != nil {
		return nil, false, fmt.Errorf("finding person %q: %w", name, err)
	}
	if p == nil {
		p, err = s.create(ctx, strings.TrimSpace(name), gender, birthDate)
		return p, err == nil, err
	}

	changed := false
	if !p.Gender.Known() && gender.Known() {
		p.Gender = gender
		changed = true
	}
	if p.BirthDate == nil && birthDate != nil {
		p.BirthDate = birthDate
		changed = true
	}
	if changed {
		if err := s.relationalDB.SavePerson(ctx, p); err != nil {
			return nil, false, fmt.Errorf("updating person %q: %w", name, err)
		}
	}
	return p, false, nil
}

// Resolve finds a person by ID, falling back to name.
func (s *PersonService) Resolve(ctx context.Context, ref string) (*entities.Person, error) {
	p, err := s.relationalDB.FindPersonByID(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("finding person: %w", err)
	}
	if p != nil {
		return p, nil
	}
	p, err = s.relationalDB.FindPersonByName(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("finding person: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", entities.ErrPersonNotFound, ref)
	}
	return p, nil
}

// FindByIDs returns the persons with the given ids, keyed by id.
func (s *PersonService) FindByIDs(ctx context.Context, ids []string) (map[string]*entities.Person, error) {
	persons, err := s.relationalDB.FindPersonsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("finding persons: %w", err)
	}
	out := make(map[string]*entities.Person, len(persons))
	for _, p := range persons {
		out[p.ID] = p
	}
	return out, nil
}

// List returns persons with pagination.
func (s *PersonService) List(ctx context.Context, limit, offset int) ([]*entities.Person, error) {
	return s.relationalDB.ListPersons(ctx, limit, offset)
}

func (s *PersonService) create(ctx context.Context, name string, gender entities.Gender, birthDate *time.Time) (*entities.Person, error) {
	if gender == "" {
		gender = entities.GenderUnknown
	}
	p := &entities.Person{
		ID:             uuid.New().String(),
		Name:           name,
		NormalizedName: entities.NormalizeName(name),
		Gender:         gender,
		BirthDate:      birthDate,
		CreatedAt:      timeNow(),
	}
	if err := s.relationalDB.SavePerson(ctx, p); err != nil {
		return nil, fmt.Errorf("saving person: %w", err)
	}
	return p, nil
}
