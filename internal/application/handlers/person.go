package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/services"
)

// BirthDateLayout is the accepted birth date format.
const BirthDateLayout = "2006-01-02"

// PersonHandler handles person registration and lookup.
type PersonHandler struct {
	service *services.PersonService
}

// NewPersonHandler creates a new PersonHandler.
func NewPersonHandler(service *services.PersonService) *PersonHandler {
	return &PersonHandler{service: service}
}

// HandleAdd registers a person. Gender and birth date may be empty.
func (h *PersonHandler) HandleAdd(ctx context.Context, name, gender, birthDate string) (*entities.Person, error) {
	birth, err := parseBirthDate(birthDate)
	if err != nil {
		return nil, err
	}
	return h.service.Add(ctx, name, entities.ParseGender(gender), birth)
}

// HandleList lists persons ordered by name.
func (h *PersonHandler) HandleList(ctx context.Context, limit, offset int) ([]*entities.Person, error) {
	return h.service.List(ctx, limit, offset)
}

// HandleResolve finds a person by ID or name.
func (h *PersonHandler) HandleResolve(ctx context.Context, ref string) (*entities.Person, error) {
	return h.service.Resolve(ctx, ref)
}

func parseBirthDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(BirthDateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid birth date %q (expected YYYY-MM-DD)", s)
	}
	return &t, nil
}
