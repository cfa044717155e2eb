package services

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/mocks"
)

// testEnv wires every service against the in-memory store.
type testEnv struct {
	db          *mocks.RelationalDB
	store       *EdgeStore
	validator   *Validator
	deduction   *DeductionService
	requests    *RequestService
	suggestions *SuggestionService
	persons     *PersonService
	repair      *RepairService
	events      *mocks.Publisher
	guesser     *mocks.Guesser
}

type envOption func(*envConfig)

type envConfig struct {
	genders mocks.GenderGuesser
	queue   *mocks.Queue
	async   bool
	guess   *mocks.Guesser
}

func withGenderGuesser(g mocks.GenderGuesser) envOption {
	return func(c *envConfig) { c.genders = g }
}

func withQueue(q *mocks.Queue, async bool) envOption {
	return func(c *envConfig) { c.queue, c.async = q, async }
}

func withRelationshipGuesser(g *mocks.Guesser) envOption {
	return func(c *envConfig) { c.guess = g }
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// useTickingClock makes every timeNow call one second later than the previous.
func useTickingClock(t *testing.T) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ticks atomic.Int64
	orig := timeNow
	timeNow = func() time.Time {
		return base.Add(time.Duration(ticks.Add(1)) * time.Second)
	}
	t.Cleanup(func() { timeNow = orig })
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	useTickingClock(t)

	var cfg envConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	log := quietLogger()
	db := mocks.NewRelationalDB()
	store := NewEdgeStore(db, nil, nil)
	if cfg.genders != nil {
		store = NewEdgeStore(db, nil, cfg.genders)
	}
	validator := NewValidator(DefaultAgeRules(), db)
	deduction := NewDeductionService(store, validator, log)
	events := &mocks.Publisher{}

	reqOpts := []RequestServiceOption{WithEventPublisher(events)}
	if cfg.queue != nil {
		reqOpts = append(reqOpts, WithTaskQueue(cfg.queue, cfg.async))
	}
	requests := NewRequestService(db, store, validator, deduction, log, reqOpts...)

	sugOpts := []SuggestionServiceOption{WithSuggestionEvents(events)}
	if cfg.guess != nil {
		sugOpts = append(sugOpts, WithGuesser(cfg.guess))
	}
	suggestions := NewSuggestionService(db, store, validator, requests, SuggestionConfig{MinConfidence: 0.5}, log, sugOpts...)

	return &testEnv{
		db:          db,
		store:       store,
		validator:   validator,
		deduction:   deduction,
		requests:    requests,
		suggestions: suggestions,
		persons:     NewPersonService(db),
		repair:      NewRepairService(db, store, log),
		events:      events,
		guesser:     cfg.guess,
	}
}

// person registers a person, optionally with a birth year.
func (e *testEnv) person(t *testing.T, name string, gender entities.Gender, birthYear ...int) *entities.Person {
	t.Helper()
	var birth *time.Time
	if len(birthYear) > 0 {
		b := time.Date(birthYear[0], 6, 1, 0, 0, 0, 0, time.UTC)
		birth = &b
	}
	p, err := e.persons.Add(context.Background(), name, gender, birth)
	require.NoError(t, err)
	return p
}

// relate records "a is code of b" through propose and accept.
func (e *testEnv) relate(t *testing.T, a, b *entities.Person, code entities.RelationType) *AcceptResult {
	t.Helper()
	ctx := context.Background()
	req, _, err := e.requests.Propose(ctx, a.ID, b.ID, code)
	require.NoError(t, err)
	res, err := e.requests.Accept(ctx, req.ID, b.ID)
	require.NoError(t, err)
	return res
}

// code returns the label of the edge from a to b, or "" if there is none.
func (e *testEnv) code(t *testing.T, a, b *entities.Person) entities.RelationType {
	t.Helper()
	edge, err := e.db.FindEdge(context.Background(), a.ID, b.ID)
	require.NoError(t, err)
	if edge == nil {
		return ""
	}
	return edge.Type
}

func (e *testEnv) edge(t *testing.T, a, b *entities.Person) *entities.Relationship {
	t.Helper()
	edge, err := e.db.FindEdge(context.Background(), a.ID, b.ID)
	require.NoError(t, err)
	return edge
}

// family is the Ahmed/Fatima household used across tests.
type family struct {
	ahmed, fatima, mohammed, amina, youssef *entities.Person
}

func buildFamily(t *testing.T, e *testEnv) family {
	t.Helper()
	f := family{
		ahmed:    e.person(t, "Ahmed", entities.GenderMale),
		fatima:   e.person(t, "Fatima", entities.GenderFemale),
		mohammed: e.person(t, "Mohammed", entities.GenderMale),
		amina:    e.person(t, "Amina", entities.GenderFemale),
		youssef:  e.person(t, "Youssef", entities.GenderMale),
	}
	e.relate(t, f.ahmed, f.fatima, entities.RelationHusband)
	e.relate(t, f.ahmed, f.mohammed, entities.RelationFather)
	e.relate(t, f.ahmed, f.amina, entities.RelationFather)
	return f
}

// cousins is a two-branch family: G has sons P1 and P2, P2 married W,
// P1 has son C1 and P2 has daughter C2.
type cousins struct {
	g, p1, p2, w, c1, c2 *entities.Person
}

func buildCousins(t *testing.T, e *testEnv) cousins {
	t.Helper()
	c := cousins{
		g:  e.person(t, "Grandpa", entities.GenderMale),
		p1: e.person(t, "Omar", entities.GenderMale),
		p2: e.person(t, "Karim", entities.GenderMale),
		w:  e.person(t, "Layla", entities.GenderFemale),
		c1: e.person(t, "Sami", entities.GenderMale),
		c2: e.person(t, "Nour", entities.GenderFemale),
	}
	e.relate(t, c.g, c.p1, entities.RelationFather)
	e.relate(t, c.g, c.p2, entities.RelationFather)
	e.relate(t, c.p2, c.w, entities.RelationHusband)
	e.relate(t, c.p1, c.c1, entities.RelationFather)
	e.relate(t, c.p2, c.c2, entities.RelationFather)
	return c
}
