package handlers

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/mocks"
	"github.com/ersonp/kin-core/internal/domain/ports"
	"github.com/ersonp/kin-core/internal/domain/services"
)

// handlerEnv wires every handler against the in-memory store, the way the
// CLI wires them against SQLite.
type handlerEnv struct {
	db          *mocks.RelationalDB
	queue       *mocks.Queue
	persons     *PersonHandler
	relations   *RelationshipHandler
	suggestions *SuggestionHandler
	imports     *ImportHandler
	jobs        *JobHandler
	refresh     *Refresher
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// newHandlerEnv builds an env. A nil queue regenerates suggestions inline.
func newHandlerEnv(t *testing.T, queue *mocks.Queue, async bool) *handlerEnv {
	t.Helper()
	log := quietLogger()
	db := mocks.NewRelationalDB()

	store := services.NewEdgeStore(db, nil, nil)
	validator := services.NewValidator(services.DefaultAgeRules(), db)
	deduction := services.NewDeductionService(store, validator, log)

	var reqOpts []services.RequestServiceOption
	var taskQueue ports.TaskQueue
	if queue != nil {
		taskQueue = queue
		reqOpts = append(reqOpts, services.WithTaskQueue(queue, async))
	}
	requests := services.NewRequestService(db, store, validator, deduction, log, reqOpts...)
	suggestions := services.NewSuggestionService(db, store, validator, requests, services.SuggestionConfig{}, log)
	persons := services.NewPersonService(db)
	repair := services.NewRepairService(db, store, log)
	refresh := NewRefresher(suggestions, taskQueue, log)

	return &handlerEnv{
		db:          db,
		queue:       queue,
		persons:     NewPersonHandler(persons),
		relations:   NewRelationshipHandler(persons, requests, deduction, repair, store, refresh),
		suggestions: NewSuggestionHandler(persons, suggestions),
		imports:     NewImportHandler(services.NewImportService(persons, requests), refresh),
		jobs:        NewJobHandler(deduction, suggestions, log),
		refresh:     refresh,
	}
}

func (e *handlerEnv) add(t *testing.T, name, gender string) *entities.Person {
	t.Helper()
	p, err := e.persons.HandleAdd(t.Context(), name, gender, "")
	require.NoError(t, err)
	return p
}

// relate proposes "a is relation of b" by name and accepts it as b.
func (e *handlerEnv) relate(t *testing.T, a, relation, b string) *services.AcceptResult {
	t.Helper()
	proposed, err := e.relations.HandlePropose(t.Context(), a, relation, b)
	require.NoError(t, err)
	result, err := e.relations.HandleAccept(t.Context(), proposed.Request.ID, b)
	require.NoError(t, err)
	return result
}

// code returns the code of the edge from a to b, or "" when there is none.
func (e *handlerEnv) code(t *testing.T, a, b *entities.Person) entities.RelationType {
	t.Helper()
	edge, err := e.db.FindEdge(t.Context(), a.ID, b.ID)
	require.NoError(t, err)
	if edge == nil {
		return ""
	}
	return edge.Type
}

// buildCousins registers two branches under one grandfather: Omar and Karim are
// his sons, Karim married Layla, Omar's son is Sami and Karim's daughter is Nour.
func (e *handlerEnv) buildCousins(t *testing.T) map[string]*entities.Person {
	t.Helper()
	people := map[string]*entities.Person{
		"Grandpa": e.add(t, "Grandpa", "male"),
		"Omar":    e.add(t, "Omar", "male"),
		"Karim":   e.add(t, "Karim", "male"),
		"Layla":   e.add(t, "Layla", "female"),
		"Sami":    e.add(t, "Sami", "male"),
		"Nour":    e.add(t, "Nour", "female"),
	}
	e.relate(t, "Grandpa", "father", "Omar")
	e.relate(t, "Grandpa", "father", "Karim")
	e.relate(t, "Karim", "husband", "Layla")
	e.relate(t, "Omar", "father", "Sami")
	e.relate(t, "Karim", "father", "Nour")
	return people
}

func findSuggestion(infos []SuggestionInfo, candidateID string) *SuggestionInfo {
	for i := range infos {
		if infos[i].Suggestion.CandidateID == candidateID {
			return &infos[i]
		}
	}
	return nil
}
