package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/mocks"
)

func TestRelationshipHandler_ProposeAndAccept(t *testing.T) {
	e := newHandlerEnv(t, nil, false)
	ahmed := e.add(t, "Ahmed", "male")
	fatima := e.add(t, "Fatima", "female")
	amina := e.add(t, "Amina", "female")

	e.relate(t, "Ahmed", "husband", "Fatima")

	proposed, err := e.relations.HandlePropose(t.Context(), "ahmed", "Father", amina.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.RelationFather, proposed.Request.Type)
	assert.Empty(t, proposed.Warnings)
	assert.Empty(t, e.code(t, ahmed, amina), "nothing is written before consent")

	result, err := e.relations.HandleAccept(t.Context(), proposed.Request.ID, "Amina")
	require.NoError(t, err)
	assert.False(t, result.Deferred)
	require.NotNil(t, result.Deduction)
	assert.Equal(t, 1, result.Deduction.Written)

	assert.Equal(t, entities.RelationFather, e.code(t, ahmed, amina))
	assert.Equal(t, entities.RelationDaughter, e.code(t, amina, ahmed))
	assert.Equal(t, entities.RelationMother, e.code(t, fatima, amina))
}

func TestRelationshipHandler_ProposeErrors(t *testing.T) {
	e := newHandlerEnv(t, nil, false)
	e.add(t, "Ahmed", "male")
	e.add(t, "Amina", "female")

	tests := []struct {
		name      string
		requester string
		relation  string
		target    string
		wantErr   error
	}{
		{"unknown relation", "Ahmed", "godfather", "Amina", entities.ErrInvalidType},
		{"unknown requester", "Ghost", "father", "Amina", entities.ErrPersonNotFound},
		{"unknown target", "Ahmed", "father", "Ghost", entities.ErrPersonNotFound},
		{"self", "Ahmed", "father", "ahmed", entities.ErrSelfRelation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.relations.HandlePropose(t.Context(), tt.requester, tt.relation, tt.target)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRelationshipHandler_GenderWarning(t *testing.T) {
	e := newHandlerEnv(t, nil, false)
	e.add(t, "Fatima", "female")
	e.add(t, "Amina", "female")

	proposed, err := e.relations.HandlePropose(t.Context(), "Fatima", "father", "Amina")
	require.NoError(t, err)
	require.Len(t, proposed.Warnings, 1)
	assert.Equal(t, entities.WarningGenderMismatch, proposed.Warnings[0].Kind)
}

func TestRelationshipHandler_DeclineAndCancel(t *testing.T) {
	e := newHandlerEnv(t, nil, false)
	e.add(t, "Ahmed", "male")
	e.add(t, "Amina", "female")
	e.add(t, "Youssef", "male")

	toAmina, err := e.relations.HandlePropose(t.Context(), "Ahmed", "father", "Amina")
	require.NoError(t, err)
	toYoussef, err := e.relations.HandlePropose(t.Context(), "Ahmed", "father", "Youssef")
	require.NoError(t, err)

	_, err = e.relations.HandleDecline(t.Context(), toAmina.Request.ID, "Ahmed")
	require.ErrorIs(t, err, entities.ErrNotAuthorized, "only the target may decline")

	declined, err := e.relations.HandleDecline(t.Context(), toAmina.Request.ID, "Amina")
	require.NoError(t, err)
	assert.Equal(t, entities.RequestDeclined, declined.Status)

	_, err = e.relations.HandleCancel(t.Context(), toYoussef.Request.ID, "Youssef")
	require.ErrorIs(t, err, entities.ErrNotAuthorized, "only the requester may cancel")

	cancelled, err := e.relations.HandleCancel(t.Context(), toYoussef.Request.ID, "Ahmed")
	require.NoError(t, err)
	assert.Equal(t, entities.RequestCancelled, cancelled.Status)

	_, err = e.relations.HandleAccept(t.Context(), toAmina.Request.ID, "Amina")
	require.ErrorIs(t, err, entities.ErrInvalidTransition)
}

func TestRelationshipHandler_HandleRequests(t *testing.T) {
	e := newHandlerEnv(t, nil, false)
	ahmed := e.add(t, "Ahmed", "male")
	amina := e.add(t, "Amina", "female")
	e.add(t, "Youssef", "male")

	_, err := e.relations.HandlePropose(t.Context(), "Ahmed", "father", "Amina")
	require.NoError(t, err)
	_, err = e.relations.HandlePropose(t.Context(), "Amina", "sister", "Youssef")
	require.NoError(t, err)

	infos, err := e.relations.HandleRequests(t.Context(), "Amina", "pending")
	require.NoError(t, err)
	require.Len(t, infos, 2)

	var incoming *RequestInfo
	for i := range infos {
		if infos[i].Incoming {
			incoming = &infos[i]
		}
	}
	require.NotNil(t, incoming)
	assert.Equal(t, ahmed.ID, incoming.Requester.ID)
	assert.Equal(t, amina.ID, incoming.Target.ID)

	accepted, err := e.relations.HandleRequests(t.Context(), "Amina", "accepted")
	require.NoError(t, err)
	assert.Empty(t, accepted)

	_, err = e.relations.HandleRequests(t.Context(), "Amina", "maybe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid request status")
}

func TestRelationshipHandler_HandleList(t *testing.T) {
	e := newHandlerEnv(t, nil, false)
	e.add(t, "Ahmed", "male")
	fatima := e.add(t, "Fatima", "female")
	amina := e.add(t, "Amina", "female")
	e.add(t, "Mohammed", "male")

	e.relate(t, "Ahmed", "husband", "Fatima")
	e.relate(t, "Ahmed", "father", "Amina")
	e.relate(t, "Ahmed", "father", "Mohammed")

	all, err := e.relations.HandleList(t.Context(), "Ahmed", ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Ahmed", all.Person.Name)
	assert.Len(t, all.Relationships, 3)

	fathers, err := e.relations.HandleList(t.Context(), "Ahmed", ListOptions{Type: "father"})
	require.NoError(t, err)
	require.Len(t, fathers.Relationships, 2)
	for _, info := range fathers.Relationships {
		require.NotNil(t, info.Other)
		assert.NotEqual(t, fatima.ID, info.Other.ID)
	}

	sisters, err := e.relations.HandleList(t.Context(), "Amina", ListOptions{Type: "sister"})
	require.NoError(t, err)
	require.Len(t, sisters.Relationships, 1, "sibling derived from the shared father")
	assert.Equal(t, "Mohammed", sisters.Relationships[0].Other.Name)
	assert.True(t, sisters.Relationships[0].Relationship.Automatic)
	assert.NotEqual(t, amina.ID, sisters.Relationships[0].Other.ID)

	_, err = e.relations.HandleList(t.Context(), "Ahmed", ListOptions{Type: "ally"})
	require.ErrorIs(t, err, entities.ErrInvalidType)
}

func TestRelationshipHandler_HandleDeduce(t *testing.T) {
	e := newHandlerEnv(t, nil, false)
	e.add(t, "Ahmed", "male")
	fatima := e.add(t, "Fatima", "female")
	amina := e.add(t, "Amina", "female")

	e.relate(t, "Ahmed", "husband", "Fatima")
	e.relate(t, "Ahmed", "father", "Amina")
	require.NoError(t, e.db.DeleteEdgePair(t.Context(), fatima.ID, amina.ID))

	result, err := e.relations.HandleDeduce(t.Context(), "Ahmed")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Written)
	assert.Equal(t, entities.RelationMother, e.code(t, fatima, amina))
	assert.Equal(t, entities.RelationDaughter, e.code(t, amina, fatima))

	again, err := e.relations.HandleDeduce(t.Context(), "Ahmed")
	require.NoError(t, err)
	assert.Zero(t, again.Written, "backfill is idempotent")
}

func TestRelationshipHandler_AuditAndRepair(t *testing.T) {
	e := newHandlerEnv(t, nil, false)
	fatima := e.add(t, "Fatima", "female")
	amina := e.add(t, "Amina", "female")
	e.relate(t, "Fatima", "father", "Amina")

	issues, err := e.relations.HandleAudit(t.Context(), "Fatima")
	require.NoError(t, err)
	require.Len(t, issues, 1)

	report, err := e.relations.HandleRepair(t.Context(), "Fatima")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fixed)
	assert.Equal(t, entities.RelationMother, e.code(t, fatima, amina))

	issues, err = e.relations.HandleAudit(t.Context(), "Fatima")
	require.NoError(t, err)
	assert.Empty(t, issues)

	_, err = e.relations.HandleRepair(t.Context(), "Ghost")
	require.ErrorIs(t, err, entities.ErrPersonNotFound)
}

func TestRelationshipHandler_InlineRefresh(t *testing.T) {
	e := newHandlerEnv(t, nil, false)
	people := e.buildCousins(t)

	sugs, err := e.db.FindSuggestionsByOwner(t.Context(), people["Nour"].ID, entities.SuggestionPending)
	require.NoError(t, err)

	var cousin *entities.Suggestion
	for i := range sugs {
		if sugs[i].CandidateID == people["Sami"].ID {
			cousin = &sugs[i]
		}
	}
	require.NotNil(t, cousin, "accepting a request regenerates suggestions for its endpoints")
	assert.Equal(t, entities.RelationCousin, cousin.Type)
}

func TestRelationshipHandler_QueuedRefresh(t *testing.T) {
	queue := &mocks.Queue{}
	e := newHandlerEnv(t, queue, false)
	ahmed := e.add(t, "Ahmed", "male")
	amina := e.add(t, "Amina", "female")

	e.relate(t, "Ahmed", "father", "Amina")

	var suggestFor []string
	for _, job := range queue.Jobs {
		require.Equal(t, entities.JobSuggest, job.Kind)
		suggestFor = append(suggestFor, job.PersonID)
	}
	assert.ElementsMatch(t, []string{ahmed.ID, amina.ID}, suggestFor, "no duplicate jobs from the handler")

	sugs, err := e.db.FindSuggestionsByOwner(t.Context(), amina.ID, "")
	require.NoError(t, err)
	assert.Empty(t, sugs, "nothing is generated inline when a queue is configured")
}
