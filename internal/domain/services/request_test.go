package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/mocks"
)

func TestRequestService_Propose(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a pending request and leaves the graph alone", func(t *testing.T) {
		e := newTestEnv(t)
		ahmed := e.person(t, "Ahmed", entities.GenderMale)
		amina := e.person(t, "Amina", entities.GenderFemale)

		req, warnings, err := e.requests.Propose(ctx, ahmed.ID, amina.ID, entities.RelationFather)
		require.NoError(t, err)
		assert.Empty(t, warnings)
		assert.Equal(t, entities.RequestPending, req.Status)
		assert.Equal(t, ahmed.ID, req.RequesterID)
		assert.Equal(t, amina.ID, req.TargetID)
		assert.Nil(t, req.RespondedAt)
		assert.Empty(t, e.code(t, ahmed, amina))
	})

	t.Run("rejects bad input", func(t *testing.T) {
		e := newTestEnv(t)
		ahmed := e.person(t, "Ahmed", entities.GenderMale)
		amina := e.person(t, "Amina", entities.GenderFemale)

		_, _, err := e.requests.Propose(ctx, ahmed.ID, amina.ID, "godfather")
		require.ErrorIs(t, err, entities.ErrInvalidType)

		_, _, err = e.requests.Propose(ctx, ahmed.ID, ahmed.ID, entities.RelationFather)
		require.ErrorIs(t, err, entities.ErrSelfRelation)

		_, _, err = e.requests.Propose(ctx, ahmed.ID, "ghost", entities.RelationFather)
		require.ErrorIs(t, err, entities.ErrPersonNotFound)
	})

	t.Run("one pending request per ordered pair", func(t *testing.T) {
		e := newTestEnv(t)
		ahmed := e.person(t, "Ahmed", entities.GenderMale)
		amina := e.person(t, "Amina", entities.GenderFemale)

		_, _, err := e.requests.Propose(ctx, ahmed.ID, amina.ID, entities.RelationFather)
		require.NoError(t, err)
		_, _, err = e.requests.Propose(ctx, ahmed.ID, amina.ID, entities.RelationBrother)
		require.ErrorIs(t, err, entities.ErrDuplicateRequest)
		require.ErrorIs(t, err, entities.ErrDuplicateRelation)

		// The opposite direction is a different request.
		_, _, err = e.requests.Propose(ctx, amina.ID, ahmed.ID, entities.RelationDaughter)
		require.NoError(t, err)
	})

	t.Run("existing edge in either direction", func(t *testing.T) {
		e := newTestEnv(t)
		ahmed := e.person(t, "Ahmed", entities.GenderMale)
		amina := e.person(t, "Amina", entities.GenderFemale)
		e.relate(t, ahmed, amina, entities.RelationFather)

		_, _, err := e.requests.Propose(ctx, ahmed.ID, amina.ID, entities.RelationUncle)
		require.ErrorIs(t, err, entities.ErrDuplicateRelation)
		_, _, err = e.requests.Propose(ctx, amina.ID, ahmed.ID, entities.RelationDaughter)
		require.ErrorIs(t, err, entities.ErrDuplicateRelation)
	})

	t.Run("warnings never block", func(t *testing.T) {
		e := newTestEnv(t)
		fatima := e.person(t, "Fatima", entities.GenderFemale)
		amina := e.person(t, "Amina", entities.GenderFemale)

		req, warnings, err := e.requests.Propose(ctx, fatima.ID, amina.ID, entities.RelationFather)
		require.NoError(t, err)
		require.Len(t, warnings, 1)
		assert.Equal(t, entities.WarningGenderMismatch, warnings[0].Kind)

		_, err = e.requests.Accept(ctx, req.ID, amina.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.RelationFather, e.code(t, fatima, amina))
	})
}

func TestRequestService_Accept(t *testing.T) {
	ctx := context.Background()

	t.Run("writes the mirrored pair and publishes", func(t *testing.T) {
		e := newTestEnv(t)
		ahmed := e.person(t, "Ahmed", entities.GenderMale)
		amina := e.person(t, "Amina", entities.GenderFemale)

		req, _, err := e.requests.Propose(ctx, ahmed.ID, amina.ID, entities.RelationFather)
		require.NoError(t, err)
		res, err := e.requests.Accept(ctx, req.ID, amina.ID)
		require.NoError(t, err)

		assert.Equal(t, entities.RequestAccepted, res.Request.Status)
		assert.NotNil(t, res.Request.RespondedAt)
		assert.False(t, res.Deferred)
		require.NotNil(t, res.Deduction)
		assert.False(t, res.Edge.Automatic)
		assert.Equal(t, entities.RelationFather, e.code(t, ahmed, amina))
		assert.Equal(t, entities.RelationDaughter, e.code(t, amina, ahmed))

		stored, err := e.db.FindRequestByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.RequestAccepted, stored.Status)

		events := e.events.OfType(entities.EventRelationshipAccepted)
		require.Len(t, events, 1)
		assert.Equal(t, ahmed.ID, events[0].SubjectID)
		assert.Equal(t, entities.RelationFather, events[0].Code)
	})

	t.Run("only the target may accept", func(t *testing.T) {
		e := newTestEnv(t)
		ahmed := e.person(t, "Ahmed", entities.GenderMale)
		amina := e.person(t, "Amina", entities.GenderFemale)
		req, _, err := e.requests.Propose(ctx, ahmed.ID, amina.ID, entities.RelationFather)
		require.NoError(t, err)

		_, err = e.requests.Accept(ctx, req.ID, ahmed.ID)
		require.ErrorIs(t, err, entities.ErrNotAuthorized)
		assert.Empty(t, e.code(t, ahmed, amina))
	})

	t.Run("resolved requests stay resolved", func(t *testing.T) {
		e := newTestEnv(t)
		ahmed := e.person(t, "Ahmed", entities.GenderMale)
		amina := e.person(t, "Amina", entities.GenderFemale)
		req, _, err := e.requests.Propose(ctx, ahmed.ID, amina.ID, entities.RelationFather)
		require.NoError(t, err)

		_, err = e.requests.Accept(ctx, req.ID, amina.ID)
		require.NoError(t, err)
		_, err = e.requests.Accept(ctx, req.ID, amina.ID)
		require.ErrorIs(t, err, entities.ErrInvalidTransition)
		_, err = e.requests.Decline(ctx, req.ID, amina.ID)
		require.ErrorIs(t, err, entities.ErrInvalidTransition)
	})

	t.Run("unknown request", func(t *testing.T) {
		e := newTestEnv(t)
		_, err := e.requests.Accept(ctx, "missing", "anyone")
		require.ErrorIs(t, err, entities.ErrRequestNotFound)
	})

	t.Run("pair recorded meanwhile accepts against the existing edge", func(t *testing.T) {
		e := newTestEnv(t)
		ahmed := e.person(t, "Ahmed", entities.GenderMale)
		amina := e.person(t, "Amina", entities.GenderFemale)
		first, _, err := e.requests.Propose(ctx, ahmed.ID, amina.ID, entities.RelationFather)
		require.NoError(t, err)
		second, _, err := e.requests.Propose(ctx, amina.ID, ahmed.ID, entities.RelationDaughter)
		require.NoError(t, err)

		_, err = e.requests.Accept(ctx, first.ID, amina.ID)
		require.NoError(t, err)
		res, err := e.requests.Accept(ctx, second.ID, ahmed.ID)
		require.NoError(t, err)
		assert.Equal(t, e.edge(t, amina, ahmed).ID, res.Edge.ID)

		stored, err := e.db.FindRequestByID(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.RequestAccepted, stored.Status)

		count, err := e.db.CountEdges(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("pair derived after the proposal resolves the request", func(t *testing.T) {
		e := newTestEnv(t)
		ahmed := e.person(t, "Ahmed", entities.GenderMale)
		fatima := e.person(t, "Fatima", entities.GenderFemale)
		amina := e.person(t, "Amina", entities.GenderFemale)
		req, _, err := e.requests.Propose(ctx, fatima.ID, amina.ID, entities.RelationMother)
		require.NoError(t, err)

		e.relate(t, ahmed, fatima, entities.RelationHusband)
		e.relate(t, ahmed, amina, entities.RelationFather)
		derived := e.edge(t, fatima, amina)
		require.NotNil(t, derived)
		require.True(t, derived.Automatic)

		res, err := e.requests.Accept(ctx, req.ID, amina.ID)
		require.NoError(t, err)
		assert.Equal(t, derived.ID, res.Edge.ID)
		assert.Equal(t, entities.RequestAccepted, res.Request.Status)

		pending, err := e.requests.ListFor(ctx, amina.ID, entities.RequestPending)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("failed pair write reopens the request", func(t *testing.T) {
		e := newTestEnv(t)
		ahmed := e.person(t, "Ahmed", entities.GenderMale)
		amina := e.person(t, "Amina", entities.GenderFemale)
		req, _, err := e.requests.Propose(ctx, ahmed.ID, amina.ID, entities.RelationFather)
		require.NoError(t, err)

		e.db.SaveEdgePairErr = assert.AnError
		_, err = e.requests.Accept(ctx, req.ID, amina.ID)
		require.ErrorIs(t, err, assert.AnError)

		stored, err := e.db.FindRequestByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.RequestPending, stored.Status)
		assert.Nil(t, stored.RespondedAt)
		assert.Empty(t, e.code(t, ahmed, amina))

		e.db.SaveEdgePairErr = nil
		_, err = e.requests.Accept(ctx, req.ID, amina.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.RelationFather, e.code(t, ahmed, amina))
	})

	t.Run("cancel racing the pair write cannot orphan edges", func(t *testing.T) {
		e := newTestEnv(t)
		ahmed := e.person(t, "Ahmed", entities.GenderMale)
		amina := e.person(t, "Amina", entities.GenderFemale)
		req, _, err := e.requests.Propose(ctx, ahmed.ID, amina.ID, entities.RelationFather)
		require.NoError(t, err)

		var cancelErr error
		e.db.OnSaveEdgePair = func() {
			_, cancelErr = e.requests.Cancel(ctx, req.ID, ahmed.ID)
		}
		_, err = e.requests.Accept(ctx, req.ID, amina.ID)
		require.NoError(t, err)
		require.ErrorIs(t, cancelErr, entities.ErrInvalidTransition)

		stored, err := e.db.FindRequestByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.RequestAccepted, stored.Status)
		assert.Equal(t, entities.RelationFather, e.code(t, ahmed, amina))
	})
}

func TestRequestService_DeclineAndCancel(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	ahmed := e.person(t, "Ahmed", entities.GenderMale)
	amina := e.person(t, "Amina", entities.GenderFemale)

	req, _, err := e.requests.Propose(ctx, ahmed.ID, amina.ID, entities.RelationFather)
	require.NoError(t, err)

	_, err = e.requests.Decline(ctx, req.ID, ahmed.ID)
	require.ErrorIs(t, err, entities.ErrNotAuthorized)

	declined, err := e.requests.Decline(ctx, req.ID, amina.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.RequestDeclined, declined.Status)
	assert.Empty(t, e.code(t, ahmed, amina))
	assert.Empty(t, e.code(t, amina, ahmed))

	// A declined request frees the pair for a new proposal.
	again, _, err := e.requests.Propose(ctx, ahmed.ID, amina.ID, entities.RelationFather)
	require.NoError(t, err)

	_, err = e.requests.Cancel(ctx, again.ID, amina.ID)
	require.ErrorIs(t, err, entities.ErrNotAuthorized)
	cancelled, err := e.requests.Cancel(ctx, again.ID, ahmed.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.RequestCancelled, cancelled.Status)

	_, err = e.requests.Accept(ctx, again.ID, amina.ID)
	require.ErrorIs(t, err, entities.ErrInvalidTransition)

	count, err := e.db.CountEdges(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	all, err := e.requests.ListFor(ctx, amina.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	pending, err := e.requests.ListFor(ctx, amina.ID, entities.RequestPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRequestService_TaskQueue(t *testing.T) {
	t.Run("async defers propagation", func(t *testing.T) {
		q := &mocks.Queue{}
		e := newTestEnv(t, withQueue(q, true))
		ahmed := e.person(t, "Ahmed", entities.GenderMale)
		fatima := e.person(t, "Fatima", entities.GenderFemale)
		amina := e.person(t, "Amina", entities.GenderFemale)
		e.relate(t, ahmed, fatima, entities.RelationHusband)
		q.Jobs = nil

		res := e.relate(t, ahmed, amina, entities.RelationFather)
		assert.True(t, res.Deferred)
		assert.Nil(t, res.Deduction)
		assert.Empty(t, e.code(t, fatima, amina), "nothing is derived until the job runs")

		require.Len(t, q.Jobs, 3)
		assert.Equal(t, entities.Job{Kind: entities.JobDeduce, PersonID: ahmed.ID, EdgeID: res.Edge.ID}, q.Jobs[0])
		assert.Equal(t, entities.Job{Kind: entities.JobSuggest, PersonID: ahmed.ID}, q.Jobs[1])
		assert.Equal(t, entities.Job{Kind: entities.JobSuggest, PersonID: amina.ID}, q.Jobs[2])
	})

	t.Run("sync mode queues suggestions for everyone touched", func(t *testing.T) {
		q := &mocks.Queue{}
		e := newTestEnv(t, withQueue(q, false))
		ahmed := e.person(t, "Ahmed", entities.GenderMale)
		fatima := e.person(t, "Fatima", entities.GenderFemale)
		amina := e.person(t, "Amina", entities.GenderFemale)
		e.relate(t, ahmed, fatima, entities.RelationHusband)
		q.Jobs = nil

		res := e.relate(t, ahmed, amina, entities.RelationFather)
		assert.False(t, res.Deferred)
		require.NotNil(t, res.Deduction)
		assert.Equal(t, entities.RelationMother, e.code(t, fatima, amina))

		var persons []string
		for _, job := range q.Jobs {
			assert.Equal(t, entities.JobSuggest, job.Kind)
			persons = append(persons, job.PersonID)
		}
		assert.ElementsMatch(t, []string{ahmed.ID, amina.ID, fatima.ID}, persons)
	})

	t.Run("enqueue failure falls back to inline propagation", func(t *testing.T) {
		q := &mocks.Queue{Err: assert.AnError}
		e := newTestEnv(t, withQueue(q, true))
		ahmed := e.person(t, "Ahmed", entities.GenderMale)
		fatima := e.person(t, "Fatima", entities.GenderFemale)
		amina := e.person(t, "Amina", entities.GenderFemale)
		e.relate(t, ahmed, fatima, entities.RelationHusband)

		res := e.relate(t, ahmed, amina, entities.RelationFather)
		assert.False(t, res.Deferred)
		require.NotNil(t, res.Deduction)
		assert.Equal(t, 1, res.Deduction.Written)
		assert.Equal(t, entities.RelationMother, e.code(t, fatima, amina))
	})
}
