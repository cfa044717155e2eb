package handlers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/mocks"
)

func TestRefresher_QueuedDeduplicates(t *testing.T) {
	queue := &mocks.Queue{}
	r := NewRefresher(nil, queue, quietLogger())
	assert.True(t, r.Queued())

	r.Refresh(t.Context(), "a", "b", "a", "c", "b")

	require.Len(t, queue.Jobs, 3)
	for _, job := range queue.Jobs {
		assert.Equal(t, entities.JobSuggest, job.Kind)
	}
	assert.Equal(t, "a", queue.Jobs[0].PersonID)
	assert.Equal(t, "c", queue.Jobs[2].PersonID)
}

func TestRefresher_EnqueueErrorIsLogged(t *testing.T) {
	queue := &mocks.Queue{Err: errors.New("redis down")}
	r := NewRefresher(nil, queue, quietLogger())

	assert.NotPanics(t, func() { r.Refresh(t.Context(), "a") })
	assert.Empty(t, queue.Jobs)
}

func TestRefresher_NilSafe(t *testing.T) {
	var r *Refresher
	assert.False(t, r.Queued())
	assert.NotPanics(t, func() {
		r.Refresh(t.Context(), "a")
		r.AfterAccept(t.Context(), nil)
	})

	inline := NewRefresher(nil, nil, nil)
	assert.False(t, inline.Queued())
	assert.NotPanics(t, func() { inline.Refresh(t.Context(), "a") })
}

func TestRefresher_Inline(t *testing.T) {
	e := newHandlerEnv(t, nil, false)
	people := e.buildCousins(t)

	for _, name := range []string{"Sami", "Nour"} {
		require.NoError(t, e.db.ReplacePendingSuggestions(t.Context(), people[name].ID, nil))
	}

	e.refresh.Refresh(t.Context(), people["Sami"].ID)

	sami, err := e.db.FindSuggestionsByOwner(t.Context(), people["Sami"].ID, entities.SuggestionPending)
	require.NoError(t, err)
	assert.NotEmpty(t, sami)

	nour, err := e.db.FindSuggestionsByOwner(t.Context(), people["Nour"].ID, entities.SuggestionPending)
	require.NoError(t, err)
	assert.Empty(t, nour, "only the requested owners are refreshed")
}
