package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/rq/internal/route"
)

var navParams = route.Params{route.ParamProjectID: "p1", route.ParamBatchID: "b1"}

func TestNavigator_NeighborArithmetic(t *testing.T) {
	list := summaries(10, 20, 30, 40)
	for p, s := range list {
		n := NewNavigator(list, itoa(s.ID), &fakeRouter{}, route.DefaultSubmissionPath, navParams)

		if p+1 < len(list) {
			assert.Equal(t, Target{ID: list[p+1].ID, Present: true}, n.Next(), "next of %d", s.ID)
		} else {
			assert.False(t, n.HasNext(), "last item has no next")
		}
		if p >= 1 {
			assert.Equal(t, Target{ID: list[p-1].ID, Present: true}, n.Previous(), "previous of %d", s.ID)
		} else {
			assert.False(t, n.HasPrevious(), "first item has no previous")
		}
	}
}

func TestNavigator_AbsentID(t *testing.T) {
	for _, id := range []string{"99", "abc", "", "1.5"} {
		n := NewNavigator(summaries(1, 2, 3), id, &fakeRouter{}, route.DefaultSubmissionPath, navParams)
		assert.False(t, n.HasNext(), "id %q", id)
		assert.False(t, n.HasPrevious(), "id %q", id)
	}

	n := NewNavigator(nil, "1", &fakeRouter{}, route.DefaultSubmissionPath, navParams)
	assert.False(t, n.HasNext())
	assert.False(t, n.HasPrevious())
}

func TestNavigator_FirstMatchWins(t *testing.T) {
	n := NewNavigator(summaries(5, 7, 5, 9), "5", &fakeRouter{}, route.DefaultSubmissionPath, navParams)
	assert.Equal(t, 7, n.Next().ID)
	assert.False(t, n.HasPrevious())
}

func TestNavigator_ZeroIDNeighborIsAbsent(t *testing.T) {
	r := &fakeRouter{}
	n := NewNavigator(summaries(0, 4, 0), "4", r, route.DefaultSubmissionPath, navParams)

	assert.False(t, n.HasNext())
	assert.False(t, n.HasPrevious())
	assert.ErrorIs(t, n.GoToNext(), ErrNoTarget)
	assert.ErrorIs(t, n.GoToPrevious(), ErrNoTarget)
	assert.False(t, n.AdvanceOnSuccess())
	assert.Empty(t, r.paths)
}

func TestNavigator_NoWraparound(t *testing.T) {
	r := &fakeRouter{}
	n := NewNavigator(summaries(1, 2, 3), "3", r, route.DefaultSubmissionPath, navParams)

	assert.ErrorIs(t, n.GoToNext(), ErrNoTarget)
	assert.False(t, n.AdvanceOnSuccess())
	assert.Empty(t, r.paths)
}

func TestNavigator_GoToBuildsPath(t *testing.T) {
	r := &fakeRouter{}
	n := NewNavigator(summaries(1, 2, 3), "2", r, route.DefaultSubmissionPath, navParams)

	require.NoError(t, n.GoToNext())
	require.NoError(t, n.GoToPrevious())
	assert.True(t, n.AdvanceOnSuccess())
	assert.Equal(t, []string{
		"/projects/p1/batches/b1/submissions/3",
		"/projects/p1/batches/b1/submissions/1",
		"/projects/p1/batches/b1/submissions/3",
	}, r.paths)
}

func TestNavigator_CustomTemplate(t *testing.T) {
	r := &fakeRouter{}
	n := NewNavigator(summaries(4, 8), "4", r, "/queue/{projectId}/{batchId}/item/{submissionId}", navParams)

	require.NoError(t, n.GoToNext())
	assert.Equal(t, []string{"/queue/p1/b1/item/8"}, r.paths)
}
