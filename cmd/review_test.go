package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/rq/internal/api"
	"github.com/joescharf/rq/internal/models"
	"github.com/joescharf/rq/internal/store"
)

type reviewEnv struct {
	store  store.Store
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

// setupReviewEnv serves the API over a temp store and points api.url at it.
func setupReviewEnv(t *testing.T) *reviewEnv {
	t.Helper()
	dir := testEnv(t)

	s, err := store.NewSQLiteStore(filepath.Join(dir, "review.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	ts := httptest.NewServer(api.NewServer(s, nil).Router())
	t.Cleanup(ts.Close)
	viper.Set("api.url", ts.URL)

	env := &reviewEnv{store: s, out: &bytes.Buffer{}, errOut: &bytes.Buffer{}}
	ui.Out = env.out
	ui.ErrOut = env.errOut
	return env
}

func (e *reviewEnv) seed(t *testing.T, title string, parts ...models.Part) int {
	t.Helper()
	sub := &models.Submission{ProjectID: "p1", BatchID: "b1", Title: title, TimeElapsed: 30, Parts: parts}
	require.NoError(t, e.store.CreateSubmission(context.Background(), sub))
	return sub.ID
}

func (e *reviewEnv) get(t *testing.T, id int) *models.Submission {
	t.Helper()
	sub, err := e.store.GetSubmission(context.Background(), id)
	require.NoError(t, err)
	models.SortParts(sub.Parts)
	return sub
}

func TestParsePartFlag(t *testing.T) {
	tests := []struct {
		raw      string
		index    int
		status   models.ReviewStatus
		feedback string
		wantErr  bool
	}{
		{raw: "1=APPROVED", index: 0, status: models.ReviewStatusApproved},
		{raw: "2=rejected:label missing", index: 1, status: models.ReviewStatusRejected, feedback: "label missing"},
		{raw: "3=REJECTED:ratio 1:2 is off", index: 2, status: models.ReviewStatusRejected, feedback: "ratio 1:2 is off"},
		{raw: "APPROVED", wantErr: true},
		{raw: "0=APPROVED", wantErr: true},
		{raw: "x=APPROVED", wantErr: true},
		{raw: "1=MAYBE", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			i, st, fb, err := parsePartFlag(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.index, i)
			assert.Equal(t, tt.status, st)
			assert.Equal(t, tt.feedback, fb)
		})
	}
}

func TestSubmissionIDFromPath(t *testing.T) {
	id, err := submissionIDFromPath("/projects/{projectId}/batches/{batchId}/submissions/{submissionId}", "/projects/p1/batches/b1/submissions/42")
	require.NoError(t, err)
	assert.Equal(t, "42", id)

	id, err = submissionIDFromPath("/queue/{submissionId}", "/queue/7")
	require.NoError(t, err)
	assert.Equal(t, "7", id)

	_, err = submissionIDFromPath("/queue/{submissionId}", "/elsewhere/7")
	assert.Error(t, err)
}

func TestCliRouter_Take(t *testing.T) {
	r := &cliRouter{}
	assert.Empty(t, r.take())

	r.Go("/a")
	r.Go("/b")
	assert.Equal(t, "/b", r.take())
	assert.Empty(t, r.take(), "taking clears the path")
}

func TestReviewRun_StartsAtFirstPending(t *testing.T) {
	env := setupReviewEnv(t)
	ctx := context.Background()
	first := env.seed(t, "first")
	second := env.seed(t, "second")
	third := env.seed(t, "third")
	_, err := env.store.ReviewSubmission(ctx, first, models.ReviewPayload{Status: models.ReviewStatusApproved, Feedback: "ok"})
	require.NoError(t, err)

	err = reviewRun(ctx, reviewOptions{Project: "p1", Batch: "b1", Status: "rejected", Feedback: "blurry"})
	require.NoError(t, err)

	got := env.get(t, second)
	assert.Equal(t, models.ReviewStatusRejected, got.Status)
	assert.Equal(t, "blurry", got.Feedback)
	assert.Equal(t, 30, got.TimeElapsed)
	assert.Equal(t, models.ReviewStatus(""), env.get(t, third).Status, "flag verdicts apply to one submission")
	assert.Contains(t, env.out.String(), "Review saved")
	assert.Contains(t, env.out.String(), "2 of 3")
}

func TestReviewRun_PartsFlags(t *testing.T) {
	env := setupReviewEnv(t)
	id := env.seed(t, "parted", models.Part{Index: 1}, models.Part{Index: 0})

	err := reviewRun(context.Background(), reviewOptions{
		Project: "p1",
		Batch:   "b1",
		ID:      strconv.Itoa(id),
		Parts:   []string{"1=APPROVED", "2=REJECTED:label missing"},
	})
	require.NoError(t, err)

	got := env.get(t, id)
	assert.Equal(t, models.ReviewStatusRejected, got.Status)
	assert.Equal(t, models.ReviewStatusApproved, got.Parts[0].ReviewStatus)
	assert.Equal(t, "label missing", got.Parts[1].Feedback)
	assert.Contains(t, env.out.String(), "End of queue")
}

func TestReviewRun_WrongFlagsForMode(t *testing.T) {
	env := setupReviewEnv(t)
	parted := env.seed(t, "parted", models.Part{Index: 0})
	single := env.seed(t, "single")

	err := reviewRun(context.Background(), reviewOptions{Project: "p1", Batch: "b1", ID: strconv.Itoa(parted), Status: "APPROVED", Feedback: "ok"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "part by part")

	err = reviewRun(context.Background(), reviewOptions{Project: "p1", Batch: "b1", ID: strconv.Itoa(single), Parts: []string{"1=APPROVED"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no parts")
}

func TestReviewRun_IncompleteVerdict(t *testing.T) {
	env := setupReviewEnv(t)
	id := env.seed(t, "single")

	err := reviewRun(context.Background(), reviewOptions{Project: "p1", Batch: "b1", ID: strconv.Itoa(id), Status: "APPROVED"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verdict incomplete")
	assert.Equal(t, models.ReviewStatus(""), env.get(t, id).Status)
}

func TestReviewRun_ServerRefusal(t *testing.T) {
	env := setupReviewEnv(t)
	id := env.seed(t, "single")

	err := reviewRun(context.Background(), reviewOptions{Project: "p1", Batch: "b1", ID: strconv.Itoa(id), Status: "maybe", Feedback: "unsure"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
	assert.Contains(t, env.errOut.String(), "status must be one of")
}

func TestReviewRun_ReadOnly(t *testing.T) {
	env := setupReviewEnv(t)
	id := env.seed(t, "done")
	_, err := env.store.ReviewSubmission(context.Background(), id, models.ReviewPayload{Status: models.ReviewStatusApproved, Feedback: "ok"})
	require.NoError(t, err)
	viper.Set("review.read_only_statuses", []string{"APPROVED"})

	err = reviewRun(context.Background(), reviewOptions{Project: "p1", Batch: "b1", ID: strconv.Itoa(id), Status: "REJECTED", Feedback: "changed my mind"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")
	assert.Equal(t, models.ReviewStatusApproved, env.get(t, id).Status)
}

func TestReviewRun_NothingPending(t *testing.T) {
	env := setupReviewEnv(t)
	id := env.seed(t, "done")
	_, err := env.store.ReviewSubmission(context.Background(), id, models.ReviewPayload{Status: models.ReviewStatusRejected, Feedback: "no"})
	require.NoError(t, err)

	require.NoError(t, reviewRun(context.Background(), reviewOptions{Project: "p1", Batch: "b1", Status: "APPROVED", Feedback: "ok"}))
	assert.Contains(t, env.out.String(), "Nothing left to review")
}

func TestReviewRun_DraftNeedsKey(t *testing.T) {
	setupReviewEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "")

	err := reviewRun(context.Background(), reviewOptions{Project: "p1", Batch: "b1", Draft: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
}
