package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/rq/internal/models"
	"github.com/joescharf/rq/internal/store"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return NewServer(s, "test"), s
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

func seedSubmission(t *testing.T, s store.Store, batch string, parts ...models.Part) *models.Submission {
	t.Helper()
	sub := &models.Submission{ProjectID: "p1", BatchID: batch, Title: "seed", Parts: parts}
	require.NoError(t, s.CreateSubmission(context.Background(), sub))
	return sub
}

// ---------------------------------------------------------------------------
// Tests: MCPServer registration
// ---------------------------------------------------------------------------

func TestNewServer(t *testing.T) {
	srv, _ := newTestServer(t)
	require.NotNil(t, srv.MCPServer())
	assert.Equal(t, "dev", NewServer(nil, "").version)
}

// ---------------------------------------------------------------------------
// Tests: rq_list_submissions
// ---------------------------------------------------------------------------

func TestHandleListSubmissions(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()
	a := seedSubmission(t, s, "b1")
	seedSubmission(t, s, "b1")
	seedSubmission(t, s, "b2")
	_, err := s.ReviewSubmission(ctx, a.ID, models.ReviewPayload{Status: models.ReviewStatusApproved, Feedback: "ok"})
	require.NoError(t, err)

	result, err := srv.handleListSubmissions(ctx, callToolReq("rq_list_submissions", map[string]any{"project": "p1", "batch": "b1"}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	var list models.SubmissionList
	resultJSON(t, result, &list)
	assert.Equal(t, 2, list.Count)

	result, err = srv.handleListSubmissions(ctx, callToolReq("rq_list_submissions", map[string]any{
		"project": "p1", "batch": "b1", "status": "approved",
	}))
	require.NoError(t, err)
	resultJSON(t, result, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, a.ID, list.Results[0].ID)
}

func TestHandleListSubmissions_Errors(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleListSubmissions(ctx, callToolReq("rq_list_submissions", map[string]any{"project": "p1"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "batch")

	result, err = srv.handleListSubmissions(ctx, callToolReq("rq_list_submissions", map[string]any{
		"project": "p1", "batch": "b1", "status": "maybe",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// ---------------------------------------------------------------------------
// Tests: rq_get_submission
// ---------------------------------------------------------------------------

func TestHandleGetSubmission(t *testing.T) {
	srv, s := newTestServer(t)
	sub := seedSubmission(t, s, "b1", models.Part{Index: 1}, models.Part{Index: 0})

	result, err := srv.handleGetSubmission(context.Background(), callToolReq("rq_get_submission", map[string]any{"id": float64(sub.ID)}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var got models.Submission
	resultJSON(t, result, &got)
	assert.Equal(t, sub.ID, got.ID)
	require.Len(t, got.Parts, 2)
	assert.Equal(t, 0, got.Parts[0].Index)
}

func TestHandleGetSubmission_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleGetSubmission(context.Background(), callToolReq("rq_get_submission", map[string]any{"id": float64(404)}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not found")
}

// ---------------------------------------------------------------------------
// Tests: rq_review_submission
// ---------------------------------------------------------------------------

func TestHandleReviewSubmission_Single(t *testing.T) {
	srv, s := newTestServer(t)
	sub := seedSubmission(t, s, "b1")

	result, err := srv.handleReviewSubmission(context.Background(), callToolReq("rq_review_submission", map[string]any{
		"id": float64(sub.ID), "status": "rejected", "feedback": "boxes are loose", "time_elapsed": float64(45),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var got models.Submission
	resultJSON(t, result, &got)
	assert.Equal(t, models.ReviewStatusRejected, got.Status)
	assert.Equal(t, 45, got.TimeElapsed)
}

func TestHandleReviewSubmission_Parts(t *testing.T) {
	srv, s := newTestServer(t)
	sub := seedSubmission(t, s, "b1", models.Part{Index: 0}, models.Part{Index: 1})

	result, err := srv.handleReviewSubmission(context.Background(), callToolReq("rq_review_submission", map[string]any{
		"id":    float64(sub.ID),
		"parts": `[{"index":0,"reviewStatus":"approved"},{"index":1,"reviewStatus":"APPROVED","feedback":"neat"}]`,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var got models.Submission
	resultJSON(t, result, &got)
	assert.Equal(t, models.ReviewStatusApproved, got.Status)
	assert.Equal(t, "neat", got.Parts[1].Feedback)
}

func TestHandleReviewSubmission_Refused(t *testing.T) {
	srv, s := newTestServer(t)
	sub := seedSubmission(t, s, "b1")

	result, err := srv.handleReviewSubmission(context.Background(), callToolReq("rq_review_submission", map[string]any{
		"id": float64(sub.ID), "status": "REJECTED",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "feedback is required")

	got, err := s.GetSubmission(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatus(""), got.Status, "nothing saved")
}

func TestHandleReviewSubmission_BadPartsJSON(t *testing.T) {
	srv, s := newTestServer(t)
	sub := seedSubmission(t, s, "b1", models.Part{Index: 0})

	result, err := srv.handleReviewSubmission(context.Background(), callToolReq("rq_review_submission", map[string]any{
		"id": float64(sub.ID), "parts": "{oops",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "invalid parts JSON")
}
