package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/rq/internal/api"
	"github.com/joescharf/rq/internal/models"
	"github.com/joescharf/rq/internal/store"
)

// Server wraps the rq data layer and exposes it as MCP tools.
type Server struct {
	store   store.Store
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{store: s, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("rq", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listSubmissionsTool())
	srv.AddTool(s.getSubmissionTool())
	srv.AddTool(s.reviewSubmissionTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// rq_list_submissions
func (s *Server) listSubmissionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rq_list_submissions",
		mcp.WithDescription("List the submissions of a batch in queue order. Returns {count, results} with id, title, status, worker and createdAt."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project ID")),
		mcp.WithString("batch", mcp.Required(), mcp.Description("Batch ID")),
		mcp.WithString("status", mcp.Description("Filter by status: APPROVED, REJECTED or PENDING_REVIEW")),
	)
	return tool, s.handleListSubmissions
}

func (s *Server) handleListSubmissions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}
	batch, err := request.RequireString("batch")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: batch"), nil
	}

	filter := store.SubmissionListFilter{ProjectID: project, BatchID: batch}
	if st := request.GetString("status", ""); st != "" {
		filter.Status = models.ReviewStatus(strings.ToUpper(st))
		if !filter.Status.Valid() {
			return mcp.NewToolResultError(fmt.Sprintf("invalid status: %s", st)), nil
		}
	}

	subs, err := s.store.ListSubmissions(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list submissions: %v", err)), nil
	}
	if subs == nil {
		subs = []*models.SubmissionSummary{}
	}
	return jsonResult(models.SubmissionList{Count: len(subs), Results: subs})
}

// rq_get_submission
func (s *Server) getSubmissionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rq_get_submission",
		mcp.WithDescription("Get one submission with its parts (sorted by index), current verdict and feedback."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Submission ID")),
	)
	return tool, s.handleGetSubmission
}

func (s *Server) handleGetSubmission(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return notFoundOr(err, id), nil
	}
	models.SortParts(sub.Parts)
	return jsonResult(sub)
}

// rq_review_submission
func (s *Server) reviewSubmissionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rq_review_submission",
		mcp.WithDescription("Record a verdict on a submission. Use status and feedback for whole submissions, or parts (a JSON array of {index, reviewStatus, feedback}) for submissions reviewed part by part. REJECTED always needs feedback."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Submission ID")),
		mcp.WithString("status", mcp.Description("APPROVED, REJECTED or PENDING_REVIEW")),
		mcp.WithString("feedback", mcp.Description("Feedback shown to the worker")),
		mcp.WithString("parts", mcp.Description(`Per-part verdicts as JSON, e.g. [{"index":0,"reviewStatus":"APPROVED","feedback":""}]`)),
		mcp.WithNumber("time_elapsed", mcp.Description("Seconds spent reviewing")),
	)
	return tool, s.handleReviewSubmission
}

func (s *Server) handleReviewSubmission(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	payload := models.ReviewPayload{
		TimeElapsed: request.GetInt("time_elapsed", 0),
		Status:      models.ReviewStatus(strings.ToUpper(request.GetString("status", ""))),
		Feedback:    request.GetString("feedback", ""),
	}
	if raw := request.GetString("parts", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload.Parts); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid parts JSON: %v", err)), nil
		}
		for i := range payload.Parts {
			payload.Parts[i].Submission = id
			payload.Parts[i].ReviewStatus = models.ReviewStatus(strings.ToUpper(string(payload.Parts[i].ReviewStatus)))
		}
		payload.Status = ""
		payload.Feedback = ""
	}

	existing, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return notFoundOr(err, id), nil
	}
	if problems := api.ValidateReview(existing, payload); len(problems) > 0 {
		msgs := make([]string, len(problems))
		for i, p := range problems {
			msgs[i] = p.Message
		}
		return mcp.NewToolResultError("review refused:\n- " + strings.Join(msgs, "\n- ")), nil
	}

	updated, err := s.store.ReviewSubmission(ctx, id, payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save review: %v", err)), nil
	}
	return jsonResult(updated)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func notFoundOr(err error, id int) *mcp.CallToolResult {
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("submission not found: %d", id))
	}
	return mcp.NewToolResultError(fmt.Sprintf("failed to load submission %d: %v", id, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
