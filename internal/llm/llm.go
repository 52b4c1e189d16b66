package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/rq/internal/models"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5"

// PartDraft is suggested feedback for one part.
type PartDraft struct {
	Index    int    `json:"index"`
	Feedback string `json:"feedback"`
}

// Draft holds suggested reviewer feedback. Parts is set only for submissions
// reviewed part by part.
type Draft struct {
	Feedback string      `json:"feedback"`
	Parts    []PartDraft `json:"parts,omitempty"`
}

// PartFeedback returns the drafted feedback for the part with index, or "".
func (d *Draft) PartFeedback(index int) string {
	for _, p := range d.Parts {
		if p.Index == index {
			return p.Feedback
		}
	}
	return ""
}

// Client wraps the Anthropic API for feedback drafting.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = DefaultModel
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildDraftPrompt constructs the system and user prompts for drafting feedback.
// verdicts holds the reviewer's chosen status per part, aligned with sub.Parts.
func buildDraftPrompt(sub *models.Submission, status models.ReviewStatus, verdicts []models.ReviewStatus) (system string, user string) {
	system = `You help a human reviewer write feedback on submitted labeling work. The reviewer has already decided the verdict; you only write the feedback text that will be shown to the worker.

Return a JSON object with these fields:
- "feedback": 1-3 sentences of overall feedback
- "parts": only when the submission has parts, an array of {"index": <part index>, "feedback": <1-2 sentences>} with one entry per part

Rules:
- Be specific and constructive. Refer to what the instructions ask for
- For REJECTED verdicts explain what must change before resubmission
- For APPROVED verdicts keep it short and mention what was done well
- Never contradict the reviewer's verdict
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	fmt.Fprintf(&sb, "Submission #%d", sub.ID)
	if sub.Title != "" {
		fmt.Fprintf(&sb, ": %s", sub.Title)
	}
	sb.WriteString("\n")
	if sub.Description != "" {
		fmt.Fprintf(&sb, "\nDescription: %s\n", sub.Description)
	}
	if name := sub.Worker.FullName(); name != "" {
		fmt.Fprintf(&sb, "Worker: %s\n", name)
	}
	writeJSONSection(&sb, "Instructions", sub.Instructions)
	writeJSONSection(&sb, "Task data", sub.TaskData)
	writeJSONSection(&sb, "Submitted data", sub.Data)

	if len(sub.Parts) == 0 {
		fmt.Fprintf(&sb, "\nReviewer verdict: %s\n", status)
	} else {
		sb.WriteString("\nReviewer verdicts per part:\n")
		for i, p := range sub.Parts {
			v := p.ReviewStatus
			if i < len(verdicts) {
				v = verdicts[i]
			}
			fmt.Fprintf(&sb, "- part %d: %s\n", p.Index, v)
		}
	}
	user = sb.String()
	return
}

func writeJSONSection(sb *strings.Builder, title string, raw json.RawMessage) {
	if len(raw) == 0 || string(raw) == "null" {
		return
	}
	fmt.Fprintf(sb, "\n%s:\n%s\n", title, string(raw))
}

// DraftFeedback asks the model for feedback matching the reviewer's verdict.
func (c *Client) DraftFeedback(ctx context.Context, sub *models.Submission, status models.ReviewStatus, verdicts []models.ReviewStatus) (*Draft, error) {
	systemPrompt, userPrompt := buildDraftPrompt(sub, status, verdicts)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	return parseDraft(text)
}

// parseDraft decodes the model's reply, tolerating markdown fencing.
func parseDraft(text string) (*Draft, error) {
	text = stripFence(text)
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	var d Draft
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	return &d, nil
}

func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}
