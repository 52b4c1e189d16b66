package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/rq/internal/models"
	"github.com/joescharf/rq/internal/output"
	"github.com/joescharf/rq/internal/review"
	"github.com/joescharf/rq/internal/store"
)

var (
	subProject string
	subBatch   string
	subStatus  string
)

var submissionCmd = &cobra.Command{
	Use:     "submission",
	Aliases: []string{"sub"},
	Short:   "Inspect and seed submissions in the local database",
}

var submissionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the submissions of a batch in queue order",
	RunE: func(cmd *cobra.Command, args []string) error {
		return submissionListRun()
	},
}

var submissionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show submission details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return submissionShowRun(args[0])
	},
}

var submissionImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Seed submissions from a YAML file",
	Long: `Create submissions (with parts and attachments) from a YAML file:

  project: p1
  batch: b1
  submissions:
    - title: Label street signs
      worker: {id: 7, first_name: Ada, last_name: Lovelace}
      time_elapsed: 120
      parts: [{index: 0}, {index: 1}]
      attachments:
        - {source: Task, name: brief.pdf, url: https://example.com/brief.pdf}

Submissions whose title already exists in the batch are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return submissionImportRun(args[0])
	},
}

func init() {
	submissionListCmd.Flags().StringVar(&subProject, "project", "", "Project ID (required)")
	submissionListCmd.Flags().StringVar(&subBatch, "batch", "", "Batch ID (required)")
	submissionListCmd.Flags().StringVar(&subStatus, "status", "", "Filter by status: APPROVED, REJECTED, PENDING_REVIEW")
	_ = submissionListCmd.MarkFlagRequired("project")
	_ = submissionListCmd.MarkFlagRequired("batch")

	submissionCmd.AddCommand(submissionListCmd)
	submissionCmd.AddCommand(submissionShowCmd)
	submissionCmd.AddCommand(submissionImportCmd)
	rootCmd.AddCommand(submissionCmd)
}

func submissionListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	filter := store.SubmissionListFilter{ProjectID: subProject, BatchID: subBatch}
	if subStatus != "" {
		filter.Status = models.ReviewStatus(strings.ToUpper(subStatus))
		if !filter.Status.Valid() {
			return fmt.Errorf("invalid status: %s", subStatus)
		}
	}

	subs, err := s.ListSubmissions(ctx, filter)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		ui.Info("No submissions found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Status", "Worker", "Created"})
	for _, sub := range subs {
		_ = table.Append([]string{
			strconv.Itoa(sub.ID),
			sub.Title,
			output.StatusColor(string(sub.Status)),
			sub.Worker.FullName(),
			sub.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	_ = table.Render()
	return nil
}

func submissionShowRun(idArg string) error {
	id, err := strconv.Atoi(idArg)
	if err != nil {
		return fmt.Errorf("invalid submission id: %s", idArg)
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	sub, err := s.GetSubmission(ctx, id)
	if err != nil {
		return fmt.Errorf("submission %d: %w", id, err)
	}
	models.SortParts(sub.Parts)
	printSubmission(sub)

	atts, err := s.ListAttachments(ctx, id)
	if err != nil {
		return err
	}
	task, submitted := review.PartitionAttachments(atts)
	printAttachments(task, submitted)
	return nil
}

// printSubmission writes the detail block shared by show and review.
func printSubmission(sub *models.Submission) {
	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan("#"+strconv.Itoa(sub.ID)), sub.Title)
	fmt.Fprintf(ui.Out, "  Batch:      %s / %s\n", sub.ProjectID, sub.BatchID)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(sub.Status)))
	if w := sub.Worker.FullName(); w != "" {
		fmt.Fprintf(ui.Out, "  Worker:     %s\n", w)
	}
	if sub.InterfaceType != "" {
		fmt.Fprintf(ui.Out, "  Interface:  %s\n", sub.InterfaceType)
	}
	fmt.Fprintf(ui.Out, "  Elapsed:    %s\n", output.Elapsed(sub.TimeElapsed))
	if sub.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:       %s\n", sub.Description)
	}
	if sub.Feedback != "" {
		fmt.Fprintf(ui.Out, "  Feedback:   %s\n", sub.Feedback)
	}
	if sub.InternalComsChannelLink != "" {
		fmt.Fprintf(ui.Out, "  Channel:    %s\n", sub.InternalComsChannelLink)
	}

	if sub.HasParts() {
		done := 0
		for _, p := range sub.Parts {
			if p.ReviewStatus == models.ReviewStatusApproved || p.ReviewStatus == models.ReviewStatusRejected {
				done++
			}
		}
		fmt.Fprintf(ui.Out, "  Parts:      %s\n", output.PartsProgress(done, len(sub.Parts)))
		for _, p := range sub.Parts {
			line := fmt.Sprintf("    %d. %s", p.Index+1, output.StatusColor(string(p.ReviewStatus)))
			if p.Feedback != "" {
				line += "  " + p.Feedback
			}
			fmt.Fprintln(ui.Out, line)
		}
	}
	fmt.Fprintf(ui.Out, "  Created:    %s\n", sub.CreatedAt.Format(time.RFC3339))
}

func printAttachments(task, submitted []*models.Attachment) {
	for _, group := range []struct {
		label string
		list  []*models.Attachment
	}{
		{"Task files", task},
		{"Submitted files", submitted},
	} {
		if len(group.list) == 0 {
			continue
		}
		fmt.Fprintf(ui.Out, "  %s:\n", group.label)
		for _, a := range group.list {
			fmt.Fprintf(ui.Out, "    - %s  %s\n", a.Name, a.URL)
		}
	}
}

// importFile is the YAML layout accepted by `submission import`.
type importFile struct {
	Project     string           `yaml:"project"`
	Batch       string           `yaml:"batch"`
	Submissions []importedRecord `yaml:"submissions"`
}

type importedRecord struct {
	Title         string               `yaml:"title"`
	Description   string               `yaml:"description"`
	Worker        *models.Person       `yaml:"worker"`
	ProjectOwner  *models.Person       `yaml:"project_owner"`
	InterfaceType models.InterfaceType `yaml:"interface_type"`
	TimeElapsed   int                  `yaml:"time_elapsed"`
	ChannelLink   string               `yaml:"channel_link"`
	Parts         []models.Part        `yaml:"parts"`
	Attachments   []importedAttachment `yaml:"attachments"`
}

type importedAttachment struct {
	Source string `yaml:"source"`
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
}

func parseImportFile(data []byte) (*importFile, error) {
	var f importFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if f.Project == "" || f.Batch == "" {
		return nil, fmt.Errorf("project and batch are required")
	}
	for i, rec := range f.Submissions {
		if strings.TrimSpace(rec.Title) == "" {
			return nil, fmt.Errorf("submission %d: title is required", i+1)
		}
		seen := make(map[int]bool, len(rec.Parts))
		for _, p := range rec.Parts {
			if seen[p.Index] {
				return nil, fmt.Errorf("submission %q: duplicate part index %d", rec.Title, p.Index)
			}
			seen[p.Index] = true
		}
	}
	return &f, nil
}

func submissionImportRun(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	f, err := parseImportFile(data)
	if err != nil {
		return err
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	return importSubmissions(context.Background(), s, f)
}

// importSubmissions creates every record whose title is new to the batch.
func importSubmissions(ctx context.Context, s store.Store, f *importFile) error {
	existing, err := s.ListSubmissions(ctx, store.SubmissionListFilter{ProjectID: f.Project, BatchID: f.Batch})
	if err != nil {
		return err
	}
	titles := make(map[string]bool, len(existing))
	for _, sub := range existing {
		titles[sub.Title] = true
	}

	created, skipped := 0, 0
	for _, rec := range f.Submissions {
		if titles[rec.Title] {
			ui.VerboseLog("Skipping existing submission %q", rec.Title)
			skipped++
			continue
		}
		if dryRun {
			ui.DryRunMsg("Would create submission %q (%d parts, %d attachments)", rec.Title, len(rec.Parts), len(rec.Attachments))
			continue
		}

		sub := &models.Submission{
			ProjectID:               f.Project,
			BatchID:                 f.Batch,
			Title:                   rec.Title,
			Description:             rec.Description,
			Worker:                  rec.Worker,
			ProjectOwner:            rec.ProjectOwner,
			InterfaceType:           rec.InterfaceType,
			TimeElapsed:             rec.TimeElapsed,
			InternalComsChannelLink: rec.ChannelLink,
			Parts:                   rec.Parts,
		}
		if err := s.CreateSubmission(ctx, sub); err != nil {
			return fmt.Errorf("create submission %q: %w", rec.Title, err)
		}
		for _, a := range rec.Attachments {
			att := &models.Attachment{SubmissionID: sub.ID, Source: a.Source, Name: a.Name, URL: a.URL}
			if err := s.CreateAttachment(ctx, att); err != nil {
				return fmt.Errorf("create attachment %q: %w", a.Name, err)
			}
		}
		titles[rec.Title] = true
		created++
	}

	ui.Success("Imported %d submissions into %s/%s (%d already present)", created, f.Project, f.Batch, skipped)
	return nil
}
