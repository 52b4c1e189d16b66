package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/rq/internal/client"
	"github.com/joescharf/rq/internal/llm"
	"github.com/joescharf/rq/internal/models"
	"github.com/joescharf/rq/internal/mutation"
	"github.com/joescharf/rq/internal/notify"
	"github.com/joescharf/rq/internal/output"
	"github.com/joescharf/rq/internal/querycache"
	"github.com/joescharf/rq/internal/review"
	"github.com/joescharf/rq/internal/route"
)

// errQueueDone ends a review loop without an error.
var errQueueDone = errors.New("end of queue")

type reviewOptions struct {
	Project  string
	Batch    string
	ID       string
	Status   string
	Feedback string
	Parts    []string
	Draft    bool
	Once     bool
}

// verdictGiven reports whether the verdict comes from flags rather than prompts.
func (o reviewOptions) verdictGiven() bool {
	return o.Status != "" || len(o.Parts) > 0
}

var reviewOpts reviewOptions

var reviewCmd = &cobra.Command{
	Use:   "review [submission-id]",
	Short: "Review submissions against the API",
	Long: `Open a review session for a submission and record a verdict.

Without an id the batch list is loaded first and the session starts at the
first submission still pending review. After each saved verdict rq moves on
to the next submission in the list until the queue ends or --once is set.

Verdicts are prompted for interactively unless given with flags:

  rq review --project p1 --batch b1 42 --status REJECTED --feedback "blurry"
  rq review --project p1 --batch b1 43 --part 1=APPROVED --part 2=REJECTED:"label missing"

Parts are numbered from 1 as shown by 'rq submission show'. A verdict given
with flags applies to one submission only. --draft asks Claude for feedback
wherever it is left empty (requires anthropic.api_key or ANTHROPIC_API_KEY).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := reviewOpts
		if len(args) > 0 {
			opts.ID = args[0]
		}
		return reviewRun(cmd.Context(), opts)
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewOpts.Project, "project", "", "Project ID (required)")
	reviewCmd.Flags().StringVar(&reviewOpts.Batch, "batch", "", "Batch ID (required)")
	reviewCmd.Flags().StringVar(&reviewOpts.Status, "status", "", "Verdict for the whole submission: APPROVED, REJECTED, PENDING_REVIEW")
	reviewCmd.Flags().StringVar(&reviewOpts.Feedback, "feedback", "", "Feedback for the whole submission")
	reviewCmd.Flags().StringArrayVar(&reviewOpts.Parts, "part", nil, "Part verdict as N=STATUS[:feedback], repeatable")
	reviewCmd.Flags().BoolVar(&reviewOpts.Draft, "draft", false, "Draft missing feedback with Claude")
	reviewCmd.Flags().BoolVar(&reviewOpts.Once, "once", false, "Stop after one submission")
	_ = reviewCmd.MarkFlagRequired("project")
	_ = reviewCmd.MarkFlagRequired("batch")
	rootCmd.AddCommand(reviewCmd)
}

// cliRouter records the path a session navigates to; the review loop reads it
// back to pick the next submission.
type cliRouter struct {
	path string
}

func (r *cliRouter) Go(path string) { r.path = path }

func (r *cliRouter) take() string {
	p := r.path
	r.path = ""
	return p
}

// reviewer drives review sessions for one batch.
type reviewer struct {
	opts   reviewOptions
	cfg    review.Config
	cache  *querycache.Cache
	deps   review.Deps
	router *cliRouter
	drafts *llm.Client
}

func newReviewer(opts reviewOptions, cfg review.Config, c *client.Client, n notify.Notifier) *reviewer {
	cache := querycache.New(c)
	router := &cliRouter{}
	return &reviewer{
		opts:   opts,
		cfg:    cfg,
		cache:  cache,
		router: router,
		deps: review.Deps{
			Cache:    cache,
			Mutator:  mutation.New(c),
			Router:   router,
			Notifier: n,
		},
	}
}

func reviewRun(ctx context.Context, opts reviewOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	r := newReviewer(opts, review.DefaultConfig(), client.New(viper.GetString("api.url")), ui)
	defer r.cache.Wait()

	if opts.Draft {
		r.drafts = newLLMClient()
		if r.drafts == nil {
			return fmt.Errorf("--draft needs ANTHROPIC_API_KEY (set env var or anthropic.api_key in config)")
		}
	}
	return r.run(ctx)
}

func (r *reviewer) run(ctx context.Context) error {
	id := r.opts.ID
	if id == "" {
		first, err := r.firstPending(ctx)
		if errors.Is(err, errQueueDone) {
			ui.Info("Nothing left to review in %s/%s.", r.opts.Project, r.opts.Batch)
			return nil
		}
		if err != nil {
			return err
		}
		id = first
	}

	for {
		next, err := r.reviewOne(ctx, id)
		if errors.Is(err, errQueueDone) || errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		if err != nil {
			return err
		}
		if r.opts.Once || r.opts.verdictGiven() {
			return nil
		}
		fmt.Fprintln(ui.Out)
		id = next
	}
}

// firstPending loads the batch list into the cache and returns the first
// submission nobody has reviewed yet.
func (r *reviewer) firstPending(ctx context.Context) (string, error) {
	listPath, err := review.ListPath(r.opts.Project, r.opts.Batch)
	if err != nil {
		return "", err
	}
	res := r.cache.Get(ctx, listPath)
	if res.Err != nil {
		return "", fmt.Errorf("load submission list: %w", res.Err)
	}
	list, err := client.Decode[models.SubmissionList](res.Data)
	if err != nil {
		return "", fmt.Errorf("decode submission list: %w", err)
	}
	for _, s := range list.Results {
		if s.Status == "" || s.Status == models.ReviewStatusPendingReview {
			return strconv.Itoa(s.ID), nil
		}
	}
	return "", errQueueDone
}

func (r *reviewer) params(id string) review.Params {
	return review.Params{
		ProjectID:      r.opts.Project,
		BatchID:        r.opts.Batch,
		SubmissionID:   id,
		PathTemplate:   r.cfg.PathTemplate,
		ValidStatuses:  r.cfg.ValidStatuses,
		ReadOnly:       review.ReadOnlyWhen(r.cfg.ReadOnlyStatuses),
		SuccessMessage: r.cfg.SuccessMessage,
	}
}

// reviewOne mounts id, collects and submits a verdict, and returns the id the
// session navigated to. errQueueDone means there is nowhere left to go.
func (r *reviewer) reviewOne(ctx context.Context, id string) (string, error) {
	sess, err := review.Mount(ctx, r.deps, r.params(id))
	if err != nil {
		return "", err
	}
	r.show(sess)

	if r.opts.verdictGiven() {
		if err := applyVerdictFlags(sess, r.opts); err != nil {
			return "", err
		}
		if err := r.draftMissing(ctx, sess); err != nil {
			return "", err
		}
		if err := sess.Submit(ctx); err != nil {
			return "", submitError(sess, err)
		}
		return r.followed()
	}

	for {
		action, err := chooseAction(sess)
		if err != nil {
			return "", err
		}
		switch action {
		case actionQuit:
			return "", errQueueDone
		case actionNext:
			if err := sess.GoToNext(); err != nil {
				return "", err
			}
			return r.followed()
		case actionPrevious:
			if err := sess.GoToPrevious(); err != nil {
				return "", err
			}
			return r.followed()
		}

		if err := r.promptVerdict(ctx, sess); err != nil {
			return "", err
		}
		err = sess.Submit(ctx)
		if err == nil {
			return r.followed()
		}
		if errors.Is(err, review.ErrNotSubmittable) {
			ui.Warning("%s; nothing was saved.", gateHint(sess))
			continue
		}
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			// The notifier already printed the server's messages.
			continue
		}
		return "", err
	}
}

// followed turns the path the session navigated to back into a submission id.
func (r *reviewer) followed() (string, error) {
	path := r.router.take()
	if path == "" {
		ui.Info("End of queue.")
		return "", errQueueDone
	}
	return submissionIDFromPath(r.cfg.PathTemplate, path)
}

func submissionIDFromPath(template, path string) (string, error) {
	params, ok := route.Match(template, path)
	if !ok || params[route.ParamSubmissionID] == "" {
		return "", fmt.Errorf("path %q does not match %q", path, template)
	}
	return params[route.ParamSubmissionID], nil
}

func submitError(sess *review.Session, err error) error {
	if errors.Is(err, review.ErrNotSubmittable) {
		return fmt.Errorf("verdict incomplete: %s", gateHint(sess))
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("review refused by server")
	}
	return err
}

// gateHint explains what the submit gate wants for the session's mode.
func gateHint(sess *review.Session) string {
	if sess.Mode() == review.ModeParts {
		return "every part needs APPROVED or REJECTED, and rejected parts need feedback"
	}
	return "a status and feedback are both required"
}

func (r *reviewer) show(sess *review.Session) {
	printSubmission(sess.Submission())

	// Attachments were requested in the background when the session mounted.
	r.cache.Wait()
	if task, submitted, err := sess.Attachments(); err != nil {
		ui.Warning("Attachments unavailable: %v", err)
	} else {
		printAttachments(task, submitted)
	}

	if err := sess.SiblingsErr(); err != nil {
		ui.Warning("Queue unavailable, navigation disabled: %v", err)
	} else if pos := position(sess); pos > 0 {
		fmt.Fprintf(ui.Out, "  Queue:      %d of %d\n", pos, len(sess.Siblings()))
	}
	if sess.ReadOnly() {
		ui.Info("Already %s; opened read-only.", output.StatusColor(string(sess.Submission().Status)))
	}
}

func position(sess *review.Session) int {
	for i, s := range sess.Siblings() {
		if s.ID == sess.Submission().ID {
			return i + 1
		}
	}
	return 0
}

// parsePartFlag parses N=STATUS[:feedback] with N counted from 1.
func parsePartFlag(raw string) (int, models.ReviewStatus, string, error) {
	num, rest, ok := strings.Cut(raw, "=")
	if !ok {
		return 0, "", "", fmt.Errorf("invalid --part %q: want N=STATUS[:feedback]", raw)
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil || n < 1 {
		return 0, "", "", fmt.Errorf("invalid --part %q: part number must be 1 or more", raw)
	}
	status, feedback, _ := strings.Cut(rest, ":")
	st := models.ReviewStatus(strings.ToUpper(strings.TrimSpace(status)))
	if !st.Valid() {
		return 0, "", "", fmt.Errorf("invalid --part %q: unknown status %q", raw, status)
	}
	return n - 1, st, strings.TrimSpace(feedback), nil
}

// applyVerdictFlags copies the flag verdict into the session form.
func applyVerdictFlags(sess *review.Session, opts reviewOptions) error {
	if sess.ReadOnly() {
		return fmt.Errorf("submission %d is read-only", sess.Submission().ID)
	}

	if sess.Mode() == review.ModeParts {
		if opts.Status != "" {
			return fmt.Errorf("submission %d is reviewed part by part; use --part", sess.Submission().ID)
		}
		for _, raw := range opts.Parts {
			i, st, fb, err := parsePartFlag(raw)
			if err != nil {
				return err
			}
			if err := sess.SetPart(i, st, fb); err != nil {
				return fmt.Errorf("--part %q: %w", raw, err)
			}
		}
		return nil
	}

	if len(opts.Parts) > 0 {
		return fmt.Errorf("submission %d has no parts; use --status", sess.Submission().ID)
	}
	sess.SetStatus(models.ReviewStatus(strings.ToUpper(opts.Status)))
	sess.SetFeedback(opts.Feedback)
	return nil
}

// draftMissing fills empty feedback fields with a drafted suggestion.
func (r *reviewer) draftMissing(ctx context.Context, sess *review.Session) error {
	if r.drafts == nil {
		return nil
	}
	vals := sess.Values()
	d, err := r.drafts.DraftFeedback(ctx, sess.Submission(), vals.Status, vals.PartsReviewStatus)
	if err != nil {
		return fmt.Errorf("draft feedback: %w", err)
	}

	if sess.Mode() == review.ModeSingle {
		if strings.TrimSpace(vals.Feedback) == "" {
			sess.SetFeedback(d.Feedback)
		}
		return nil
	}
	for i, p := range sess.Submission().Parts {
		if strings.TrimSpace(vals.PartsFeedback[i]) != "" {
			continue
		}
		if err := sess.SetPart(i, vals.PartsReviewStatus[i], d.PartFeedback(p.Index)); err != nil {
			return err
		}
	}
	return nil
}

type reviewAction string

const (
	actionReview   reviewAction = "review"
	actionNext     reviewAction = "next"
	actionPrevious reviewAction = "previous"
	actionQuit     reviewAction = "quit"
)

func chooseAction(sess *review.Session) (reviewAction, error) {
	var opts []huh.Option[reviewAction]
	if !sess.ReadOnly() {
		opts = append(opts, huh.NewOption("Review", actionReview))
	}
	if sess.HasNext() {
		opts = append(opts, huh.NewOption(fmt.Sprintf("Next (#%d)", sess.Next().ID), actionNext))
	}
	if sess.HasPrevious() {
		opts = append(opts, huh.NewOption(fmt.Sprintf("Previous (#%d)", sess.Previous().ID), actionPrevious))
	}
	opts = append(opts, huh.NewOption("Quit", actionQuit))

	action := opts[0].Value
	err := huh.NewSelect[reviewAction]().
		Title("What next?").
		Options(opts...).
		Value(&action).
		Run()
	return action, err
}

// promptVerdict asks for statuses first so a draft can match them, then for
// feedback prefilled with the current values.
func (r *reviewer) promptVerdict(ctx context.Context, sess *review.Session) error {
	statusOpts, err := sess.StatusOptions(ctx)
	if err != nil {
		return err
	}
	options := make([]huh.Option[models.ReviewStatus], len(statusOpts))
	for i, o := range statusOpts {
		options[i] = huh.NewOption(string(o.Label), o.Label)
	}

	vals := sess.Values()
	var groups []*huh.Group
	if sess.Mode() == review.ModeSingle {
		groups = append(groups, huh.NewGroup(
			huh.NewSelect[models.ReviewStatus]().Title("Verdict").Options(options...).Value(&vals.Status),
		))
	} else {
		for i, p := range sess.Submission().Parts {
			groups = append(groups, huh.NewGroup(
				huh.NewSelect[models.ReviewStatus]().
					Title(fmt.Sprintf("Part %d verdict", p.Index+1)).
					Options(options...).
					Value(&vals.PartsReviewStatus[i]),
			))
		}
	}
	if err := huh.NewForm(groups...).Run(); err != nil {
		return err
	}
	if err := setValues(sess, vals); err != nil {
		return err
	}

	if r.drafts != nil {
		if err := r.draftMissing(ctx, sess); err != nil {
			ui.Warning("%v", err)
		}
		vals = sess.Values()
	}

	var fields []huh.Field
	if sess.Mode() == review.ModeSingle {
		fields = append(fields, huh.NewText().Title(fmt.Sprintf("Feedback (%s)", vals.Status)).Value(&vals.Feedback))
	} else {
		for i, p := range sess.Submission().Parts {
			fields = append(fields, huh.NewText().
				Title(fmt.Sprintf("Part %d feedback (%s)", p.Index+1, vals.PartsReviewStatus[i])).
				Value(&vals.PartsFeedback[i]))
		}
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return err
	}
	return setValues(sess, vals)
}

func setValues(sess *review.Session, vals review.FormValues) error {
	if sess.Mode() == review.ModeSingle {
		sess.SetStatus(vals.Status)
		sess.SetFeedback(vals.Feedback)
		return nil
	}
	for i := range vals.PartsReviewStatus {
		if err := sess.SetPart(i, vals.PartsReviewStatus[i], vals.PartsFeedback[i]); err != nil {
			return err
		}
	}
	return nil
}
