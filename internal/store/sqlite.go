package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/rq/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection serializes
	// access from concurrent HTTP requests.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", strings.ToLower(strings.TrimPrefix(pragma, "PRAGMA ")), err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullString maps "" to NULL so unreviewed fields round-trip as null.
func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func rawJSON(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func personJSON(p *models.Person) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

func scanPerson(ns sql.NullString) *models.Person {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	p := &models.Person{}
	if err := json.Unmarshal([]byte(ns.String), p); err != nil {
		return nil
	}
	return p
}

// --- Submissions ---

func (s *SQLiteStore) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create submission: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO submissions (project_id, batch_id, title, description, status, feedback, time_elapsed, worker, project_owner, interface_type, internal_coms_channel_link, instructions, labeling_config, task_data, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ProjectID, sub.BatchID, sub.Title, sub.Description,
		nullString(string(sub.Status)), nullString(sub.Feedback), sub.TimeElapsed,
		personJSON(sub.Worker), personJSON(sub.ProjectOwner),
		string(sub.InterfaceType), sub.InternalComsChannelLink,
		nullJSON(sub.Instructions), nullJSON(sub.LabelingConfig), nullJSON(sub.TaskData), nullJSON(sub.Data),
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	sub.ID = int(id)

	for _, p := range sub.Parts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO submission_parts (submission_id, idx, review_status, feedback) VALUES (?, ?, ?, ?)`,
			sub.ID, p.Index, nullString(string(p.ReviewStatus)), nullString(p.Feedback),
		); err != nil {
			return fmt.Errorf("create submission part %d: %w", p.Index, err)
		}
	}
	models.SortParts(sub.Parts)

	return tx.Commit()
}

func (s *SQLiteStore) GetSubmission(ctx context.Context, id int) (*models.Submission, error) {
	sub := &models.Submission{}
	var status, feedback, worker, owner sql.NullString
	var instructions, labelingConfig, taskData, data sql.NullString
	var interfaceType string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, batch_id, title, description, status, feedback, time_elapsed, worker, project_owner, interface_type, internal_coms_channel_link, instructions, labeling_config, task_data, data, created_at, updated_at
		FROM submissions WHERE id = ?`, id,
	).Scan(&sub.ID, &sub.ProjectID, &sub.BatchID, &sub.Title, &sub.Description,
		&status, &feedback, &sub.TimeElapsed, &worker, &owner,
		&interfaceType, &sub.InternalComsChannelLink,
		&instructions, &labelingConfig, &taskData, &data,
		&sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("submission %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}

	sub.Status = models.ReviewStatus(status.String)
	sub.Feedback = feedback.String
	sub.Worker = scanPerson(worker)
	sub.ProjectOwner = scanPerson(owner)
	sub.InterfaceType = models.InterfaceType(interfaceType)
	sub.Instructions = rawJSON(instructions)
	sub.LabelingConfig = rawJSON(labelingConfig)
	sub.TaskData = rawJSON(taskData)
	sub.Data = rawJSON(data)

	parts, err := listParts(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	sub.Parts = parts

	return sub, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listParts(ctx context.Context, q querier, submissionID int) ([]models.Part, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT idx, review_status, feedback FROM submission_parts WHERE submission_id = ? ORDER BY idx`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list parts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	parts := []models.Part{}
	for rows.Next() {
		var p models.Part
		var status, feedback sql.NullString
		if err := rows.Scan(&p.Index, &status, &feedback); err != nil {
			return nil, fmt.Errorf("scan part: %w", err)
		}
		p.ReviewStatus = models.ReviewStatus(status.String)
		p.Feedback = feedback.String
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context, filter SubmissionListFilter) ([]*models.SubmissionSummary, error) {
	query := `SELECT id, title, status, worker, created_at FROM submissions`
	var conditions []string
	var args []any

	if filter.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.BatchID != "" {
		conditions = append(conditions, "batch_id = ?")
		args = append(args, filter.BatchID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.SubmissionSummary
	for rows.Next() {
		sum := &models.SubmissionSummary{}
		var status, worker sql.NullString
		if err := rows.Scan(&sum.ID, &sum.Title, &status, &worker, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		sum.Status = models.ReviewStatus(status.String)
		sum.Worker = scanPerson(worker)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// ReviewSubmission persists a verdict. Part verdicts replace the stored part rows by
// index and the submission status is derived from them.
func (s *SQLiteStore) ReviewSubmission(ctx context.Context, id int, review models.ReviewPayload) (*models.Submission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin review: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	status := review.Status
	feedback := review.Feedback

	if review.HasParts() {
		for _, p := range review.Parts {
			res, err := tx.ExecContext(ctx,
				`UPDATE submission_parts SET review_status = ?, feedback = ? WHERE submission_id = ? AND idx = ?`,
				nullString(string(p.ReviewStatus)), nullString(p.Feedback), id, p.Index)
			if err != nil {
				return nil, fmt.Errorf("review part %d: %w", p.Index, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return nil, fmt.Errorf("submission %d part %d: %w", id, p.Index, ErrNotFound)
			}
		}
		parts, err := listParts(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		status = models.DeriveStatus(parts)
		feedback = ""
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE submissions SET status = ?, feedback = COALESCE(?, feedback), time_elapsed = ?, updated_at = ? WHERE id = ?`,
		nullString(string(status)), nullString(feedback), review.TimeElapsed, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("review submission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("submission %d: %w", id, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit review: %w", err)
	}
	return s.GetSubmission(ctx, id)
}

func (s *SQLiteStore) DeleteSubmission(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM submissions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("submission %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- Attachments ---

func (s *SQLiteStore) CreateAttachment(ctx context.Context, a *models.Attachment) error {
	if a.ID == "" {
		a.ID = newULID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attachments (id, submission_id, source, name, url, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.SubmissionID, a.Source, a.Name, a.URL, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAttachments(ctx context.Context, submissionID int) ([]*models.Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, submission_id, source, name, url, created_at FROM attachments WHERE submission_id = ? ORDER BY created_at, id`,
		submissionID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*models.Attachment{}
	for rows.Next() {
		a := &models.Attachment{}
		if err := rows.Scan(&a.ID, &a.SubmissionID, &a.Source, &a.Name, &a.URL, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
