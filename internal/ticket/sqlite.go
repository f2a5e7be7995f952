package ticket

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/supportflow-io/supportflow/pkg/protocol"
)

// timeFormat is fixed-width so that created_at sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const ticketColumns = "id, title, description, status, owner_id, ai_response, created_at, updated_at"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ticket store: open: %w", err)
	}
	// A single connection serializes writers; SQLite would otherwise answer
	// concurrent writes with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ticket store: wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ticket store: busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL,
			status      TEXT NOT NULL DEFAULT 'open',
			owner_id    TEXT NOT NULL,
			ai_response TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS completion_jobs (
			ticket_id  TEXT PRIMARY KEY REFERENCES tickets(id),
			owner_id   TEXT NOT NULL,
			due_at     TEXT NOT NULL,
			state      TEXT NOT NULL DEFAULT 'scheduled',
			error      TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_owner ON tickets(owner_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_jobs_due ON completion_jobs(state, due_at);
	`)
	if err != nil {
		return fmt.Errorf("ticket store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Insert(ctx context.Context, t *protocol.Ticket, completeAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return transient("insert", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tickets (`+ticketColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.Description, string(t.Status), t.OwnerID, nullString(t.AIResponse),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return transient("insert", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO completion_jobs (ticket_id, owner_id, due_at, state, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, t.ID, t.OwnerID, formatTime(completeAt), string(JobScheduled), formatTime(t.CreatedAt))
	if err != nil {
		return transient("insert job", err)
	}

	if err := tx.Commit(); err != nil {
		return transient("insert commit", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id, ownerID string) (*protocol.Ticket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ? AND owner_id = ?`, id, ownerID)

	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ticket %q: %w", id, protocol.ErrNotFound)
		}
		return nil, transient("get", err)
	}
	return t, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*protocol.Ticket, error) {
	query := "SELECT " + ticketColumns + " FROM tickets WHERE owner_id = ?"
	args := []any{filter.OwnerID}

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, transient("list", err)
	}
	defer rows.Close()

	tickets := []*protocol.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, transient("list scan", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("list", err)
	}
	return tickets, nil
}

func (s *SQLiteStore) Count(ctx context.Context, ownerID string) (protocol.StatusCounts, error) {
	var counts protocol.StatusCounts
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tickets WHERE owner_id = ? GROUP BY status`, ownerID)
	if err != nil {
		return counts, transient("count", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return counts, transient("count scan", err)
		}
		switch protocol.TicketStatus(status) {
		case protocol.TicketOpen:
			counts.Open = n
		case protocol.TicketPending:
			counts.Pending = n
		case protocol.TicketResolved:
			counts.Resolved = n
		}
		counts.Total += n
	}
	if err := rows.Err(); err != nil {
		return counts, transient("count", err)
	}
	return counts, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id, ownerID string, patch Patch) (*protocol.Ticket, error) {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(s.now())}

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.AIResponse != nil {
		sets = append(sets, "ai_response = ?")
		args = append(args, *patch.AIResponse)
	}

	query := "UPDATE tickets SET " + strings.Join(sets, ", ") + " WHERE id = ? AND owner_id = ?"
	args = append(args, id, ownerID)
	if patch.From != nil {
		query += " AND status = ?"
		args = append(args, string(*patch.From))
	}
	// ai_response is write-once.
	if patch.AIResponse != nil {
		query += " AND ai_response IS NULL"
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, transient("update", err)
	}
	n, _ := result.RowsAffected()

	current, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("ticket %q is %s: %w", id, current.Status, protocol.ErrInvalidTransition)
	}
	return current, nil
}

func (s *SQLiteStore) ClaimCompletion(ctx context.Context, ticketID string) (Job, bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE completion_jobs SET state = ?, updated_at = ? WHERE ticket_id = ? AND state = ?`,
		string(JobClaimed), formatTime(s.now()), ticketID, string(JobScheduled))
	if err != nil {
		return Job{}, false, transient("claim", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return Job{}, false, nil
	}

	row := s.db.QueryRowContext(ctx, `SELECT ticket_id, owner_id, due_at, state, error, updated_at FROM completion_jobs WHERE ticket_id = ?`, ticketID)
	job, err := scanJob(row)
	if err != nil {
		return Job{}, false, transient("claim load", err)
	}
	return job, true, nil
}

func (s *SQLiteStore) FinishCompletion(ctx context.Context, ticketID string, failure error) error {
	state, msg := JobDone, ""
	if failure != nil {
		state, msg = JobFailed, failure.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE completion_jobs SET state = ?, error = ?, updated_at = ? WHERE ticket_id = ? AND state = ?`,
		string(state), msg, formatTime(s.now()), ticketID, string(JobClaimed))
	if err != nil {
		return transient("finish", err)
	}
	return nil
}

func (s *SQLiteStore) DueCompletions(ctx context.Context, now time.Time) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ticket_id, owner_id, due_at, state, error, updated_at FROM completion_jobs WHERE state = ? AND due_at <= ? ORDER BY due_at`,
		string(JobScheduled), formatTime(now))
	if err != nil {
		return nil, transient("due", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, transient("due scan", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- helpers ---

func transient(op string, err error) error {
	return fmt.Errorf("ticket store: %s: %w: %w", op, protocol.ErrTransientStore, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTicket(s scannable) (*protocol.Ticket, error) {
	var t protocol.Ticket
	var status, createdAt, updatedAt string
	var aiResponse sql.NullString

	err := s.Scan(&t.ID, &t.Title, &t.Description, &status, &t.OwnerID, &aiResponse, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	t.Status = protocol.TicketStatus(status)
	if aiResponse.Valid {
		v := aiResponse.String
		t.AIResponse = &v
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func scanJob(s scannable) (Job, error) {
	var j Job
	var state, dueAt, updatedAt string
	if err := s.Scan(&j.TicketID, &j.OwnerID, &dueAt, &state, &j.Error, &updatedAt); err != nil {
		return Job{}, err
	}
	j.State = JobState(state)
	j.DueAt = parseTime(dueAt)
	j.UpdatedAt = parseTime(updatedAt)
	return j, nil
}
