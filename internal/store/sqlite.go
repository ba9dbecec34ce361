package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"collabd/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS answers (
	assessment_id TEXT NOT NULL,
	question_id   TEXT NOT NULL,
	value         TEXT NOT NULL,
	updated_by    TEXT NOT NULL,
	updated_at    DATETIME NOT NULL,
	version       INTEGER NOT NULL,
	PRIMARY KEY (assessment_id, question_id)
);
CREATE TABLE IF NOT EXISTS comments (
	id            TEXT PRIMARY KEY,
	assessment_id TEXT NOT NULL,
	question_id   TEXT NOT NULL,
	author_id     TEXT NOT NULL,
	author_name   TEXT NOT NULL,
	content       TEXT NOT NULL,
	created_at    DATETIME NOT NULL,
	resolved      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_comments_question ON comments(assessment_id, question_id);
CREATE TABLE IF NOT EXISTS conflicts (
	id             TEXT PRIMARY KEY,
	assessment_id  TEXT NOT NULL,
	question_id    TEXT NOT NULL,
	stored_user    TEXT NOT NULL,
	stored_value   TEXT NOT NULL,
	stored_at      DATETIME NOT NULL,
	incoming_user  TEXT NOT NULL,
	incoming_value TEXT NOT NULL,
	incoming_at    DATETIME NOT NULL,
	detected_at    DATETIME NOT NULL,
	resolved_value TEXT,
	resolved_by    TEXT,
	resolved_at    DATETIME
);
`

// SQLite is the durable AnswerStore. All writes funnel through a single
// goroutine: SQLite allows one writer at a time and serializing in-process
// avoids busy errors under concurrent submissions.
type SQLite struct {
	db      *sql.DB
	log     *zap.Logger
	writeCh chan writeOp
	done    chan struct{}
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type writeOp struct {
	fn     func(*sql.DB) error
	result chan error
}

// NewSQLite opens (or creates) the database at path and bootstraps the
// schema. The DDL is idempotent so restarts are safe.
func NewSQLite(path string, log *zap.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}

	s := &SQLite{
		db:      db,
		log:     log,
		writeCh: make(chan writeOp, 100),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

func (s *SQLite) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case op := <-s.writeCh:
			err := op.fn(s.db)
			if err != nil && !errors.Is(err, ErrConflictResolved) {
				// Retry once; transient lock contention clears quickly.
				s.log.Warn("store write failed, retrying", zap.Error(err))
				time.Sleep(100 * time.Millisecond)
				err = op.fn(s.db)
			}
			op.result <- err
		case <-s.done:
			return
		}
	}
}

func (s *SQLite) executeWrite(ctx context.Context, fn func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case s.writeCh <- writeOp{fn: fn, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStoreClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLite) SaveAnswer(ctx context.Context, assessmentID, questionID, userID, value, expectedPrev string, at time.Time) (*types.Answer, bool, error) {
	var prev *types.Answer
	conflict := false

	err := s.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		row := tx.QueryRow(
			`SELECT value, updated_by, updated_at, version FROM answers WHERE assessment_id = ? AND question_id = ?`,
			assessmentID, questionID)

		var stored types.Answer
		version := int64(1)
		switch err := row.Scan(&stored.Value, &stored.UpdatedBy, &stored.UpdatedAt, &stored.Version); {
		case err == nil:
			stored.AssessmentID = assessmentID
			stored.QuestionID = questionID
			prev = &stored
			version = stored.Version + 1
			conflict = stored.UpdatedBy != userID && stored.Value != expectedPrev
		case errors.Is(err, sql.ErrNoRows):
		default:
			return err
		}

		_, err = tx.Exec(
			`INSERT INTO answers (assessment_id, question_id, value, updated_by, updated_at, version)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(assessment_id, question_id) DO UPDATE SET
			 value = excluded.value, updated_by = excluded.updated_by,
			 updated_at = excluded.updated_at, version = excluded.version`,
			assessmentID, questionID, value, userID, at, version)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to save answer: %w", err)
	}
	return prev, conflict, nil
}

func (s *SQLite) GetAnswer(ctx context.Context, assessmentID, questionID string) (*types.Answer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT value, updated_by, updated_at, version FROM answers WHERE assessment_id = ? AND question_id = ?`,
		assessmentID, questionID)

	a := types.Answer{AssessmentID: assessmentID, QuestionID: questionID}
	if err := row.Scan(&a.Value, &a.UpdatedBy, &a.UpdatedAt, &a.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAnswerNotFound
		}
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}
	return &a, nil
}

func (s *SQLite) SaveComment(ctx context.Context, c *types.Comment) error {
	return s.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO comments (id, assessment_id, question_id, author_id, author_name, content, created_at, resolved)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.AssessmentID, c.QuestionID, c.AuthorID, c.AuthorName, c.Content, c.CreatedAt, c.Resolved)
		return err
	})
}

func (s *SQLite) SaveConflict(ctx context.Context, c *types.ConflictResolution) error {
	return s.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO conflicts (id, assessment_id, question_id, stored_user, stored_value, stored_at,
			 incoming_user, incoming_value, incoming_at, detected_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.AssessmentID, c.QuestionID,
			c.Stored.UserID, c.Stored.Value, c.Stored.SubmittedAt,
			c.Incoming.UserID, c.Incoming.Value, c.Incoming.SubmittedAt,
			c.DetectedAt)
		return err
	})
}

func (s *SQLite) GetConflict(ctx context.Context, conflictID string) (*types.ConflictResolution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT assessment_id, question_id, stored_user, stored_value, stored_at,
		 incoming_user, incoming_value, incoming_at, detected_at, resolved_value, resolved_by, resolved_at
		 FROM conflicts WHERE id = ?`, conflictID)

	c := types.ConflictResolution{ID: conflictID}
	var resolvedValue, resolvedBy sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(&c.AssessmentID, &c.QuestionID,
		&c.Stored.UserID, &c.Stored.Value, &c.Stored.SubmittedAt,
		&c.Incoming.UserID, &c.Incoming.Value, &c.Incoming.SubmittedAt,
		&c.DetectedAt, &resolvedValue, &resolvedBy, &resolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConflictNotFound
		}
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}
	if resolvedAt.Valid {
		c.ResolvedValue = resolvedValue.String
		c.ResolvedBy = resolvedBy.String
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	return &c, nil
}

func (s *SQLite) ResolveConflict(ctx context.Context, conflictID, resolvedBy, value string, at time.Time) (*types.ConflictResolution, error) {
	c, err := s.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}

	// Resolve-once is enforced inside the transaction: the UPDATE only
	// matches an open conflict, so two racing resolvers cannot both win.
	err = s.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		res, err := tx.Exec(
			`UPDATE conflicts SET resolved_value = ?, resolved_by = ?, resolved_at = ?
			 WHERE id = ? AND resolved_at IS NULL`,
			value, resolvedBy, at, conflictID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrConflictResolved
		}
		if _, err := tx.Exec(
			`INSERT INTO answers (assessment_id, question_id, value, updated_by, updated_at, version)
			 VALUES (?, ?, ?, ?, ?, 1)
			 ON CONFLICT(assessment_id, question_id) DO UPDATE SET
			 value = excluded.value, updated_by = excluded.updated_by,
			 updated_at = excluded.updated_at, version = version + 1`,
			c.AssessmentID, c.QuestionID, value, resolvedBy, at); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		if errors.Is(err, ErrConflictResolved) {
			return nil, ErrConflictResolved
		}
		return nil, fmt.Errorf("failed to resolve conflict: %w", err)
	}

	c.ResolvedValue = value
	c.ResolvedBy = resolvedBy
	resolvedAt := at
	c.ResolvedAt = &resolvedAt
	return c, nil
}

func (s *SQLite) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
	return s.db.Close()
}
