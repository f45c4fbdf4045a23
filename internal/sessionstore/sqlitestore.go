package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, registered as "sqlite"

	"github.com/strengthlab/quartet/internal/apperr"
	"github.com/strengthlab/quartet/internal/model"
)

// SQLiteStore is a Store backed by a single modernc.org/sqlite database
// file. Each AppendResponse/CompleteSession runs as one plain transaction
// over a single open connection (SetMaxOpenConns(1)), which serializes
// them into atomic read-modify-write transactions without any extra
// locking in this package.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLiteStore opens (creating if necessary) the sqlite database at dsn
// and runs every *.sql file in migrationsFS, in filename order.
func OpenSQLiteStore(ctx context.Context, dsn string, migrationsFS fs.FS, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open sqlite: %w", err)
	}
	// SQLite allows only one writer; a single open connection avoids
	// SQLITE_BUSY from the pure-Go driver's own connection pool.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionstore: ping sqlite: %w", err)
	}

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.runMigrations(ctx, migrationsFS); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) runMigrations(ctx context.Context, migrationsFS fs.FS) error {
	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("sessionstore: read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		content, err := fs.ReadFile(migrationsFS, entry.Name())
		if err != nil {
			return fmt.Errorf("sessionstore: read migration %s: %w", entry.Name(), err)
		}
		if s.logger != nil {
			s.logger.Info("running migration", "file", entry.Name())
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("sessionstore: execute migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateSession(ctx context.Context, session model.Session) error {
	blocksJSON, err := json.Marshal(session.Blocks)
	if err != nil {
		return fmt.Errorf("sessionstore: marshal blocks: %w", err)
	}
	responsesJSON, err := json.Marshal(session.Responses)
	if err != nil {
		return fmt.Errorf("sessionstore: marshal responses: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, created_at, expires_at, status, seed, blocks_json, responses_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.CreatedAt.UTC().Format(time.RFC3339Nano), session.ExpiresAt.UTC().Format(time.RFC3339Nano),
		string(session.Status), session.Seed, string(blocksJSON), string(responsesJSON),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.New(apperr.InvalidParameter, "session %s already exists", session.SessionID)
		}
		return fmt.Errorf("sessionstore: insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, created_at, expires_at, status, seed, blocks_json, responses_json, result_json
		 FROM sessions WHERE session_id = ?`, sessionID)
	return scanSession(row)
}

func (s *SQLiteStore) AppendResponse(ctx context.Context, sessionID string, resp model.BlockResponse) (model.Session, error) {
	var result model.Session
	err := s.withImmediateTx(ctx, func(tx *sql.Tx) error {
		session, err := s.txGetSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		session.Responses = append(session.Responses, resp)
		if session.Status == model.Pending {
			session.Status = model.InProgress
		}

		responsesJSON, err := json.Marshal(session.Responses)
		if err != nil {
			return fmt.Errorf("sessionstore: marshal responses: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET responses_json = ?, status = ? WHERE session_id = ?`,
			string(responsesJSON), string(session.Status), sessionID,
		); err != nil {
			return fmt.Errorf("sessionstore: update responses: %w", err)
		}

		result = session
		return nil
	})
	return result, err
}

func (s *SQLiteStore) CompleteSession(ctx context.Context, sessionID string, scoreResult model.ScoreResult) (model.Session, error) {
	var result model.Session
	err := s.withImmediateTx(ctx, func(tx *sql.Tx) error {
		session, err := s.txGetSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if session.Status == model.Completed {
			return apperr.New(apperr.AlreadyCompleted, "session %s is already completed", sessionID)
		}

		session.Result = &scoreResult
		session.Status = model.Completed

		resultJSON, err := json.Marshal(scoreResult)
		if err != nil {
			return fmt.Errorf("sessionstore: marshal result: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET result_json = ?, status = ? WHERE session_id = ?`,
			string(resultJSON), string(session.Status), sessionID,
		); err != nil {
			return fmt.Errorf("sessionstore: update result: %w", err)
		}

		result = session
		return nil
	})
	return result, err
}

// withImmediateTx runs fn inside a transaction. The store's single open
// connection (SetMaxOpenConns(1)) already serializes every caller onto one
// SQLite connection, so the read-modify-write inside fn is atomic with
// respect to other AppendResponse/CompleteSession calls without needing
// BEGIN IMMEDIATE's up-front write lock.
func (s *SQLiteStore) withImmediateTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sessionstore: begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sessionstore: commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) txGetSession(ctx context.Context, tx *sql.Tx, sessionID string) (model.Session, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT session_id, created_at, expires_at, status, seed, blocks_json, responses_json, result_json
		 FROM sessions WHERE session_id = ?`, sessionID)
	return scanSession(row)
}

func scanSession(row *sql.Row) (model.Session, error) {
	var (
		sessionID, createdAt, expiresAt, status string
		seed                                     int64
		blocksJSON, responsesJSON                string
		resultJSON                               sql.NullString
	)
	err := row.Scan(&sessionID, &createdAt, &expiresAt, &status, &seed, &blocksJSON, &responsesJSON, &resultJSON)
	if err == sql.ErrNoRows {
		return model.Session{}, apperr.New(apperr.NotFound, "session not found")
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("sessionstore: scan session: %w", err)
	}

	session := model.Session{
		SessionID: sessionID,
		Status:    model.Status(status),
		Seed:      seed,
	}
	if session.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return model.Session{}, fmt.Errorf("sessionstore: parse created_at: %w", err)
	}
	if session.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt); err != nil {
		return model.Session{}, fmt.Errorf("sessionstore: parse expires_at: %w", err)
	}
	if err := json.Unmarshal([]byte(blocksJSON), &session.Blocks); err != nil {
		return model.Session{}, fmt.Errorf("sessionstore: unmarshal blocks: %w", err)
	}
	if err := json.Unmarshal([]byte(responsesJSON), &session.Responses); err != nil {
		return model.Session{}, fmt.Errorf("sessionstore: unmarshal responses: %w", err)
	}
	if resultJSON.Valid {
		var result model.ScoreResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return model.Session{}, fmt.Errorf("sessionstore: unmarshal result: %w", err)
		}
		session.Result = &result
	}
	return session, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
