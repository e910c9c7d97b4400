package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/scottscharl/scottystack/database"
	"github.com/scottscharl/scottystack/internal/logutil"
	"github.com/scottscharl/scottystack/pkg/models"
)

const defaultSlot = "default"

// SQLiteBackend keeps the session in one row of saved_sessions. The slot
// column lets several profiles share a database file.
type SQLiteBackend struct {
	db   *sql.DB
	log  *slog.Logger
	slot string
}

// OpenSQLite opens (creating if needed) the database at path and applies
// migrations.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteBackend, error) {
	if logger == nil {
		logger = logutil.Discard()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, logutil.LogAndWrapErr(logger, "failed to open session database",
			models.NewDatabaseError(err), "path", path)
	}
	// sqlite allows one writer; a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := database.RunSqliteMigrations(db); err != nil {
		db.Close()
		return nil, logutil.LogAndWrapErr(logger, "failed to migrate session database",
			models.NewDatabaseError(err), "path", path)
	}

	return &SQLiteBackend{db: db, log: logger, slot: defaultSlot}, nil
}

// WithSlot returns a backend reading and writing a different slot of the
// same database.
func (s *SQLiteBackend) WithSlot(slot string) *SQLiteBackend {
	return &SQLiteBackend{db: s.db, log: s.log, slot: slot}
}

func (s *SQLiteBackend) Get(ctx context.Context) ([]byte, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "get saved session", "slot", s.slot)()

	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM saved_sessions WHERE slot = ?`, s.slot).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, logutil.DebugAndWrapErr(s.log, "failed to get saved session",
			models.NewDatabaseError(err), "slot", s.slot)
	}
	return data, nil
}

func (s *SQLiteBackend) Put(ctx context.Context, data []byte, expiresAt time.Time) error {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "put saved session", "slot", s.slot)()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saved_sessions (slot, data, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			data = excluded.data,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		s.slot, data, expiresAt.Unix(), time.Now().Unix())
	if err != nil {
		return logutil.DebugAndWrapErr(s.log, "failed to put saved session",
			models.NewDatabaseError(err), "slot", s.slot)
	}
	return nil
}

func (s *SQLiteBackend) Delete(ctx context.Context) error {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "delete saved session", "slot", s.slot)()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM saved_sessions WHERE slot = ?`, s.slot); err != nil {
		return logutil.DebugAndWrapErr(s.log, "failed to delete saved session",
			models.NewDatabaseError(err), "slot", s.slot)
	}
	return nil
}

// DeleteExpired removes rows in every slot whose token has expired.
func (s *SQLiteBackend) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saved_sessions WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, models.NewDatabaseError(err)
	}
	return res.RowsAffected()
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
