package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"learnopt/internal/domain"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS journal (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id  TEXT NOT NULL DEFAULT '',
		op          TEXT NOT NULL,
		file_id     TEXT NOT NULL DEFAULT '',
		ok          INTEGER NOT NULL,
		message     TEXT NOT NULL DEFAULT '',
		created_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_journal_file ON journal(file_id);
	CREATE INDEX IF NOT EXISTS idx_journal_created_at ON journal(created_at);

	CREATE TABLE IF NOT EXISTS seen_files (
		file_id    TEXT PRIMARY KEY,
		filename   TEXT NOT NULL DEFAULT '',
		first_seen DATETIME NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func InsertJournalEntry(ctx context.Context, db *sql.DB, e domain.JournalEntry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO journal (request_id, op, file_id, ok, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.Op, e.FileID, e.OK, e.Message, e.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListJournal returns the newest entries first. An empty fileID lists
// every file.
func ListJournal(ctx context.Context, db *sql.DB, fileID string, limit int) ([]domain.JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, request_id, op, file_id, ok, message, created_at FROM journal`
	args := []any{}
	if fileID != "" {
		query += ` WHERE file_id = ?`
		args = append(args, fileID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var e domain.JournalEntry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Op, &e.FileID, &e.OK, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkFileSeen records fileID in the seen-file ledger and reports whether
// it was new.
func MarkFileSeen(ctx context.Context, db *sql.DB, fileID, filename string) (bool, error) {
	res, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_files (file_id, filename, first_seen) VALUES (?, ?, ?)`,
		fileID, filename, time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func FileSeen(ctx context.Context, db *sql.DB, fileID string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM seen_files WHERE file_id = ?", fileID).Scan(&count)
	return count > 0, err
}

func CountSeenFiles(ctx context.Context, db *sql.DB) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM seen_files").Scan(&count)
	return count, err
}

// Journal adapts the journal table to the workbench recorder.
type Journal struct {
	DB *sql.DB
}

func (j Journal) Record(ctx context.Context, e domain.JournalEntry) error {
	_, err := InsertJournalEntry(ctx, j.DB, e)
	return err
}
