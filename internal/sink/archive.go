package sink

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/coffersTech/nanocat/internal/pipeline"
)

//go:embed schema.sql
var schema string

// DefaultArchiveBatch is the number of entries per insert transaction.
const DefaultArchiveBatch = 500

// Archive stores entries in a sqlite database, tagged with the session
// id so several runs can share one file.
type Archive struct {
	db      *sql.DB
	session string
	batch   []pipeline.Entry
	size    int
	seq     int64
}

// OpenArchive opens or creates the database at path and registers the
// session.
func OpenArchive(path, session, source string, batch int) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer; WAL lets readers inspect the archive while it grows
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init archive schema: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO sessions (id, source, started_at) VALUES (?, ?, ?)`,
		session, source, time.Now().UnixMilli()); err != nil {
		db.Close()
		return nil, fmt.Errorf("register session: %w", err)
	}
	if batch < 1 {
		batch = DefaultArchiveBatch
	}
	return &Archive{db: db, session: session, size: batch, batch: make([]pipeline.Entry, 0, batch)}, nil
}

func (a *Archive) Name() string { return "archive" }

func (a *Archive) Policy() pipeline.Policy { return pipeline.Block }

func (a *Archive) Write(e pipeline.Entry) error {
	a.batch = append(a.batch, e)
	if len(a.batch) >= a.size {
		return a.Flush()
	}
	return nil
}

// Flush inserts the pending batch in one transaction.
func (a *Archive) Flush() error {
	if len(a.batch) == 0 {
		return nil
	}
	ctx := context.Background()
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (session, seq, time, level, tag, process, thread, message, raw, highlighted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	seq := a.seq
	for _, e := range a.batch {
		r := e.Record
		seq++
		if _, err := stmt.ExecContext(ctx, a.session, seq, r.Time, r.Level.String(),
			r.Tag, r.Process, r.Thread, r.Message, r.Raw, e.Highlighted); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	a.seq = seq
	a.batch = a.batch[:0]
	return nil
}

// Count returns the number of stored records for session.
func (a *Archive) Count(ctx context.Context, session string) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE session = ?`, session).Scan(&n)
	return n, err
}

func (a *Archive) Close() error {
	return a.db.Close()
}
