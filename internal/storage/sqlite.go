package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"crossbot/internal/post"
	"crossbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Rows per multi-value INSERT; keeps well under SQLite's variable limit.
const sqliteBatch = 400

// sqliteStore keeps pending posts as encoded lines so the table stays
// readable with the sqlite3 shell.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	sb  sq.StatementBuilderType
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{
		db:  db,
		log: log,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Watermarks: map[int64]time.Time{}}

	q, args, err := s.sb.Select("id", "record").From("pending").OrderBy("id").ToSql()
	if err != nil {
		return Snapshot{}, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query pending: %w", err)
	}
	for rows.Next() {
		var (
			id     int64
			record string
		)
		if err := rows.Scan(&id, &record); err != nil {
			_ = rows.Close()
			return Snapshot{}, fmt.Errorf("scan pending: %w", err)
		}
		p, err := post.Decode(record)
		if err != nil {
			_ = rows.Close()
			return Snapshot{}, fmt.Errorf("pending id %d: %w", id, err)
		}
		snap.Pending = append(snap.Pending, p)
	}
	if err := closeRows(rows); err != nil {
		return Snapshot{}, err
	}

	q, args, err = s.sb.Select("id").From("finished").OrderBy("id").ToSql()
	if err != nil {
		return Snapshot{}, err
	}
	rows, err = s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query finished: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return Snapshot{}, fmt.Errorf("scan finished: %w", err)
		}
		snap.Finished = append(snap.Finished, id)
	}
	if err := closeRows(rows); err != nil {
		return Snapshot{}, err
	}

	q, args, err = s.sb.Select("account_id", "at_us").From("watermarks").ToSql()
	if err != nil {
		return Snapshot{}, err
	}
	rows, err = s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query watermarks: %w", err)
	}
	for rows.Next() {
		var id, us int64
		if err := rows.Scan(&id, &us); err != nil {
			_ = rows.Close()
			return Snapshot{}, fmt.Errorf("scan watermark: %w", err)
		}
		snap.Watermarks[id] = time.UnixMicro(us).UTC()
	}
	if err := closeRows(rows); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Save replaces pending and watermarks and adds to finished in one
// transaction. Finished rows are never deleted.
func (s *sqliteStore) Save(ctx context.Context, snap Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	exec := func(b sq.Sqlizer) error {
		q, args, err := b.ToSql()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, q, args...)
		return err
	}

	for start := 0; start < len(snap.Finished); start += sqliteBatch {
		end := min(start+sqliteBatch, len(snap.Finished))
		ins := s.sb.Insert("finished").Options("OR IGNORE").Columns("id")
		for _, id := range snap.Finished[start:end] {
			ins = ins.Values(id)
		}
		if err := exec(ins); err != nil {
			return fmt.Errorf("insert finished: %w", err)
		}
	}

	if err := exec(s.sb.Delete("pending")); err != nil {
		return fmt.Errorf("clear pending: %w", err)
	}
	for start := 0; start < len(snap.Pending); start += sqliteBatch {
		end := min(start+sqliteBatch, len(snap.Pending))
		ins := s.sb.Insert("pending").Columns("id", "record")
		for _, p := range snap.Pending[start:end] {
			ins = ins.Values(p.ID(), post.Encode(p))
		}
		if err := exec(ins); err != nil {
			return fmt.Errorf("insert pending: %w", err)
		}
	}

	if err := exec(s.sb.Delete("watermarks")); err != nil {
		return fmt.Errorf("clear watermarks: %w", err)
	}
	if len(snap.Watermarks) > 0 {
		ins := s.sb.Insert("watermarks").Columns("account_id", "at_us")
		for id, at := range snap.Watermarks {
			ins = ins.Values(id, at.UnixMicro())
		}
		if err := exec(ins); err != nil {
			return fmt.Errorf("insert watermarks: %w", err)
		}
	}

	return tx.Commit()
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("rows iteration: %w", err)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close rows: %w", err)
	}
	return nil
}
