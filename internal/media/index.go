package media

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one row of the media index.
type Entry struct {
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	MimeType  string    `json:"mimeType"`
	Size      int64     `json:"size"`
	Channel   string    `json:"channel,omitempty"`
	ChatID    string    `json:"chatId,omitempty"`
	SenderID  string    `json:"senderId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Index records stored files in SQLite. It is informational: the content
// directory stays the source of truth for listing and serving.
type Index struct {
	db     *sql.DB
	logger *slog.Logger
}

func OpenIndex(dbPath string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create index directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open index: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	idx := &Index{db: db, logger: logger}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("index migration failed: %w", err)
	}
	return idx, nil
}

func (i *Index) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS media_files (
		name        TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		mime_type   TEXT,
		size        INTEGER NOT NULL,
		channel     TEXT,
		chat_id     TEXT,
		sender_id   TEXT,
		created_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_media_created ON media_files(created_at);
	`
	if _, err := i.db.Exec(schema); err != nil {
		return err
	}
	return i.addColumnIfMissing("media_files", "sender_id", "TEXT")
}

// addColumnIfMissing upgrades indexes created before a column existed.
func (i *Index) addColumnIfMissing(table, column, decl string) error {
	rows, err := i.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	found := false
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			rows.Close()
			return err
		}
		if name == column {
			found = true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if found {
		return nil
	}
	i.logger.Info("adding index column", "table", table, "column", column)
	_, err = i.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

// Record inserts one entry.
func (i *Index) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := i.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO media_files (name, kind, mime_type, size, channel, chat_id, sender_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Name, e.Kind, e.MimeType, e.Size, e.Channel, e.ChatID, e.SenderID, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", e.Name, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (i *Index) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := i.db.QueryContext(ctx,
		`SELECT name, kind, mime_type, size, channel, chat_id, sender_id, created_at
		 FROM media_files ORDER BY created_at DESC, name DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var mime, channel, chat, sender sql.NullString
		if err := rows.Scan(&e.Name, &e.Kind, &mime, &e.Size, &channel, &chat, &sender, &e.CreatedAt); err != nil {
			i.logger.Warn("skip unreadable index row", "err", err)
			continue
		}
		e.MimeType, e.Channel, e.ChatID, e.SenderID = mime.String, channel.String, chat.String, sender.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (i *Index) Close() error {
	return i.db.Close()
}
