package intake

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kingrea/feedback-desk/internal/form"
	"github.com/kingrea/feedback-desk/internal/intake/migrations"
)

const migrationTable = "schema_migrations"

// Receipt summarises one stored submission.
type Receipt struct {
	ID          string    `json:"id"`
	ReceivedAt  time.Time `json:"received_at"`
	Language    string    `json:"language"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	Attachments int       `json:"attachments"`
}

// Record is a received payload plus the identity the server assigned it.
type Record struct {
	ID         string
	ReceivedAt time.Time
	Payload    form.Payload
}

func (r Record) receipt() Receipt {
	return Receipt{
		ID:          r.ID,
		ReceivedAt:  r.ReceivedAt.UTC(),
		Language:    r.Payload.Language,
		Name:        r.Payload.Name,
		Phone:       r.Payload.Phone,
		Attachments: len(r.Payload.Images),
	}
}

// Store persists received submissions.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Receipt, error)
	Get(ctx context.Context, id string) (Record, error)
}

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("intake: submission not found")

type memoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore keeps submissions in memory. It backs servers started
// without a database.
func NewMemoryStore() Store {
	return &memoryStore{records: map[string]Record{}}
}

func (m *memoryStore) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return nil
}

func (m *memoryStore) Recent(ctx context.Context, limit int) ([]Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]Receipt, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.receipt())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) Get(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// SQLiteStore persists submissions in a SQLite database.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite opens the database at path and applies embedded migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("intake: storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("intake: ensure storage dir: %w", err)
	}
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("intake: open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("intake: ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("intake: run migrations: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save inserts one submission.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("intake: storage is not configured")
	}
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("intake: submission id is required")
	}
	body, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("intake: encode payload: %w", err)
	}
	p := rec.Payload
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO submissions (id, received_at, language, name, address, phone, details, attachments, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.ReceivedAt.UTC().UnixMilli(),
		p.Language, p.Name, p.Address, p.Phone, p.Details,
		len(p.Images),
		string(body),
	)
	if err != nil {
		return fmt.Errorf("intake: insert submission %s: %w", rec.ID, err)
	}
	return nil
}

// Recent lists the newest submissions first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Receipt, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("intake: storage is not configured")
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, received_at, language, name, phone, attachments
		   FROM submissions
		  ORDER BY received_at DESC, id DESC
		  LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("intake: list submissions: %w", err)
	}
	defer rows.Close()
	var out []Receipt
	for rows.Next() {
		var (
			r        Receipt
			received int64
		)
		if err := rows.Scan(&r.ID, &received, &r.Language, &r.Name, &r.Phone, &r.Attachments); err != nil {
			return nil, fmt.Errorf("intake: scan submission: %w", err)
		}
		r.ReceivedAt = time.UnixMilli(received).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("intake: iterate submissions: %w", err)
	}
	return out, nil
}

// Get loads a full submission, attachments included.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	if s == nil || s.sqlDB == nil {
		return Record{}, fmt.Errorf("intake: storage is not configured")
	}
	var (
		received int64
		body     string
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT received_at, payload FROM submissions WHERE id = ?`, id).Scan(&received, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("intake: get submission %s: %w", id, err)
	}
	rec := Record{ID: id, ReceivedAt: time.UnixMilli(received).UTC()}
	if err := json.Unmarshal([]byte(body), &rec.Payload); err != nil {
		return Record{}, fmt.Errorf("intake: decode submission %s: %w", id, err)
	}
	return rec, nil
}

// applyMigrations executes every embedded .sql file at most once, in name
// order, recording applied files in schema_migrations.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var found int
		err := sqlDB.QueryRow(`SELECT 1 FROM `+migrationTable+` WHERE name = ?`, file).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		up := upSection(string(content))
		if strings.TrimSpace(up) == "" {
			continue
		}
		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`,
			file, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

func upSection(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	start := strings.Index(content, up)
	if start == -1 {
		return content
	}
	content = content[start+len(up):]
	if end := strings.Index(content, down); end != -1 {
		content = content[:end]
	}
	return content
}
