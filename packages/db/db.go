// Package db stores the embedded peer's users and posts in SQLite.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

// ErrNotFound is returned when a user or post does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS users (
	name         TEXT PRIMARY KEY,
	entity       TEXT NOT NULL UNIQUE,
	meta_post_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS posts (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	entity       TEXT NOT NULL,
	id           TEXT NOT NULL,
	version_id   TEXT NOT NULL,
	type         TEXT NOT NULL,
	doc          TEXT NOT NULL,
	received_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS posts_entity_id ON posts (entity, id);
`

// Store is the peer's persistence.
type Store struct {
	db         *sql.DB
	driverName string
	dataSource string
	timeout    time.Duration
}

// Open connects to connectionString and creates the tables.
func Open(ctx context.Context, connectionString string) (*Store, error) {
	driver, dsn, err := parseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, driverName: driver, dataSource: dsn, timeout: 30 * time.Second}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// User is a local Tent user hosted by the peer.
type User struct {
	Name       string
	Entity     string
	MetaPostID string
}

func (s *Store) CreateUser(ctx context.Context, u *User) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, entity, meta_post_id) VALUES (?, ?, ?)`,
		u.Name, u.Entity, u.MetaPostID)
	if err != nil {
		return fmt.Errorf("creating user %s: %w", u.Name, err)
	}
	return nil
}

func (s *Store) User(ctx context.Context, name string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	u := &User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT name, entity, meta_post_id FROM users WHERE name = ?`, name).
		Scan(&u.Name, &u.Entity, &u.MetaPostID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading user %s: %w", name, err)
	}
	return u, nil
}

// Post is one stored version of a post.
type Post struct {
	Entity     string
	ID         string
	VersionID  string
	Type       string
	Doc        value.Value
	ReceivedAt time.Time
}

// PutPost stores doc as a new version of the post.
func (s *Store) PutPost(ctx context.Context, p *Post) error {
	data, err := json.Marshal(p.Doc)
	if err != nil {
		return fmt.Errorf("encoding post %s: %w", p.ID, err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if p.ReceivedAt.IsZero() {
		p.ReceivedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO posts (entity, id, version_id, type, doc, received_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.Entity, p.ID, p.VersionID, p.Type, string(data), p.ReceivedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("storing post %s: %w", p.ID, err)
	}
	return nil
}

// Post returns the latest version of a post.
func (s *Store) Post(ctx context.Context, entity, id string) (*Post, error) {
	posts, err := s.query(ctx,
		`SELECT entity, id, version_id, type, doc, received_at FROM posts
		 WHERE entity = ? AND id = ? ORDER BY seq DESC LIMIT 1`, entity, id)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, fmt.Errorf("post %s: %w", id, ErrNotFound)
	}
	return posts[0], nil
}

// Versions returns every version of a post, newest first.
func (s *Store) Versions(ctx context.Context, entity, id string) ([]*Post, error) {
	return s.query(ctx,
		`SELECT entity, id, version_id, type, doc, received_at FROM posts
		 WHERE entity = ? AND id = ? ORDER BY seq DESC`, entity, id)
}

// Feed returns the latest version of each post by entity, newest first.
// types filters by exact type or, for types without a fragment, by base.
func (s *Store) Feed(ctx context.Context, entity string, types []string, limit int) ([]*Post, error) {
	query := `SELECT p.entity, p.id, p.version_id, p.type, p.doc, p.received_at FROM posts p
		WHERE p.entity = ? AND p.seq = (SELECT MAX(seq) FROM posts WHERE entity = p.entity AND id = p.id)`
	args := []any{entity}
	if len(types) > 0 {
		var clauses []string
		for _, t := range types {
			if strings.Contains(t, "#") {
				clauses = append(clauses, "p.type = ?")
				args = append(args, t)
			} else {
				clauses = append(clauses, "p.type LIKE ?")
				args = append(args, t+"#%")
			}
		}
		query += " AND (" + strings.Join(clauses, " OR ") + ")"
	}
	query += " ORDER BY p.seq DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.query(ctx, query, args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*Post, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		var (
			p        Post
			doc      string
			received int64
		)
		if err := rows.Scan(&p.Entity, &p.ID, &p.VersionID, &p.Type, &doc, &received); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		p.Doc, err = value.ParseString(doc)
		if err != nil {
			return nil, fmt.Errorf("post %s: %w", p.ID, err)
		}
		p.ReceivedAt = time.UnixMilli(received)
		posts = append(posts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return posts, nil
}

// parseConnectionString parses a connection string into driver and DSN.
// Supported formats:
//   - sqlite3://path/to/db.sqlite
//   - sqlite://path/to/db.sqlite
//   - sqlite:./test.db
//   - sqlite3://:memory:
func parseConnectionString(connStr string) (driver string, dsn string, err error) {
	connStr = strings.TrimSpace(connStr)
	for _, prefix := range []string{"sqlite3://", "sqlite://", "sqlite3:", "sqlite:"} {
		if strings.HasPrefix(connStr, prefix) {
			dsn = strings.TrimPrefix(connStr, prefix)
			if dsn == "" {
				return "", "", fmt.Errorf("invalid connection string: missing path")
			}
			return "sqlite3", dsn, nil
		}
	}
	scheme, _, _ := strings.Cut(connStr, ":")
	return "", "", fmt.Errorf("unsupported database scheme: %s", scheme)
}
