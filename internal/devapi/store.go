package devapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phillip-england/cardsuite/internal/adminapi"
	"github.com/phillip-england/cardsuite/internal/listview"
	"github.com/phillip-england/cardsuite/internal/security"

	_ "modernc.org/sqlite"
)

var errNotFound = errors.New("not found")

type userRecord struct {
	ID       int64
	Username string
	Name     string
	Email    string
	Phone    string
	Role     string
	Image    string
	IsAdmin  bool
}

type sessionRecord struct {
	ID        string
	UserID    int64
	CSRFToken string
	ExpiresAt time.Time
}

type store struct {
	db  *sql.DB
	now func() time.Time
}

// openStore opens the SQLite file at path. ":memory:" gives a private
// in-memory database.
func openStore(ctx context.Context, path string) (*store, error) {
	dsn := "file:" + path
	if path == ":memory:" {
		dsn = "file::memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps in-memory databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	s := &store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *store) Close() error { return s.db.Close() }

func (s *store) initSchema(ctx context.Context) error {
	statements := []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'admin',
			image TEXT NOT NULL DEFAULT '',
			is_admin INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			csrf_token TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS clients (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT '',
			pincode TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			permissions TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS staff (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			department TEXT NOT NULL DEFAULT '',
			designation TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			permissions TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			FOREIGN KEY(client_id) REFERENCES clients(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS card_groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(client_id, name),
			FOREIGN KEY(client_id) REFERENCES clients(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS card_tables (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			group_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			fields TEXT NOT NULL DEFAULT '[]',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			FOREIGN KEY(group_id) REFERENCES card_groups(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS cards (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			table_id INTEGER NOT NULL,
			field_data TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'pending',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			FOREIGN KEY(table_id) REFERENCES card_tables(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS cards_table_status ON cards(table_id, status);`,
		`CREATE TABLE IF NOT EXISTS media (
			name TEXT PRIMARY KEY,
			mime TEXT NOT NULL,
			data BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, s.now().Unix())
	return err
}

// withRetry reruns fn while SQLite reports the database as busy.
func withRetry(fn func() error) error {
	const maxAttempts = 3
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		lower := strings.ToLower(err.Error())
		if !strings.Contains(lower, "database is locked") && !strings.Contains(lower, "database is busy") {
			return err
		}
		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt) * 125 * time.Millisecond)
		}
	}
	return err
}

// withTx runs fn in a transaction, committing when it returns nil.
func (s *store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return withRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

func stamp(unix int64) string {
	if unix <= 0 {
		return ""
	}
	return time.Unix(unix, 0).UTC().Format(listview.UpdatedLayout)
}

func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errNotFound
	}
	return nil
}

func encodePermissions(p adminapi.Permissions) string {
	raw, _ := json.Marshal(p)
	return string(raw)
}

func decodePermissions(raw string) adminapi.Permissions {
	var p adminapi.Permissions
	_ = json.Unmarshal([]byte(raw), &p)
	return p
}

func (s *store) ensureAdminUser(ctx context.Context, username, password string) error {
	hash, err := security.HashPassword(password)
	if err != nil {
		return err
	}
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO users (username, password_hash, name, is_admin, created_at)
			VALUES (?, ?, ?, 1, ?)
			ON CONFLICT(username)
			DO UPDATE SET password_hash = excluded.password_hash, is_admin = 1;
		`, username, hash, username, s.now().Unix())
		return err
	})
}

const userColumns = `id, username, name, email, phone, role, image, is_admin`

func scanUser(row interface{ Scan(...any) error }) (*userRecord, error) {
	var u userRecord
	var admin int
	if err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Email, &u.Phone, &u.Role, &u.Image, &admin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound
		}
		return nil, err
	}
	u.IsAdmin = admin == 1
	return &u, nil
}

func (s *store) lookupUserByUsername(ctx context.Context, username string) (*userRecord, string, error) {
	var hash string
	var u userRecord
	var admin int
	err := s.db.QueryRowContext(ctx, `SELECT `+userColumns+`, password_hash FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.Name, &u.Email, &u.Phone, &u.Role, &u.Image, &admin, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", errNotFound
	}
	if err != nil {
		return nil, "", err
	}
	u.IsAdmin = admin == 1
	return &u, hash, nil
}

func (s *store) getUser(ctx context.Context, id int64) (*userRecord, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (s *store) passwordHash(ctx context.Context, id int64) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id = ?`, id).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errNotFound
	}
	return hash, err
}

func (s *store) updateProfile(ctx context.Context, id int64, in adminapi.ProfileInput) error {
	return affectedOrNotFound(s.db.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, phone = ? WHERE id = ?`,
		in.Name, in.Email, in.Phone, id))
}

func (s *store) setPasswordHash(ctx context.Context, id int64, hash string) error {
	return affectedOrNotFound(s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id))
}

func (s *store) setUserImage(ctx context.Context, id int64, name string) error {
	return affectedOrNotFound(s.db.ExecContext(ctx, `UPDATE users SET image = ? WHERE id = ?`, name, id))
}

func (s *store) createSession(ctx context.Context, id string, userID int64, csrfToken string, expiresAt time.Time) error {
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, user_id, csrf_token, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, userID, csrfToken, expiresAt.Unix(), s.now().Unix())
		return err
	})
}

func (s *store) lookupSession(ctx context.Context, id string) (*sessionRecord, *userRecord, error) {
	var sess sessionRecord
	var expires int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, csrf_token, expires_at FROM sessions WHERE id = ? AND expires_at > ?`,
		id, s.now().Unix()).Scan(&sess.ID, &sess.UserID, &sess.CSRFToken, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, errNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	sess.ExpiresAt = time.Unix(expires, 0).UTC()
	user, err := s.getUser(ctx, sess.UserID)
	if err != nil {
		return nil, nil, err
	}
	return &sess, user, nil
}

func (s *store) deleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (s *store) putMedia(ctx context.Context, name, mime string, data []byte) error {
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO media (name, mime, data, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET mime = excluded.mime, data = excluded.data;
		`, name, mime, data, s.now().Unix())
		return err
	})
}

func (s *store) getMedia(ctx context.Context, name string) ([]byte, string, error) {
	var data []byte
	var mime string
	err := s.db.QueryRowContext(ctx, `SELECT data, mime FROM media WHERE name = ?`, name).Scan(&data, &mime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", errNotFound
	}
	return data, mime, err
}

func (s *store) deleteMedia(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM media WHERE name = ?`, name)
	return err
}
