package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alphabot-ai/nodebird/internal/model"
	"github.com/alphabot-ai/nodebird/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	// Migration 1: users, domains, posts, hashtags
	`
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT,
	nick TEXT NOT NULL,
	password TEXT,
	provider TEXT NOT NULL DEFAULT 'local',
	sns_id TEXT,
	created_at INTEGER NOT NULL,
	deleted_at INTEGER
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_live ON users(email) WHERE deleted_at IS NULL AND email IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_users_sns ON users(provider, sns_id);

CREATE TABLE IF NOT EXISTS domains (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	host TEXT NOT NULL,
	type TEXT NOT NULL CHECK (type IN ('free', 'premium')),
	client_secret TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	deleted_at INTEGER,
	FOREIGN KEY(user_id) REFERENCES users(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_domains_secret_live ON domains(client_secret) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_domains_host ON domains(host);

CREATE TABLE IF NOT EXISTS posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content TEXT NOT NULL,
	img TEXT,
	user_id INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	deleted_at INTEGER,
	FOREIGN KEY(user_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_posts_user_id ON posts(user_id);

CREATE TABLE IF NOT EXISTS hashtags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS post_hashtags (
	post_id INTEGER NOT NULL,
	hashtag_id INTEGER NOT NULL,
	PRIMARY KEY (post_id, hashtag_id),
	FOREIGN KEY(post_id) REFERENCES posts(id),
	FOREIGN KEY(hashtag_id) REFERENCES hashtags(id)
);
`,
	// Future migrations go here:
	// Migration 2: `ALTER TABLE ...`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) (int64, error) {
	provider := user.Provider
	if provider == "" {
		provider = model.ProviderLocal
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO users (email, nick, password, provider, sns_id, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, nullIfEmpty(user.Email), user.Nick, nullIfEmpty(user.PasswordHash), provider, nullIfEmpty(user.SNSID), user.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrDuplicateEmail
		}
		return 0, err
	}
	return res.LastInsertId()
}

const userColumns = `id, email, nick, password, provider, sns_id, created_at, deleted_at`

func (s *Store) GetUser(ctx context.Context, id int64) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE id = ? AND deleted_at IS NULL
`, id)
	return scanUser(row)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE email = ? AND deleted_at IS NULL
LIMIT 1
`, email)
	return scanUser(row)
}

func (s *Store) FindUserBySNS(ctx context.Context, provider, snsID string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE provider = ? AND sns_id = ? AND deleted_at IS NULL
LIMIT 1
`, provider, snsID)
	return scanUser(row)
}

// DeleteUser soft-deletes the user and every live domain it owns.
func (s *Store) DeleteUser(ctx context.Context, id int64, deletedAt time.Time) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, deletedAt.Unix(), id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		err = store.ErrNotFound
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE domains SET deleted_at = ? WHERE user_id = ? AND deleted_at IS NULL`, deletedAt.Unix(), id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CreateDomain(ctx context.Context, domain *model.Domain) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO domains (user_id, host, type, client_secret, created_at)
VALUES (?, ?, ?, ?, ?)
`, domain.UserID, domain.Host, string(domain.Tier), domain.Secret, domain.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrDuplicateSecret
		}
		return 0, err
	}
	return res.LastInsertId()
}

const domainColumns = `id, user_id, host, type, client_secret, created_at, deleted_at`

func (s *Store) GetDomain(ctx context.Context, id int64) (model.Domain, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+domainColumns+`
FROM domains
WHERE id = ? AND deleted_at IS NULL
`, id)
	return scanDomain(row)
}

func (s *Store) FindDomainBySecret(ctx context.Context, secret string) (model.Domain, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+domainColumns+`
FROM domains
WHERE client_secret = ? AND deleted_at IS NULL
LIMIT 1
`, secret)
	return scanDomain(row)
}

func (s *Store) FindDomainByHost(ctx context.Context, host string) (model.Domain, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+domainColumns+`
FROM domains
WHERE host = ? AND deleted_at IS NULL
ORDER BY created_at DESC, id DESC
LIMIT 1
`, host)
	return scanDomain(row)
}

func (s *Store) ListDomainsByUser(ctx context.Context, userID int64) ([]model.Domain, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+domainColumns+`
FROM domains
WHERE user_id = ? AND deleted_at IS NULL
ORDER BY created_at ASC, id ASC
`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []model.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

func (s *Store) DeleteDomain(ctx context.Context, id int64, deletedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE domains SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, deletedAt.Unix(), id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreatePost stores the post and links it to each hashtag title,
// creating hashtags that do not exist yet.
func (s *Store) CreatePost(ctx context.Context, post *model.Post, hashtags []string) (id int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
INSERT INTO posts (content, img, user_id, created_at)
VALUES (?, ?, ?, ?)
`, post.Content, nullIfEmpty(post.Img), post.UserID, post.CreatedAt.Unix())
	if err != nil {
		return 0, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, title := range hashtags {
		if _, err = tx.ExecContext(ctx, `
INSERT INTO hashtags (title, created_at) VALUES (?, ?)
ON CONFLICT(title) DO NOTHING
`, title, post.CreatedAt.Unix()); err != nil {
			return 0, err
		}
		var hashtagID int64
		if err = tx.QueryRowContext(ctx, `SELECT id FROM hashtags WHERE title = ?`, title).Scan(&hashtagID); err != nil {
			return 0, err
		}
		if _, err = tx.ExecContext(ctx, `
INSERT INTO post_hashtags (post_id, hashtag_id) VALUES (?, ?)
ON CONFLICT DO NOTHING
`, id, hashtagID); err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) ListPostsByUser(ctx context.Context, userID int64) ([]model.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, content, img, user_id, created_at
FROM posts
WHERE user_id = ? AND deleted_at IS NULL
ORDER BY created_at DESC, id DESC
`, userID)
	if err != nil {
		return nil, err
	}
	return scanPosts(rows)
}

func (s *Store) FindHashtagByTitle(ctx context.Context, title string) (model.Hashtag, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, title, created_at
FROM hashtags
WHERE title = ?
`, title)
	var h model.Hashtag
	var created int64
	if err := row.Scan(&h.ID, &h.Title, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Hashtag{}, store.ErrNotFound
		}
		return model.Hashtag{}, err
	}
	h.CreatedAt = time.Unix(created, 0)
	return h, nil
}

func (s *Store) ListPostsByHashtag(ctx context.Context, hashtagID int64) ([]model.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT p.id, p.content, p.img, p.user_id, p.created_at
FROM posts p
JOIN post_hashtags ph ON ph.post_id = p.id
WHERE ph.hashtag_id = ? AND p.deleted_at IS NULL
ORDER BY p.created_at DESC, p.id DESC
`, hashtagID)
	if err != nil {
		return nil, err
	}
	return scanPosts(rows)
}

func (s *Store) GetSiteStats(ctx context.Context) (model.SiteStats, error) {
	var stats model.SiteStats
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE deleted_at IS NULL`)
	if err := row.Scan(&stats.Users); err != nil {
		return stats, err
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM domains WHERE deleted_at IS NULL`)
	if err := row.Scan(&stats.Domains); err != nil {
		return stats, err
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE deleted_at IS NULL`)
	if err := row.Scan(&stats.Posts); err != nil {
		return stats, err
	}
	return stats, nil
}

type scanner interface{ Scan(dest ...any) error }

func scanUser(row scanner) (model.User, error) {
	var u model.User
	var email, password, snsID sql.NullString
	var created int64
	var deleted sql.NullInt64
	if err := row.Scan(&u.ID, &email, &u.Nick, &password, &u.Provider, &snsID, &created, &deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, store.ErrNotFound
		}
		return model.User{}, err
	}
	u.Email = email.String
	u.PasswordHash = password.String
	u.SNSID = snsID.String
	u.CreatedAt = time.Unix(created, 0)
	u.DeletedAt = nullableTime(deleted)
	return u, nil
}

func scanDomain(row scanner) (model.Domain, error) {
	var d model.Domain
	var tier string
	var created int64
	var deleted sql.NullInt64
	if err := row.Scan(&d.ID, &d.UserID, &d.Host, &tier, &d.Secret, &created, &deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Domain{}, store.ErrNotFound
		}
		return model.Domain{}, err
	}
	d.Tier = model.Tier(tier)
	d.CreatedAt = time.Unix(created, 0)
	d.DeletedAt = nullableTime(deleted)
	return d, nil
}

func scanPosts(rows *sql.Rows) ([]model.Post, error) {
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		var p model.Post
		var img sql.NullString
		var created int64
		if err := rows.Scan(&p.ID, &p.Content, &img, &p.UserID, &created); err != nil {
			return nil, err
		}
		p.Img = img.String
		p.CreatedAt = time.Unix(created, 0)
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func nullableTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
